// Package chat holds the client-side message pipeline: composing and
// sending with attachments, the per-thread timeline, the thread list and
// the rendering rules shared by every message surface.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cross4solution/MedGama-sub003/internal/attachments"
	"github.com/Cross4solution/MedGama-sub003/internal/models"
)

// ErrInFlight is returned when a send for the same thread has not finished.
var ErrInFlight = errors.New("chat: send already in flight")

// ComposeState is the visible state of the composer.
type ComposeState string

const (
	StateIdle      ComposeState = "idle"
	StateStaging   ComposeState = "staging"
	StateSending   ComposeState = "sending"
	StateSent      ComposeState = "sent"
	StateDelivered ComposeState = "delivered"
	StateRead      ComposeState = "read"
	StateFailed    ComposeState = "failed"
)

// SendRequest is what the API receives for a new message.
type SendRequest struct {
	ClientID    string              `json:"client_id"`
	Text        string              `json:"text"`
	Attachments []models.Attachment `json:"attachments"`
}

// Sender posts messages to a thread.
type Sender interface {
	SendMessage(ctx context.Context, threadID string, req SendRequest) (models.Message, error)
}

// Uploader stores one attachment and returns where it lives.
type Uploader interface {
	Upload(ctx context.Context, c attachments.Candidate) (models.Attachment, error)
}

// Key is a key press delivered to the composer.
type Key struct {
	Name  string
	Shift bool
}

type outbound struct {
	threadID string
	text     string
	files    []attachments.Staged
}

// Composer drives the compose/send state machine for the selected thread.
type Composer struct {
	sender   Sender
	uploader Uploader
	stage    *attachments.Stage
	self     string
	now      func() time.Time
	newID    func() string

	mu         sync.Mutex
	threadID   string
	timeline   *Timeline
	text       string
	errMsg     string
	dropActive bool
	inFlight   map[string]bool
	lastID     string
	failed     map[string]outbound
}

// NewComposer builds a Composer. self is the sender name put on local messages.
func NewComposer(sender Sender, uploader Uploader, stage *attachments.Stage, self string) *Composer {
	return &Composer{
		sender:   sender,
		uploader: uploader,
		stage:    stage,
		self:     self,
		now:      time.Now,
		newID:    uuid.NewString,
		inFlight: map[string]bool{},
		failed:   map[string]outbound{},
	}
}

// SetTarget points the composer at a thread and its timeline.
func (c *Composer) SetTarget(threadID string, timeline *Timeline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.threadID != threadID {
		c.lastID = ""
	}
	c.threadID = threadID
	c.timeline = timeline
}

func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *Composer) SetText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
}

// HandleKey sends on Enter and inserts a newline on shift+Enter.
func (c *Composer) HandleKey(ctx context.Context, k Key) error {
	if k.Name != "enter" {
		return nil
	}
	if k.Shift {
		c.mu.Lock()
		c.text += "\n"
		c.mu.Unlock()
		return nil
	}
	_, err := c.Send(ctx)
	return err
}

// DragOver shows the drop affordance.
func (c *Composer) DragOver() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropActive = true
}

// DragLeave hides the drop affordance.
func (c *Composer) DragLeave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropActive = false
}

func (c *Composer) DropActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropActive
}

// Drop stages dropped files through the same validation as AddFiles.
func (c *Composer) Drop(batch []attachments.Candidate) error {
	c.DragLeave()
	return c.AddFiles(batch)
}

// AddFiles stages a batch. A rejected batch sets the inline error.
func (c *Composer) AddFiles(batch []attachments.Candidate) error {
	err := c.stage.Add(batch)
	c.mu.Lock()
	defer c.mu.Unlock()
	var verr *attachments.ValidationError
	switch {
	case errors.As(err, &verr):
		c.errMsg = verr.Message
	case err != nil:
		c.errMsg = err.Error()
	default:
		c.errMsg = ""
	}
	return err
}

// RemoveFile unstages the file at index i.
func (c *Composer) RemoveFile(i int) error {
	return c.stage.Remove(i)
}

func (c *Composer) Staged() []attachments.Staged {
	return c.stage.Items()
}

// Error is the inline message of the last failure, or "".
func (c *Composer) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

func (c *Composer) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errMsg = ""
}

// State reports the composer state for the current thread.
func (c *Composer) State() ComposeState {
	c.mu.Lock()
	threadID, lastID, timeline := c.threadID, c.lastID, c.timeline
	inFlight := c.inFlight[threadID]
	c.mu.Unlock()

	if inFlight {
		return StateSending
	}
	var last models.MessageStatus
	if lastID != "" && timeline != nil {
		if msg, ok := timeline.Get(lastID); ok {
			last = msg.Status
		}
	}
	switch {
	case last == models.MessageFailed:
		return StateFailed
	case c.stage.Len() > 0:
		return StateStaging
	case last != "":
		return ComposeState(last)
	}
	return StateIdle
}

// Send posts the composed text and staged files, emptying the stage. An empty composer is a
// no-op returning (nil, nil); a second send for the same thread while one is
// running returns ErrInFlight. The optimistic message is on the timeline
// before any network call.
func (c *Composer) Send(ctx context.Context) (*models.Message, error) {
	c.mu.Lock()
	if c.timeline == nil || c.threadID == "" {
		c.mu.Unlock()
		return nil, errors.New("chat: no thread selected")
	}
	threadID, timeline := c.threadID, c.timeline
	if c.inFlight[threadID] {
		c.mu.Unlock()
		return nil, ErrInFlight
	}
	text := strings.TrimSpace(c.text)
	if text == "" && c.stage.Len() == 0 {
		c.mu.Unlock()
		return nil, nil
	}
	// the files travel with this message; a failed send keeps them for Retry
	files := c.stage.Take()
	c.inFlight[threadID] = true
	c.text = ""
	c.errMsg = ""

	local := models.Message{
		ID:          c.newID(),
		Sender:      c.self,
		Text:        text,
		Time:        c.now(),
		Status:      models.MessageSending,
		Attachments: localAttachments(files),
	}
	c.lastID = local.ID
	c.mu.Unlock()

	timeline.Append(local)
	msg, err := c.deliver(ctx, local.ID, outbound{threadID: threadID, text: text, files: files}, timeline)

	c.mu.Lock()
	delete(c.inFlight, threadID)
	c.mu.Unlock()
	if err == nil {
		c.stage.Release(files)
	}
	return msg, err
}

// Retry re-sends a failed message through the same path.
func (c *Composer) Retry(ctx context.Context, id string) (*models.Message, error) {
	c.mu.Lock()
	req, ok := c.failed[id]
	timeline := c.timeline
	if !ok || timeline == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("chat: message %s is not retryable", id)
	}
	if c.inFlight[req.threadID] {
		c.mu.Unlock()
		return nil, ErrInFlight
	}
	if _, ok := timeline.Retry(id); !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("chat: message %s is not failed", id)
	}
	c.inFlight[req.threadID] = true
	delete(c.failed, id)
	c.mu.Unlock()

	msg, err := c.deliver(ctx, id, req, timeline)

	c.mu.Lock()
	delete(c.inFlight, req.threadID)
	c.mu.Unlock()
	if err == nil {
		c.stage.Release(req.files)
	}
	return msg, err
}

func (c *Composer) deliver(ctx context.Context, localID string, req outbound, timeline *Timeline) (*models.Message, error) {
	uploaded := make([]models.Attachment, 0, len(req.files))
	for _, f := range req.files {
		if c.uploader == nil {
			return nil, c.fail(localID, req, timeline, errors.New("attachments are not supported"))
		}
		att, err := c.uploader.Upload(ctx, f.Candidate)
		if err != nil {
			return nil, c.fail(localID, req, timeline, fmt.Errorf("upload %s: %w", f.Name, err))
		}
		uploaded = append(uploaded, att)
	}

	server, err := c.sender.SendMessage(ctx, req.threadID, SendRequest{ClientID: localID, Text: req.text, Attachments: uploaded})
	if err != nil {
		return nil, c.fail(localID, req, timeline, err)
	}

	timeline.Adopt(localID, server)
	id := localID
	if server.ID != "" {
		id = server.ID
	}
	c.mu.Lock()
	if c.lastID == localID {
		c.lastID = id
	}
	c.mu.Unlock()

	msg, _ := timeline.Get(id)
	return &msg, nil
}

func (c *Composer) fail(localID string, req outbound, timeline *Timeline, err error) error {
	timeline.Apply(localID, models.MessageFailed)
	log.Printf("chat send failed thread_id=%s client_id=%s err=%v", req.threadID, localID, err)
	c.mu.Lock()
	c.failed[localID] = req
	c.errMsg = "Message not sent. Select it and retry."
	c.mu.Unlock()
	return err
}

func localAttachments(files []attachments.Staged) []models.Attachment {
	if len(files) == 0 {
		return nil
	}
	out := make([]models.Attachment, 0, len(files))
	for _, f := range files {
		out = append(out, models.Attachment{
			FileName: f.Name,
			FileType: f.MIMEType,
			FileSize: f.Size,
			URL:      f.Preview,
			ThumbURL: f.Preview,
		})
	}
	return out
}
