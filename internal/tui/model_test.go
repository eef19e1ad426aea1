package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cross4solution/MedGama-sub003/internal/attachments"
	"github.com/Cross4solution/MedGama-sub003/internal/chat"
	"github.com/Cross4solution/MedGama-sub003/internal/models"
	"github.com/Cross4solution/MedGama-sub003/internal/realtime"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []chat.SendRequest
	uploads []string
	sendErr error
}

func (f *fakeAPI) Threads(context.Context) ([]models.Thread, error) {
	return nil, nil
}

func (f *fakeAPI) Messages(context.Context, string) ([]models.Message, error) {
	return nil, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, _ string, req chat.SendRequest) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return models.Message{}, f.sendErr
	}
	f.sent = append(f.sent, req)
	return models.Message{ID: fmt.Sprintf("srv-%d", len(f.sent)), Sender: "me", Text: req.Text, Status: models.MessageSent, Attachments: req.Attachments}, nil
}

func (f *fakeAPI) Upload(_ context.Context, c attachments.Candidate) (models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, c.Name)
	return models.Attachment{FileName: c.Name, FileType: c.MIMEType, FileSize: c.Size, URL: "https://cdn.example/" + c.Name}, nil
}

type fakeConnector struct {
	mu       sync.Mutex
	handlers map[string]realtime.Handler
	removed  []string
}

func (f *fakeConnector) Subscribe(_ context.Context, channel string, h realtime.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[channel] = h
	return nil
}

func (f *fakeConnector) Unsubscribe(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, channel)
	f.removed = append(f.removed, channel)
	return nil
}

func (f *fakeConnector) SetToken(string) {}
func (f *fakeConnector) Close() error   { return nil }

type droppingConnector struct {
	fakeConnector
	done chan struct{}
}

func (d *droppingConnector) Done() <-chan struct{} { return d.done }

type fakeRealtime struct {
	conn realtime.Connector
}

func (f fakeRealtime) Connector(context.Context) (realtime.Connector, error) {
	return f.conn, nil
}

func threadsN(n int) []models.Thread {
	out := make([]models.Thread, n)
	for i := range out {
		out[i] = models.Thread{ID: fmt.Sprintf("t%d", i+1), Name: fmt.Sprintf("Clinic %02d", i+1)}
	}
	return out
}

func newTestModel(t *testing.T, rt Realtime) (*Model, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	m := NewModel(Options{API: api, Realtime: rt, Self: "me", Previews: attachments.NewMemoryPreviews(), PollInterval: time.Minute})
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Update(threadsLoadedMsg{threads: threadsN(20)})
	return m, api
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFirstThreadOpensOnLoad(t *testing.T) {
	m, _ := newTestModel(t, nil)
	assert.Equal(t, "t1", m.current)
}

func TestThreadFilterAndPagination(t *testing.T) {
	m, _ := newTestModel(t, nil)

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusThreads, m.focus)

	assert.Len(t, m.visibleThreads(), chat.ThreadPageSize)
	for i := 0; i < 5; i++ {
		m.Update(tea.KeyMsg{Type: tea.KeyRight})
	}
	assert.Equal(t, 2, m.page, "page clamps at the last one")
	assert.Len(t, m.visibleThreads(), 4)

	m.Update(runes("1"))
	assert.Equal(t, 0, m.page)
	names := []string{}
	for _, th := range m.filteredThreads() {
		names = append(names, th.Name)
	}
	assert.Equal(t, []string{"Clinic 01", "Clinic 10", "Clinic 11", "Clinic 12", "Clinic 13", "Clinic 14", "Clinic 15", "Clinic 16", "Clinic 17", "Clinic 18", "Clinic 19"}, names)

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "t10", m.current)
	assert.Equal(t, focusComposer, m.focus)
}

func TestEnterSendsAltEnterInsertsNewline(t *testing.T) {
	m, api := newTestModel(t, nil)

	m.input.SetValue("first line")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter, Alt: true})
	assert.Nil(t, cmd)
	assert.Equal(t, "first line\n", m.input.Value())

	m.input.SetValue("hello")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Empty(t, m.input.Value())

	msg := cmd()
	sent, ok := msg.(sentMsg)
	require.True(t, ok)
	assert.NoError(t, sent.err)
	require.Len(t, api.sent, 1)
	assert.Equal(t, "hello", api.sent[0].Text)

	msgs := m.timeline("t1").Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageSent, msgs[0].Status)
}

func TestEmptyEnterDoesNothing(t *testing.T) {
	m, api := newTestModel(t, nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, api.sent)
}

func TestPastedPathsAreStaged(t *testing.T) {
	m, api := newTestModel(t, nil)
	dir := t.TempDir()
	pdf := filepath.Join(dir, "lab results.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o600))

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("'" + pdf + "'"), Paste: true})
	require.Len(t, m.composer.Staged(), 1)
	assert.Equal(t, "lab results.pdf", m.composer.Staged()[0].Name)
	assert.Empty(t, m.input.Value())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"lab results.pdf"}, api.uploads)
	assert.Empty(t, m.composer.Staged())
}

func TestRejectedDropShowsDismissibleError(t *testing.T) {
	m, _ := newTestModel(t, nil)
	bad := filepath.Join(t.TempDir(), "setup.exe")
	require.NoError(t, os.WriteFile(bad, []byte("MZ binary"), 0o600))

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(bad), Paste: true})
	assert.Empty(t, m.composer.Staged())
	assert.Contains(t, m.composer.Error(), "setup.exe")

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlX})
	assert.Empty(t, m.composer.Error())
}

func TestPastedTextIsNotADrop(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("see you at 10"), Paste: true})
	assert.Empty(t, m.composer.Staged())
	assert.Equal(t, "see you at 10", m.input.Value())
}

func TestRetryAfterFailedSend(t *testing.T) {
	m, api := newTestModel(t, nil)
	api.sendErr = assert.AnError

	m.input.SetValue("are you there?")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(cmd())
	msgs := m.timeline("t1").Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageFailed, msgs[0].Status)

	api.sendErr = nil
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	cmd()
	msgs = m.timeline("t1").Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageSent, msgs[0].Status)
}

func TestPushEventsUpdateTimeline(t *testing.T) {
	conn := &fakeConnector{handlers: map[string]realtime.Handler{}}
	m, _ := newTestModel(t, fakeRealtime{conn: conn})

	msg := m.subscribeCmd("t1")()
	require.IsType(t, subscribedMsg{}, msg)
	m.Update(msg)
	assert.Equal(t, "t1", m.subscribed)
	assert.Nil(t, m.pollIfDue(time.Now().Add(time.Hour)), "push replaces polling")

	handler := conn.handlers["private-chat.t1"]
	require.NotNil(t, handler)

	handler(eventMessageCreated, []byte(`{"id":"m1","sender":"Harbor Clinic","text":"hi","status":"sent"}`))
	handler(eventMessageRead, []byte(`{"message_id":"m1"}`))
	handler(eventMessageDelivered, []byte(`{"message_id":"m1"}`))
	for i := 0; i < 3; i++ {
		m.Update(<-m.events)
	}

	got, ok := m.timeline("t1").Get("m1")
	require.True(t, ok)
	assert.Equal(t, models.MessageRead, got.Status, "late delivered receipt does not regress read")
}

func TestSwitchingThreadsMovesSubscription(t *testing.T) {
	conn := &fakeConnector{handlers: map[string]realtime.Handler{}}
	m, _ := newTestModel(t, fakeRealtime{conn: conn})
	m.Update(m.subscribeCmd("t1")())

	m.openThread("t2")
	assert.Equal(t, []string{"private-chat.t1"}, conn.removed)
	assert.Empty(t, m.subscribed)
}

func TestPollingWithoutRealtime(t *testing.T) {
	m, _ := newTestModel(t, nil)
	now := time.Now()

	assert.NotNil(t, m.pollIfDue(now))
	assert.Nil(t, m.pollIfDue(now.Add(time.Second)))
	assert.NotNil(t, m.pollIfDue(now.Add(2*time.Minute)))
	assert.Nil(t, m.subscribeCmd("t1"))
}

func TestViewRendersBadgesAndTags(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m.threads[0].Tags = []string{"Urgent"}
	m.Update(messagesLoadedMsg{threadID: "t1", messages: []models.Message{
		{ID: "m1", Sender: "Harbor Clinic", Text: "Results are in", Status: models.MessageSent},
		{ID: "m2", Sender: "me", Text: "Thanks", Status: models.MessageDelivered,
			Attachments: []models.Attachment{{FileName: "scan.pdf", FileType: "application/pdf", FileSize: 2048}}},
	}})

	view := m.View()
	assert.Contains(t, view, "Results are in")
	assert.Contains(t, view, "✓✓")
	assert.Contains(t, view, "scan.pdf")
	assert.Contains(t, view, "[Urgent]")
}

func TestLightboxConsumesKeysUntilEscape(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m.timeline("t1").Merge([]models.Message{{ID: "m1", Sender: "x", Status: models.MessageSent,
		Attachments: []models.Attachment{{FileName: "xray.png", FileType: "image/png", URL: "https://cdn.example/xray.png"}}}})

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	require.True(t, m.lightbox.IsOpen())
	assert.Contains(t, m.View(), "https://cdn.example/xray.png")

	m.Update(runes("a"))
	assert.Empty(t, m.input.Value())
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.lightbox.IsOpen())
}

func TestDroppedPaths(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a b.png")
	c := filepath.Join(dir, "c.png")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(c, []byte("x"), 0o600))

	assert.Equal(t, []string{a}, droppedPaths(filepath.Join(dir, `a\ b.png`)))
	assert.Equal(t, []string{c, a}, droppedPaths("file://"+c+"\n\""+a+"\"\n"))
	assert.Nil(t, droppedPaths(dir))
	assert.Nil(t, droppedPaths("hello world"))
}

func TestDroppedConnectionResumesPollingAndResubscribes(t *testing.T) {
	conn := &droppingConnector{fakeConnector: fakeConnector{handlers: map[string]realtime.Handler{}}, done: make(chan struct{})}
	m, _ := newTestModel(t, fakeRealtime{conn: conn})

	_, watch := m.Update(m.subscribeCmd("t1")())
	require.Equal(t, "t1", m.subscribed)
	require.NotNil(t, watch)

	close(conn.done)
	lost := watch()
	require.Equal(t, connectionLostMsg{threadID: "t1"}, lost)

	_, resubscribe := m.Update(lost)
	assert.Empty(t, m.subscribed)
	assert.NotNil(t, m.pollIfDue(time.Now()), "polling resumes while reconnecting")
	require.NotNil(t, resubscribe)
	m.Update(resubscribe())
	assert.Equal(t, "t1", m.subscribed)
}

func TestStaleConnectionLossIgnored(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m.subscribed = "t1"

	_, cmd := m.Update(connectionLostMsg{threadID: "t2"})
	assert.Nil(t, cmd)
	assert.Equal(t, "t1", m.subscribed)
}

func TestViewLeavesLayoutUntouched(t *testing.T) {
	m, _ := newTestModel(t, nil)
	msgs := make([]models.Message, 40)
	for i := range msgs {
		msgs[i] = models.Message{ID: fmt.Sprintf("m%d", i), Sender: "Harbor Clinic", Text: fmt.Sprintf("note %d", i), Status: models.MessageSent}
	}
	m.Update(messagesLoadedMsg{threadID: "t1", messages: msgs})
	require.True(t, m.followTail)
	require.Positive(t, m.scrollTop, "layout in Update keeps the tail in view")
	require.True(t, m.list.Mounted(39))
	require.False(t, m.list.Mounted(0))

	m.scrollTop = 0
	m.followTail = false
	first := m.View()
	assert.Equal(t, 0, m.scrollTop)
	assert.False(t, m.list.Mounted(0), "View does not mount")
	assert.Equal(t, first, m.View())

	m.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	assert.True(t, m.list.Mounted(0))
	assert.Contains(t, m.View(), "note 0")
}
