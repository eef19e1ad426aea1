package chat

import (
	"sync"

	"github.com/Cross4solution/MedGama-sub003/internal/models"
)

// Timeline is the ordered message list of one thread. Status changes only
// move forward; see models.CanAdvance.
type Timeline struct {
	mu       sync.RWMutex
	messages []models.Message
	index    map[string]int
	version  int
}

func NewTimeline(messages ...models.Message) *Timeline {
	t := &Timeline{index: map[string]int{}}
	for _, m := range messages {
		t.appendLocked(m)
	}
	return t
}

func (t *Timeline) appendLocked(m models.Message) {
	t.index[m.ID] = len(t.messages)
	t.messages = append(t.messages, m)
	t.version++
}

// Append adds a message unless one with the same id is already present.
func (t *Timeline) Append(m models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[m.ID]; ok {
		return false
	}
	t.appendLocked(m)
	return true
}

// Apply moves message id to status when that is a forward transition.
// Regressions, unknown ids and transitions out of failed are ignored.
func (t *Timeline) Apply(id string, status models.MessageStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[id]
	if !ok || !models.CanAdvance(t.messages[i].Status, status) {
		return false
	}
	t.messages[i].Status = status
	t.version++
	return true
}

// Adopt replaces the local id of an optimistic message with the server's and
// advances it to at least sent.
func (t *Timeline) Adopt(localID string, server models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[localID]
	if !ok {
		return false
	}
	msg := t.messages[i]
	if server.ID != "" && server.ID != localID {
		if _, dup := t.index[server.ID]; dup {
			// the server copy arrived first, via push or poll
			t.removeLocked(i)
			return true
		}
		delete(t.index, localID)
		msg.ID = server.ID
		t.index[msg.ID] = i
	}
	status := models.MessageSent
	if server.Status.Rank() > status.Rank() {
		status = server.Status
	}
	if models.CanAdvance(msg.Status, status) {
		msg.Status = status
	}
	if len(server.Attachments) > 0 {
		msg.Attachments = server.Attachments
	}
	if !server.Time.IsZero() {
		msg.Time = server.Time
	}
	t.messages[i] = msg
	t.version++
	return true
}

// Retry moves a failed message back to sending and returns it.
func (t *Timeline) Retry(id string) (models.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[id]
	if !ok || t.messages[i].Status != models.MessageFailed {
		return models.Message{}, false
	}
	t.messages[i].Status = models.MessageSending
	t.version++
	return t.messages[i], true
}

// Merge folds a server listing into the timeline: unknown messages are
// appended and known ones may only advance.
func (t *Timeline) Merge(messages []models.Message) int {
	changed := 0
	for _, m := range messages {
		if t.Append(m) || t.Apply(m.ID, m.Status) {
			changed++
		}
	}
	return changed
}

func (t *Timeline) removeLocked(i int) {
	t.messages = append(t.messages[:i], t.messages[i+1:]...)
	t.index = make(map[string]int, len(t.messages))
	for j, m := range t.messages {
		t.index[m.ID] = j
	}
	t.version++
}

func (t *Timeline) Get(id string) (models.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[id]
	if !ok {
		return models.Message{}, false
	}
	return t.messages[i], true
}

// Messages returns a copy of the messages in order.
func (t *Timeline) Messages() []models.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Version increases on every change; renderers use it to skip redraws.
func (t *Timeline) Version() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}
