package attachments

import (
	"fmt"
	"sync"
)

// PreviewRegistry hands out local preview references for staged images.
// Every reference must be revoked when its file leaves the stage.
type PreviewRegistry interface {
	Create(c Candidate) (string, error)
	Revoke(ref string)
}

// MemoryPreviews is an in-process PreviewRegistry that tracks outstanding references.
type MemoryPreviews struct {
	mu   sync.Mutex
	next int
	live map[string]string
}

func NewMemoryPreviews() *MemoryPreviews {
	return &MemoryPreviews{live: map[string]string{}}
}

func (m *MemoryPreviews) Create(c Candidate) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	ref := fmt.Sprintf("preview://%d/%s", m.next, c.Name)
	m.live[ref] = c.Name
	return ref, nil
}

func (m *MemoryPreviews) Revoke(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, ref)
}

// Live returns the number of references not yet revoked.
func (m *MemoryPreviews) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}
