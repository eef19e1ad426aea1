package attachments

import (
	"fmt"
	"sync"
)

// ValidationError is the single user-facing message for a rejected batch.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Staged is an accepted candidate and its preview reference, if any.
type Staged struct {
	Candidate
	Preview string
}

// Stage holds the files attached to the message being composed.
type Stage struct {
	mu       sync.Mutex
	policy   Policy
	previews PreviewRegistry
	items    []Staged
}

// NewStage builds a Stage. A nil registry disables previews.
func NewStage(policy Policy, previews PreviewRegistry) *Stage {
	return &Stage{policy: policy, previews: previews}
}

// Add validates the whole batch and stages it, or rejects it entirely.
// Previously staged files are untouched on rejection.
func (s *Stage) Add(batch []Candidate) error {
	if len(batch) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items)+len(batch) > MaxFiles {
		return &ValidationError{Message: fmt.Sprintf("You can attach at most %d files.", MaxFiles)}
	}
	for _, c := range batch {
		if c.Size > MaxFileSize {
			return &ValidationError{Message: fmt.Sprintf("%q is %s; files must be %d MB or smaller.", c.Name, FormatSize(c.Size), MaxFileSize>>20)}
		}
	}
	for _, c := range batch {
		if !s.policy.Accepts(c) {
			return &ValidationError{Message: fmt.Sprintf("%q is not a supported file type.", c.Name)}
		}
	}

	added := make([]Staged, 0, len(batch))
	for _, c := range batch {
		item := Staged{Candidate: c}
		if s.previews != nil && s.policy.Previewable(c) {
			ref, err := s.previews.Create(c)
			if err != nil {
				for _, a := range added {
					s.revoke(a)
				}
				return &ValidationError{Message: fmt.Sprintf("Could not preview %q.", c.Name)}
			}
			item.Preview = ref
		}
		added = append(added, item)
	}
	s.items = append(s.items, added...)
	return nil
}

// Remove drops the file at index i and revokes its preview.
func (s *Stage) Remove(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.items) {
		return fmt.Errorf("attachment index %d out of range", i)
	}
	s.revoke(s.items[i])
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

// Clear drops every file and revokes all previews.
func (s *Stage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		s.revoke(item)
	}
	s.items = nil
}

// Take empties the stage and hands the files to the caller, previews still
// live. The caller returns them with Release once they are no longer shown.
func (s *Stage) Take() []Staged {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.items
	s.items = nil
	return out
}

// Release revokes the previews of files previously taken from the stage.
func (s *Stage) Release(items []Staged) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.revoke(item)
	}
}

// Items returns a copy of the staged files in order.
func (s *Stage) Items() []Staged {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Staged, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Stage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Stage) revoke(item Staged) {
	if item.Preview != "" && s.previews != nil {
		s.previews.Revoke(item.Preview)
	}
}
