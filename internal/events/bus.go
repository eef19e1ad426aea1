// Package events is a payload-free notification bus. Listeners learn that a
// named document changed and must re-read it themselves.
package events

import "sync"

const (
	InvitesChanged     = "invites:changed"
	ConnectionsChanged = "connections:changed"
)

// Bus dispatches named, payload-free events.
type Bus interface {
	Subscribe(event string, fn func()) (unsubscribe func())
	Dispatch(event string)
}

// Hook observes every dispatched event; used to forward events off-process.
type Hook func(event string)

type listener struct {
	id int
	fn func()
}

// LocalBus delivers events synchronously to in-process listeners.
type LocalBus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[string][]listener
	hooks     []Hook
}

// NewLocalBus creates an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{listeners: make(map[string][]listener)}
}

// Subscribe registers fn for event and returns a function removing it.
func (b *LocalBus) Subscribe(event string, fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[event] = append(b.listeners[event], listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			current := b.listeners[event]
			for i, l := range current {
				if l.id == id {
					b.listeners[event] = append(current[:i:i], current[i+1:]...)
					break
				}
			}
			if len(b.listeners[event]) == 0 {
				delete(b.listeners, event)
			}
		})
	}
}

// OnDispatch adds a hook called for every event passed to Dispatch.
func (b *LocalBus) OnDispatch(h Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, h)
}

// Dispatch notifies local listeners and hooks.
func (b *LocalBus) Dispatch(event string) {
	b.deliver(event)

	b.mu.RLock()
	hooks := append([]Hook(nil), b.hooks...)
	b.mu.RUnlock()
	for _, h := range hooks {
		h(event)
	}
}

// DispatchLocal notifies local listeners only. Events received from other
// instances come in through here so they are not forwarded again.
func (b *LocalBus) DispatchLocal(event string) {
	b.deliver(event)
}

func (b *LocalBus) deliver(event string) {
	b.mu.RLock()
	current := append([]listener(nil), b.listeners[event]...)
	b.mu.RUnlock()
	for _, l := range current {
		l.fn()
	}
}
