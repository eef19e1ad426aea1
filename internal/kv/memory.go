package kv

import (
	"context"
	"sync"
)

func init() {
	Register("memory", func(context.Context, DriverConfig) (Store, error) {
		return NewMemory(), nil
	})
}

// Memory is an in-process Store. Values are copied on the way in and out.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = cp
	return nil
}

func (m *Memory) Close() error {
	return nil
}
