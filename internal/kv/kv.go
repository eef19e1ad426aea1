// Package kv provides the durable string-keyed document store used by the
// connection graph and the real-time credentials. Drivers register themselves
// by name; memory is built in, the others live in sub-packages.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("kv: key not found")

// Store is a string-keyed get/set document store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// DriverConfig carries the settings any driver may need.
type DriverConfig struct {
	DSN      string
	Path     string
	Addr     string
	Password string
	DB       int
}

// Factory opens a store for a driver.
type Factory func(ctx context.Context, cfg DriverConfig) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Factory{}
)

// Register makes a driver available by name. Registering the same name twice panics.
func Register(name string, factory Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("kv: Register called twice for driver " + name)
	}
	drivers[name] = factory
}

// Drivers lists the registered driver names.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens a store with the named driver.
func Open(ctx context.Context, name string, cfg DriverConfig) (Store, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("kv: unknown driver %q (registered: %v)", name, Drivers())
	}
	store, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", name, err)
	}
	return store, nil
}

// LoadJSON reads key and decodes it into a T. A nil store, a missing key, a
// backend failure or malformed JSON all yield def; the latter two are logged.
func LoadJSON[T any](ctx context.Context, s Store, key string, def T) T {
	if s == nil {
		return def
	}
	raw, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("kv read failed key=%s err=%v", key, err)
		}
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Printf("kv document malformed, using default key=%s err=%v", key, err)
		return def
	}
	return v
}

// SaveJSON encodes v and writes it under key.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	if s == nil {
		return errors.New("kv: no store configured")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// GetString returns the raw value of key, or "" when it cannot be read.
func GetString(ctx context.Context, s Store, key string) string {
	if s == nil {
		return ""
	}
	raw, err := s.Get(ctx, key)
	if err != nil {
		return ""
	}
	return string(raw)
}
