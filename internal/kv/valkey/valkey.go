// Package valkey is a kv driver for Valkey/Redis servers.
package valkey

import (
	"context"
	"errors"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/Cross4solution/MedGama-sub003/internal/kv"
)

func init() {
	kv.Register("valkey", func(ctx context.Context, cfg kv.DriverConfig) (kv.Store, error) {
		return New(ctx, Config{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	})
}

// Config holds the connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// RESP2 forces the RESP2 protocol for servers without HELLO 3.
	RESP2 bool
}

// Store implements kv.Store with one valkey client.
type Store struct {
	client valkey.Client
}

// New connects and pings the server; it fails fast when the server is unreachable.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is empty")
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{cfg.Addr},
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  cfg.RESP2,
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, kv.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(value)).Build()).Error()
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}
