// Package postgres is a kv driver that keeps documents in a single Postgres table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Cross4solution/MedGama-sub003/internal/kv"
)

func init() {
	kv.Register("postgres", func(ctx context.Context, cfg kv.DriverConfig) (kv.Store, error) {
		return Connect(ctx, cfg.DSN)
	})
}

// Store is a sqlx-backed kv.Store.
type Store struct {
	db *sqlx.DB
}

// Connect opens the database and runs migrations.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// New wraps an existing connection. Migrations are not run.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS kv_documents (
            key TEXT PRIMARY KEY,
            value BYTEA NOT NULL,
            updated_at TIMESTAMPTZ DEFAULT NOW()
        );`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	log.Println("kv migrations applied")
	return nil
}

// Get returns the stored document for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv_documents WHERE key=$1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	return value, err
}

// Set replaces the whole document under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv_documents (key, value, updated_at) VALUES ($1, $2, NOW())
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
