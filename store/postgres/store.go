// Package postgres keeps conversation state in a Postgres table, for
// deployments that already run the database and want durable state.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/menukit/core/database"
	"github.com/m3rciful/menukit/store"
)

// Store persists conversation blobs in the conversations table created by
// the bundled migrations.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database handle. The caller keeps ownership and closes it.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres, applies pending migrations and returns a ready
// store. Closing the store closes the connection pool.
func Open(cfg database.Config) (*Store, error) {
	if err := database.RunMigrations(cfg); err != nil {
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}
	return New(db), nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load implements store.Store.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.GetContext(ctx, &blob,
		`SELECT blob FROM conversations WHERE conversation_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load %q: %w", key, err)
	}
	return blob, nil
}

// Save implements store.Store.
func (s *Store) Save(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_key, blob, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (conversation_key)
		 DO UPDATE SET blob = EXCLUDED.blob, updated_at = now()`, key, blob)
	if err != nil {
		return fmt.Errorf("postgres store: save %q: %w", key, err)
	}
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE conversation_key = $1`, key)
	if err != nil {
		return fmt.Errorf("postgres store: delete %q: %w", key, err)
	}
	return nil
}
