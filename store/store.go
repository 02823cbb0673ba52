// Package store abstracts where serialized conversation state lives. Drivers
// exist for process memory, Redis and Postgres.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists for a key.
var ErrNotFound = errors.New("store: not found")

// Store persists opaque per-conversation blobs keyed by conversation id.
type Store interface {
	// Load returns the blob for key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save writes the blob for key, replacing any previous value.
	Save(ctx context.Context, key string, blob []byte) error
	// Delete removes the blob for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
