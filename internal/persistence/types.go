// Package persistence stores session snapshots so tracking survives process
// restarts. Snapshots are opaque bytes keyed by string.
package persistence

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no snapshot exists for the key.
var ErrNotFound = errors.New("snapshot not found")

// Store is a small key/value byte store.
type Store interface {
	Save(ctx context.Context, key string, snapshot []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
