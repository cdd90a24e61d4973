// Package session provides the key-value stores that keep the access token
// and user id between runs.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entry is one stored key with its value.
type Entry struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists string values by key.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set creates or replaces the value for key.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every entry, most recently updated first.
	List(ctx context.Context) ([]*Entry, error)
	Close() error
}

// NewStore creates the configured storage backend.
func NewStore(typ, path string) (Store, error) {
	switch strings.TrimSpace(strings.ToLower(typ)) {
	case "", "memory", "none":
		return NewMemoryStore(), nil
	case "sqlite":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("session: sqlite storage requires a path")
		}
		return NewSQLiteStore(path)
	case "bbolt", "bolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("session: bbolt storage requires a path")
		}
		return NewBoltStore(path)
	default:
		return nil, fmt.Errorf("session: unsupported storage type %q", typ)
	}
}
