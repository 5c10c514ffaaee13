// Package store persists serialized bundles under string keys.
//
// A Store is best-effort from the loader's point of view: a failed read is
// treated like a miss, while a failed write is reported to the caller.
package store

import (
	"context"
	"errors"
)

// ErrValueTooLarge is returned when a backend refuses a value because of a
// size limit or quota.
var ErrValueTooLarge = errors.New("store: value exceeds size limit")

// Store is a string key-value store.
type Store interface {
	// Read returns the value under key. ok is false when the key is absent.
	Read(ctx context.Context, key string) (value string, ok bool, err error)
	// Write replaces the value under key.
	Write(ctx context.Context, key, value string) error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*File)(nil)
	_ Store = (*Redis)(nil)
	_ Store = (*SQL)(nil)
)
