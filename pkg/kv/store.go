package kv

import (
	"context"
	"time"
)

// Store is a key-value store with TTL semantics and atomic primitives.
// Implementations must make CompareAndSwap and GetDel atomic: two concurrent
// consumers of the same key must never both succeed.
type Store interface {
	// Get returns the value for key, or ErrNotFound if the key does not
	// exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL, replacing any existing
	// value. A zero TTL stores the value without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// CompareAndSwap replaces the value for key with next only if the
	// current value equals old. Returns false when the key is missing,
	// expired, or holds a different value. The TTL is reset on success.
	CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error)

	// GetDel atomically returns and removes the value for key.
	// Returns ErrNotFound if the key does not exist or has expired.
	GetDel(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
