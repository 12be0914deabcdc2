// Package cache provides the TTL-bounded cache client used for binding
// transactions and DPoP replay detection. Check-and-mark semantics are built
// on PutIfAbsent, which every backend must implement as a single atomic
// operation.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no live entry exists for the key.
var ErrNotFound = errors.New("cache entry not found")

// Client is a minimal TTL cache. Implementations must be safe for concurrent
// use; PutIfAbsent in particular must not allow two concurrent callers for
// the same key to both observe "absent".
type Client interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key with the given TTL, replacing any
	// existing entry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// PutIfAbsent stores value under key only if no live entry exists.
	// Returns true if the value was stored, false if an entry was already
	// present.
	PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes the entry for key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
	// Close releases any resources held by the client.
	Close() error
}
