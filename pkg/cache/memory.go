package cache

import (
	"context"
	"sync"
	"time"
)

// defaultCleanupInterval is how often the janitor sweeps expired entries.
const defaultCleanupInterval = 30 * time.Second

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryClient is an in-process Client backed by a sync.Map. PutIfAbsent uses
// LoadOrStore/CompareAndSwap so the check-and-mark is atomic without a global
// lock.
type MemoryClient struct {
	entries sync.Map

	stopCleanup chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// NewMemoryClient creates an in-memory cache client with a background janitor
// that sweeps expired entries.
func NewMemoryClient() *MemoryClient {
	c := &MemoryClient{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go c.cleanupLoop(defaultCleanupInterval)
	return c
}

// Get returns the live value stored under key.
func (c *MemoryClient) Get(_ context.Context, key string) (string, error) {
	v, ok := c.entries.Load(key)
	if !ok {
		return "", ErrNotFound
	}
	entry := v.(*memoryEntry)
	if entry.expired(time.Now()) {
		c.entries.CompareAndDelete(key, v)
		return "", ErrNotFound
	}
	return entry.value, nil
}

// Set stores value under key, replacing any existing entry.
func (c *MemoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.entries.Store(key, newEntry(value, ttl))
	return nil
}

// PutIfAbsent stores value under key only if no live entry exists.
func (c *MemoryClient) PutIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	entry := newEntry(value, ttl)

	existing, loaded := c.entries.LoadOrStore(key, entry)
	if !loaded {
		return true, nil
	}

	// An entry is present; it only counts if it is still live.
	if !existing.(*memoryEntry).expired(time.Now()) {
		return false, nil
	}

	// Expired entry: try to take its place. A CAS failure means another
	// caller already did, so the key is taken.
	if c.entries.CompareAndSwap(key, existing, entry) {
		return true, nil
	}
	return false, nil
}

// Delete removes the entry for key.
func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.entries.Delete(key)
	return nil
}

// Close stops the janitor goroutine.
func (c *MemoryClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
		<-c.cleanupDone
	})
	return nil
}

func newEntry(value string, ttl time.Duration) *memoryEntry {
	e := &memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return e
}

func (c *MemoryClient) cleanupLoop(interval time.Duration) {
	defer close(c.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCleanup:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *MemoryClient) cleanup() {
	now := time.Now()
	c.entries.Range(func(key, value any) bool {
		if value.(*memoryEntry).expired(now) {
			c.entries.CompareAndDelete(key, value)
		}
		return true
	})
}
