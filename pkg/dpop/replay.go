// Package dpop validates DPoP proof JWTs (RFC 9449) bound to HTTP requests
// and, for resource endpoints, to the access token presented alongside them.
package dpop

import (
	"context"
	"fmt"
	"time"

	"github.com/mosip/esignet-binding/pkg/cache"
)

const (
	replayKeyPrefix = "dpop:jti:"

	// DefaultClockSkew is the accepted iat drift in either direction.
	DefaultClockSkew = 5 * time.Minute
)

// ReplayCache records consumed proof jti values. Entries live at least as
// long as the clock-skew window so a delayed proof cannot outlive its own
// replay record.
type ReplayCache struct {
	cache cache.Client
	ttl   time.Duration
}

// NewReplayCache creates a replay cache. ttl is raised to the clock-skew
// window when set lower.
func NewReplayCache(c cache.Client, ttl, clockSkew time.Duration) *ReplayCache {
	if clockSkew <= 0 {
		clockSkew = DefaultClockSkew
	}
	if ttl < clockSkew {
		ttl = clockSkew
	}
	return &ReplayCache{cache: c, ttl: ttl}
}

// CheckAndMark atomically tests and records a jti. It returns true when the
// jti was already present, i.e. a replay.
func (r *ReplayCache) CheckAndMark(ctx context.Context, jti string) (bool, error) {
	stored, err := r.cache.PutIfAbsent(ctx, replayKeyPrefix+jti, "1", r.ttl)
	if err != nil {
		return false, fmt.Errorf("replay cache unavailable: %w", err)
	}
	return !stored, nil
}
