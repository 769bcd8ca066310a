// Package ratelimit provides a sliding-window rate limiter with pluggable
// storage. The check-and-record path is a single atomic store operation, so
// concurrent requests for the same key (multiple tabs, retried submissions)
// cannot both slip under the limit.
package ratelimit

import (
	"context"
	"time"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is when the oldest recorded request leaves the window.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Limiter checks and consumes rate limit slots per key.
type Limiter interface {
	// Allow checks if a single request is allowed for the given key and,
	// if so, consumes one slot.
	Allow(ctx context.Context, key string) (*Result, error)

	// Status returns the current state for key without consuming a slot.
	Status(ctx context.Context, key string) (*Result, error)

	// Reset clears the window for key.
	Reset(ctx context.Context, key string) error
}

// Store persists sliding window timestamps.
type Store interface {
	// RecordIfAllowed atomically counts live timestamps in the window and
	// records a new one when the count is below limit. Returns whether the
	// timestamp was recorded and the resulting count.
	RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (allowed bool, count int64, err error)

	// CountInWindow returns the number of live timestamps for key.
	CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	// Delete removes all recorded timestamps for key.
	Delete(ctx context.Context, key string) error
}
