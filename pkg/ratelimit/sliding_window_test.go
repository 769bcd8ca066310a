package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/signupkit/pkg/ratelimit"
)

func newLimiter(t *testing.T, limit int, window time.Duration) (*ratelimit.SlidingWindow, *ratelimit.MemoryStore) {
	t.Helper()
	store := ratelimit.NewMemoryStore()
	t.Cleanup(store.Close)

	limiter, err := ratelimit.NewSlidingWindow(store, limit, window)
	require.NoError(t, err)
	return limiter, store
}

func TestNewSlidingWindowValidation(t *testing.T) {
	t.Parallel()

	store := ratelimit.NewMemoryStore()
	t.Cleanup(store.Close)

	_, err := ratelimit.NewSlidingWindow(nil, 3, time.Hour)
	assert.ErrorIs(t, err, ratelimit.ErrStoreRequired)

	_, err = ratelimit.NewSlidingWindow(store, 0, time.Hour)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidLimit)

	_, err = ratelimit.NewSlidingWindow(store, 3, 0)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidInterval)
}

// 4 requests against a limit of 3 per hour: exactly 3 allowed, 1 rejected.
func TestAllowEnforcesLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _ := newLimiter(t, 3, time.Hour)

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "user@example.com")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
	}

	res, err := limiter.Allow(ctx, "user@example.com")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter(), time.Duration(0))
}

func TestAllowIsolatesKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _ := newLimiter(t, 1, time.Hour)

	res, err := limiter.Allow(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "b@example.com")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestWindowSlides(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _ := newLimiter(t, 1, 50*time.Millisecond)

	res, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	time.Sleep(60 * time.Millisecond)

	res, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestStatusDoesNotConsume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _ := newLimiter(t, 2, time.Hour)

	for i := 0; i < 5; i++ {
		res, err := limiter.Status(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2, res.Remaining)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _ := newLimiter(t, 1, time.Hour)

	_, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, limiter.Reset(ctx, "k"))

	res, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

// The check-and-record must be atomic: concurrent requests from the same key
// never admit more than the limit.
func TestAllowConcurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _ := newLimiter(t, 3, time.Hour)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Allow(ctx, "same-key")
			require.NoError(t, err)
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), allowed.Load())
}
