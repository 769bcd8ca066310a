package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process timestamp slices.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	cleanupInterval time.Duration
	maxWindow       time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often fully expired keys are dropped.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// NewMemoryStore creates an in-memory store with automatic cleanup.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string][]time.Time),
		cleanupInterval: time.Minute,
		maxWindow:       time.Hour,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Close stops the background cleanup goroutine.
func (s *MemoryStore) Close() {
	s.cleanupOnce.Do(func() { close(s.stopCleanup) })
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.maxWindow)
			s.mu.Lock()
			for key, stamps := range s.windows {
				live := prune(stamps, cutoff)
				if len(live) == 0 {
					delete(s.windows, key)
				} else {
					s.windows[key] = live
				}
			}
			s.mu.Unlock()
		}
	}
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	return live
}

func (s *MemoryStore) RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := prune(s.windows[key], now.Add(-window))
	if len(live) >= limit {
		s.windows[key] = live
		return false, int64(len(live)), nil
	}

	live = append(live, now)
	s.windows[key] = live
	if window > s.maxWindow {
		s.maxWindow = window
	}
	return true, int64(len(live)), nil
}

func (s *MemoryStore) CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	count := int64(0)
	for _, ts := range s.windows[key] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.windows, key)
	s.mu.Unlock()
	return nil
}
