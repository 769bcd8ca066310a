package kv

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map and a background
// cleanup loop for expired entries.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets the cleanup interval for expired entries.
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
		entries:         make(map[string]*entry),
		cleanupInterval: time.Minute,
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
			now := time.Now()
			s.mu.Lock()
			for key, e := range s.entries {
				if e.expired(now) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}

	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrKeyRequired
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	e := &entry{value: stored}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		delete(s.entries, key)
		return false, nil
	}
	if !bytes.Equal(e.value, old) {
		return false, nil
	}

	stored := make([]byte, len(next))
	copy(stored, next)
	e.value = stored
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return true, nil
}

func (s *MemoryStore) GetDel(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}

	delete(s.entries, key)
	return e.value, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
