package funnel

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	abandonments map[string]*Abandonment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string]*Session),
		abandonments: make(map[string]*Abandonment),
	}
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) SaveSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// First terminal state wins. A stale snapshot saved after another writer
	// already terminated the session must not change or add terminal marks.
	if prev, ok := s.sessions[session.SessionID]; ok && prev.Stage.Terminal() {
		return nil
	}
	cp := *session
	s.sessions[session.SessionID] = &cp
	return nil
}

func (s *MemoryStore) SaveAbandonment(_ context.Context, rec *Abandonment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.abandonments[rec.SessionID] = &cp
	return nil
}

func (s *MemoryStore) GetAbandonment(_ context.Context, sessionID string) (*Abandonment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.abandonments[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
