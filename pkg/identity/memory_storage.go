package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type providerKey struct {
	provider       string
	providerUserID string
}

// MemoryStorage implements Storage in process memory. Suitable for tests and
// single-instance development.
type MemoryStorage struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*Account
	byEmail  map[string]uuid.UUID
	byOAuth  map[providerKey]uuid.UUID
	oauthFor map[uuid.UUID][]providerKey
}

// NewMemoryStorage creates an empty in-memory account storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byID:     make(map[uuid.UUID]*Account),
		byEmail:  make(map[string]uuid.UUID),
		byOAuth:  make(map[providerKey]uuid.UUID),
		oauthFor: make(map[uuid.UUID][]providerKey),
	}
}

func (s *MemoryStorage) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *MemoryStorage) GetByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *s.byID[id]
	return &copied, nil
}

func (s *MemoryStorage) Create(ctx context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[account.Email]; exists {
		return ErrEmailAlreadyExists
	}

	copied := *account
	s.byID[account.ID] = &copied
	s.byEmail[account.Email] = account.ID
	return nil
}

func (s *MemoryStorage) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.IsVerified = verified
	return nil
}

func (s *MemoryStorage) GetByProvider(ctx context.Context, provider, providerUserID string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOAuth[providerKey{provider, providerUserID}]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *s.byID[id]
	return &copied, nil
}

func (s *MemoryStorage) LinkProvider(ctx context.Context, accountID uuid.UUID, provider, providerUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[accountID]; !ok {
		return ErrAccountNotFound
	}

	key := providerKey{provider, providerUserID}
	if linked, ok := s.byOAuth[key]; ok && linked != accountID {
		return ErrProviderLinked
	}

	s.byOAuth[key] = accountID
	s.oauthFor[accountID] = append(s.oauthFor[accountID], key)
	return nil
}

var _ Storage = (*MemoryStorage)(nil)
