package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/signupkit/pkg/identity"
)

func newAccount(email string) *identity.Account {
	return &identity.Account{
		ID:         uuid.New(),
		Email:      email,
		AuthMethod: identity.MethodMagicLink,
		CreatedAt:  time.Now(),
	}
}

func TestMemoryStorage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("create and fetch", func(t *testing.T) {
		t.Parallel()

		store := identity.NewMemoryStorage()
		account := newAccount("user@example.com")
		require.NoError(t, store.Create(ctx, account))

		byID, err := store.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, account.Email, byID.Email)

		byEmail, err := store.GetByEmail(ctx, "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, account.ID, byEmail.ID)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		t.Parallel()

		store := identity.NewMemoryStorage()
		require.NoError(t, store.Create(ctx, newAccount("dup@example.com")))

		err := store.Create(ctx, newAccount("dup@example.com"))
		assert.ErrorIs(t, err, identity.ErrEmailAlreadyExists)
	})

	t.Run("missing account", func(t *testing.T) {
		t.Parallel()

		store := identity.NewMemoryStorage()
		_, err := store.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, identity.ErrAccountNotFound)

		_, err = store.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, identity.ErrAccountNotFound)
	})

	t.Run("set verified", func(t *testing.T) {
		t.Parallel()

		store := identity.NewMemoryStorage()
		account := newAccount("verify@example.com")
		require.NoError(t, store.Create(ctx, account))

		require.NoError(t, store.SetVerified(ctx, account.ID, true))
		got, err := store.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, got.IsVerified)

		assert.ErrorIs(t, store.SetVerified(ctx, uuid.New(), true), identity.ErrAccountNotFound)
	})

	t.Run("provider linking", func(t *testing.T) {
		t.Parallel()

		store := identity.NewMemoryStorage()
		account := newAccount("oauth@example.com")
		require.NoError(t, store.Create(ctx, account))

		require.NoError(t, store.LinkProvider(ctx, account.ID, "google", "uid-1"))

		got, err := store.GetByProvider(ctx, "google", "uid-1")
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)

		// Re-linking the same identity to the same account is fine.
		require.NoError(t, store.LinkProvider(ctx, account.ID, "google", "uid-1"))

		other := newAccount("other@example.com")
		require.NoError(t, store.Create(ctx, other))
		assert.ErrorIs(t, store.LinkProvider(ctx, other.ID, "google", "uid-1"), identity.ErrProviderLinked)
	})

	t.Run("returned accounts are copies", func(t *testing.T) {
		t.Parallel()

		store := identity.NewMemoryStorage()
		account := newAccount("copy@example.com")
		require.NoError(t, store.Create(ctx, account))

		got, err := store.GetByID(ctx, account.ID)
		require.NoError(t, err)
		got.Email = "mutated@example.com"

		again, err := store.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "copy@example.com", again.Email)
	})
}
