// Package identity holds the account model shared by the magic-link and
// OAuth authentication paths, and the storage contract both resolve accounts
// through. Accounts are deduplicated by verified email: one email, one
// account, regardless of which method created it.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Authentication method identifiers used to track how an account was
// created.
const (
	MethodMagicLink   = "magic_link"
	MethodOAuthGoogle = "oauth_google"
	MethodOAuthApple  = "oauth_apple"
)

// Account represents a user account.
type Account struct {
	ID         uuid.UUID
	Email      string
	Name       string // display name, optional
	AuthMethod string
	IsVerified bool
	CreatedAt  time.Time
}

// Storage defines account persistence operations. GetByEmail and
// GetByProvider return ErrAccountNotFound for missing accounts.
type Storage interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error

	// Provider link operations used by the OAuth path.
	GetByProvider(ctx context.Context, provider, providerUserID string) (*Account, error)
	LinkProvider(ctx context.Context, accountID uuid.UUID, provider, providerUserID string) error
}
