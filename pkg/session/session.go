package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated browser session established after a successful
// magic link redemption or OAuth callback.
type Session struct {
	ID         uuid.UUID `json:"id"`
	AccountID  uuid.UUID `json:"account_id"`
	Email      string    `json:"email"`
	AuthMethod string    `json:"auth_method"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsExpired reports whether the session is past its expiry.
func (s *Session) IsExpired() bool {
	return s != nil && time.Now().After(s.ExpiresAt)
}
