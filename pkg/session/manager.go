package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/signupkit/pkg/cookie"
	"github.com/dmitrymomot/signupkit/pkg/identity"
	"github.com/dmitrymomot/signupkit/pkg/kv"
)

const sessionKeyPrefix = "session:"

// Config holds session manager configuration.
type Config struct {
	TTL          time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	CookieName   string        `env:"SESSION_COOKIE_NAME" envDefault:"session_id"`
	CookieSecure bool          `env:"SESSION_COOKIE_SECURE" envDefault:"true"`
}

// Manager issues and resolves authenticated sessions. Session records live
// in a kv.Store; the browser only carries the signed session id in an
// HttpOnly Lax cookie.
type Manager struct {
	store   kv.Store
	cookies *cookie.Manager

	ttl        time.Duration
	cookieName string
	secure     bool
}

// NewManager creates a session manager.
func NewManager(cfg Config, store kv.Store, cookies *cookie.Manager) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	name := cfg.CookieName
	if name == "" {
		name = "session_id"
	}

	return &Manager{
		store:      store,
		cookies:    cookies,
		ttl:        ttl,
		cookieName: name,
		secure:     cfg.CookieSecure,
	}
}

// Start creates a session for the account and sets the session cookie.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, account *identity.Account) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:         uuid.New(),
		AccountID:  account.ID,
		Email:      account.Email,
		AuthMethod: account.AuthMethod,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("session: marshal: %w", err)
	}
	if err := m.store.Set(ctx, sessionKeyPrefix+sess.ID.String(), data, m.ttl); err != nil {
		return nil, fmt.Errorf("session: store: %w", err)
	}

	m.cookies.SetSigned(w, m.cookieName, sess.ID.String(),
		cookie.WithMaxAge(int(m.ttl.Seconds())),
		cookie.WithHTTPOnly(true),
		cookie.WithSecure(m.secure),
		cookie.WithSameSite(http.SameSiteLaxMode),
	)
	return sess, nil
}

// FromRequest resolves the session referenced by the request cookie.
func (m *Manager) FromRequest(ctx context.Context, r *http.Request) (*Session, error) {
	id, err := m.cookies.GetSigned(r, m.cookieName)
	if err != nil {
		return nil, ErrNoSession
	}

	data, err := m.store.Get(ctx, sessionKeyPrefix+id)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	if sess.IsExpired() {
		_ = m.store.Delete(ctx, sessionKeyPrefix+id)
		return nil, ErrSessionExpired
	}
	return &sess, nil
}

// Destroy removes the session record and clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := m.cookies.GetSigned(r, m.cookieName)
	if err == nil {
		if err := m.store.Delete(ctx, sessionKeyPrefix+id); err != nil {
			return fmt.Errorf("session: delete: %w", err)
		}
	}
	m.cookies.Delete(w, m.cookieName)
	return nil
}
