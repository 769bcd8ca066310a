package csrf

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrymomot/signupkit/pkg/cookie"
	"github.com/dmitrymomot/signupkit/pkg/signer"
)

// Header and form field the submitted token is read from.
const (
	HeaderName = "X-CSRF-Token"
	FieldName  = "csrf_token"
)

// Config holds CSRF manager configuration.
type Config struct {
	Secret        string        `env:"CSRF_SECRET,required"`
	TokenTTL      time.Duration `env:"CSRF_TOKEN_TTL" envDefault:"1h"`
	RefreshWindow time.Duration `env:"CSRF_REFRESH_WINDOW" envDefault:"5m"`
	CookieName    string        `env:"CSRF_COOKIE_NAME" envDefault:"csrf_token"`
	CookieSecure  bool          `env:"CSRF_COOKIE_SECURE" envDefault:"true"`
}

// Token is an issued CSRF token. Encoded is the wire form handed to clients
// in both the response payload and the double-submit cookie.
type Token struct {
	Encoded   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenPayload struct {
	Value     string `json:"v"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Manager issues, validates, and refreshes CSRF tokens.
type Manager struct {
	signer        *signer.Signer
	cookies       *cookie.Manager
	cookieName    string
	cookieSecure  bool
	ttl           time.Duration
	refreshWindow time.Duration

	now func() time.Time // test seam
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a CSRF token manager from config.
func NewManager(cfg Config, cookies *cookie.Manager, opts ...ManagerOption) (*Manager, error) {
	s, err := signer.New(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("csrf: %w", err)
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	refreshWindow := cfg.RefreshWindow
	if refreshWindow <= 0 {
		refreshWindow = 5 * time.Minute
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "csrf_token"
	}

	m := &Manager{
		signer:        s,
		cookies:       cookies,
		cookieName:    cookieName,
		cookieSecure:  cfg.CookieSecure,
		ttl:           ttl,
		refreshWindow: refreshWindow,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// CookieName returns the name of the double-submit cookie.
func (m *Manager) CookieName() string { return m.cookieName }

// Issue generates a fresh token. The manager is stateless: nothing is
// persisted, the token verifies itself on arrival.
func (m *Manager) Issue() (*Token, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("csrf: generate token value: %w", err)
	}

	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.ttl)

	encoded, err := signer.Encode(m.signer, tokenPayload{
		Value:     base64.RawURLEncoding.EncodeToString(buf),
		IssuedAt:  issuedAt.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("csrf: encode token: %w", err)
	}

	return &Token{
		Encoded:   encoded,
		IssuedAt:  time.Unix(issuedAt.Unix(), 0),
		ExpiresAt: time.Unix(expiresAt.Unix(), 0),
	}, nil
}

// Validate applies the double-submit check: both values present, submitted
// value parses and verifies, token unexpired, and cookie and submitted
// values byte-identical.
func (m *Manager) Validate(cookieValue, submittedValue string) error {
	if cookieValue == "" || submittedValue == "" {
		return ErrMissing
	}

	payload, err := signer.Decode[tokenPayload](m.signer, submittedValue)
	if err != nil {
		if errors.Is(err, signer.ErrSignatureInvalid) {
			return ErrSignatureInvalid
		}
		return ErrMalformed
	}

	if m.now().Unix() >= payload.ExpiresAt {
		return ErrExpired
	}

	// The forged request cannot echo the cookie it cannot read.
	if cookieValue != submittedValue {
		return ErrMismatch
	}

	return nil
}

// Age returns how old the submitted token is, for log context. Returns zero
// when the token does not parse.
func (m *Manager) Age(submittedValue string) time.Duration {
	payload, err := signer.Decode[tokenPayload](m.signer, submittedValue)
	if err != nil {
		return 0
	}
	return m.now().Sub(time.Unix(payload.IssuedAt, 0))
}

// Refresh returns a fresh token when the existing one is expired or within
// the refresh window before expiry. A still-fresh token is returned
// unchanged, which makes repeated refresh calls idempotent while a token
// remains valid.
func (m *Manager) Refresh(existing string) (*Token, error) {
	payload, err := signer.Decode[tokenPayload](m.signer, existing)
	if err != nil {
		return m.Issue()
	}

	expiresAt := time.Unix(payload.ExpiresAt, 0)
	if m.now().After(expiresAt.Add(-m.refreshWindow)) {
		return m.Issue()
	}

	return &Token{
		Encoded:   existing,
		IssuedAt:  time.Unix(payload.IssuedAt, 0),
		ExpiresAt: expiresAt,
	}, nil
}

// SetCookie writes the double-submit cookie. It is intentionally readable by
// client script (httpOnly=false) so the client can echo the value in the
// X-CSRF-Token header; SameSite=Strict keeps it off cross-site requests.
func (m *Manager) SetCookie(w http.ResponseWriter, token *Token) {
	m.cookies.Set(w, m.cookieName, token.Encoded,
		cookie.WithHTTPOnly(false),
		cookie.WithSecure(m.cookieSecure),
		cookie.WithSameSite(http.SameSiteStrictMode),
		cookie.WithMaxAge(int(m.ttl.Seconds())),
	)
}

// TokenFromRequest extracts the submitted token from the header or, for form
// posts, the csrf_token field.
func TokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(HeaderName); token != "" {
		return token
	}
	return r.PostFormValue(FieldName)
}
