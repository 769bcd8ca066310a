// Package cookie manages HTTP cookies with optional tamper-evident signing.
// Signed cookies append an HMAC signature to the value so the server can
// detect client-side modification without persisting anything.
package cookie

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrymomot/signupkit/pkg/signer"
)

// Manager sets, reads, and deletes cookies with shared defaults.
type Manager struct {
	signer   *signer.Signer
	defaults Options
}

// New creates a cookie Manager. The secret is used for signed cookies.
func New(secret string, opts ...Option) (*Manager, error) {
	s, err := signer.New(secret)
	if err != nil {
		return nil, err
	}

	defaults := Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	defaults = applyOptions(defaults, opts)

	return &Manager{signer: s, defaults: defaults}, nil
}

// Set writes a cookie with the manager defaults overridden by opts.
func (m *Manager) Set(w http.ResponseWriter, name, value string, opts ...Option) {
	options := applyOptions(m.defaults, opts)

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     options.Path,
		Domain:   options.Domain,
		MaxAge:   options.MaxAge,
		Secure:   options.Secure,
		HttpOnly: options.HttpOnly,
		SameSite: options.SameSite,
	})
}

// Get returns the raw value of the named cookie.
func (m *Manager) Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrCookieNotFound
		}
		return "", err
	}
	return c.Value, nil
}

// SetSigned writes a cookie whose value carries an HMAC signature.
func (m *Manager) SetSigned(w http.ResponseWriter, name, value string, opts ...Option) {
	signed := value + "|" + m.signer.Sign([]byte(value))
	m.Set(w, name, signed, opts...)
}

// GetSigned reads a signed cookie and verifies its signature.
// Returns ErrInvalidSignature when the value was tampered with.
func (m *Manager) GetSigned(r *http.Request, name string) (string, error) {
	raw, err := m.Get(r, name)
	if err != nil {
		return "", err
	}

	idx := strings.LastIndex(raw, "|")
	if idx < 0 {
		return "", ErrInvalidSignature
	}

	value, sig := raw[:idx], raw[idx+1:]
	if !m.signer.Verify([]byte(value), sig) {
		return "", ErrInvalidSignature
	}
	return value, nil
}

// Delete expires the named cookie immediately.
func (m *Manager) Delete(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     m.defaults.Path,
		Domain:   m.defaults.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   m.defaults.Secure,
		HttpOnly: m.defaults.HttpOnly,
		SameSite: m.defaults.SameSite,
	})
}
