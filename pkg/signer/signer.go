package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const minSecretLength = 32

// Signer signs and verifies opaque payloads with a server-held secret.
// The zero value is not usable; construct with New.
type Signer struct {
	secret []byte
}

// New creates a Signer from the given secret. Secrets shorter than 32
// characters are rejected to keep the HMAC key space reasonable.
func New(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("%w: got %d chars, need at least %d", ErrSecretTooShort, len(secret), minSecretLength)
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the base64url-encoded HMAC-SHA256 signature of payload.
func (s *Signer) Sign(payload []byte) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write(payload)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature is a valid signature of payload.
// The comparison runs in constant time with respect to the signature bytes.
func (s *Signer) Verify(payload []byte, signature string) bool {
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	h := hmac.New(sha256.New, s.secret)
	h.Write(payload)
	expected := h.Sum(nil)

	return subtle.ConstantTimeCompare(sig, expected) == 1
}
