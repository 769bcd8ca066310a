package signer

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Encode creates a compact signed token by JSON encoding the payload and
// appending its signature: base64url(payload).base64url(signature).
func Encode[T any](s *Signer, payload T) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(data) + "." + s.Sign(data), nil
}

// Decode verifies the token's signature and unmarshals the JSON payload into
// the generic type. Returns ErrMalformedToken for structurally invalid tokens
// and ErrSignatureInvalid when verification fails.
func Decode[T any](s *Signer, token string) (T, error) {
	var payload T

	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return payload, ErrMalformedToken
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return payload, ErrMalformedToken
	}

	if !s.Verify(data, parts[1]) {
		return payload, ErrSignatureInvalid
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, ErrMalformedToken
	}

	return payload, nil
}
