package signer

import "errors"

var (
	ErrNoSecret         = errors.New("signer: secret is required")
	ErrSecretTooShort   = errors.New("signer: secret too short")
	ErrMalformedToken   = errors.New("signer: malformed token")
	ErrSignatureInvalid = errors.New("signer: signature mismatch")
)
