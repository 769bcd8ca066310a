package csrf

import "errors"

var (
	ErrMissing          = errors.New("csrf: token missing")
	ErrMalformed        = errors.New("csrf: token malformed")
	ErrSignatureInvalid = errors.New("csrf: signature invalid")
	ErrExpired          = errors.New("csrf: token expired")
	ErrMismatch         = errors.New("csrf: cookie and submitted values differ")
)
