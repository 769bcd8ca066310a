package oauth

import "errors"

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrStateMismatch   = errors.New("oauth state token invalid or expired")
	ErrCancelled       = errors.New("oauth flow cancelled by user")
	ErrProviderError   = errors.New("oauth provider returned an error")
	ErrInvalidCode     = errors.New("invalid authorization code")
	ErrNoEmail         = errors.New("provider profile has no email address")
	ErrUnverifiedEmail = errors.New("provider email is not verified")
)
