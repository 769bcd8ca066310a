package magiclink

import "errors"

var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrRateLimited      = errors.New("too many magic link requests")
	ErrTokenNotFound    = errors.New("magic link token not found")
	ErrTokenExpired     = errors.New("magic link token expired")
	ErrTokenAlreadyUsed = errors.New("magic link token already used")
)
