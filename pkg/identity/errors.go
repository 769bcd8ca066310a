package identity

import "errors"

var (
	ErrAccountNotFound    = errors.New("identity: account not found")
	ErrEmailAlreadyExists = errors.New("identity: email already exists")
	ErrProviderLinked     = errors.New("identity: provider already linked to another account")
)
