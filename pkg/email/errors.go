package email

import "errors"

var (
	ErrFailedToSend  = errors.New("email: failed to send")
	ErrInvalidParams = errors.New("email: invalid params")
	ErrInvalidConfig = errors.New("email: invalid config")
)
