package cookie

import "errors"

var (
	ErrCookieNotFound   = errors.New("cookie: not found")
	ErrInvalidSignature = errors.New("cookie: invalid signature")
)
