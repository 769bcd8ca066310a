package kv

import "errors"

var (
	ErrNotFound    = errors.New("kv: key not found")
	ErrKeyRequired = errors.New("kv: key is required")
)
