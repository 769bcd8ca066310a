package redis

import "errors"

var (
	ErrFailedToParseRedisConnString = errors.New("redis: bad connection URL")
	ErrRedisNotReady                = errors.New("redis: not ready within the connect timeout")
	ErrHealthcheckFailed            = errors.New("redis: healthcheck failed")
)
