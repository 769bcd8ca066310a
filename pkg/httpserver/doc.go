// Package httpserver wraps net/http with graceful shutdown, configurable
// timeouts and a health-check handler.
//
// Run starts the server and blocks until the context is cancelled or an
// interrupt/TERM signal arrives, then drains in-flight requests within the
// configured shutdown deadline. Construction is done through New or
// NewFromConfig with functional options; listen errors are wrapped with
// ErrStart and shutdown errors with ErrShutdown so callers can use errors.Is.
package httpserver
