package csrf

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/signupkit/pkg/cookie"
	"github.com/dmitrymomot/signupkit/pkg/logger"
)

// ErrorHandler responds to a failed CSRF check.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// MiddlewareOption configures the middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	log          *slog.Logger
	errorHandler ErrorHandler
}

// WithLogger sets the logger for rejected requests.
func WithLogger(log *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// WithErrorHandler overrides the response for rejected requests.
func WithErrorHandler(h ErrorHandler) MiddlewareOption {
	return func(c *middlewareConfig) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

// Middleware enforces the double-submit check on state-changing methods.
// Failures are logged with full context but answered with one generic
// message, so the response never works as an oracle for why the token was
// rejected.
func (m *Manager) Middleware(opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		log: logger.NewDiscard(),
		errorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, "Please refresh the page and try again.", http.StatusForbidden)
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			cookieValue, err := m.cookies.Get(r, m.cookieName)
			if err != nil && !errors.Is(err, cookie.ErrCookieNotFound) {
				cfg.errorHandler(w, r, err)
				return
			}

			submitted := TokenFromRequest(r)
			if err := m.Validate(cookieValue, submitted); err != nil {
				cfg.log.WarnContext(r.Context(), "csrf validation failed",
					logger.Error(err),
					logger.Component("csrf"),
					logger.TokenAge(m.Age(submitted)),
					slog.String("user_agent", r.UserAgent()),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				cfg.errorHandler(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
