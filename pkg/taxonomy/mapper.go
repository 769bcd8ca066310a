package taxonomy

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/signupkit/pkg/binder"
	"github.com/dmitrymomot/signupkit/pkg/clientip"
	"github.com/dmitrymomot/signupkit/pkg/csrf"
	"github.com/dmitrymomot/signupkit/pkg/logger"
	"github.com/dmitrymomot/signupkit/pkg/magiclink"
	"github.com/dmitrymomot/signupkit/pkg/oauth"
	"github.com/dmitrymomot/signupkit/pkg/useragent"
)

// FromError maps a service error to its taxonomy code. Unmapped errors
// return CodeUnknown so handlers always have a code to log and render.
func FromError(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown

	case errors.Is(err, csrf.ErrMissing):
		return CodeCSRFMissing
	case errors.Is(err, csrf.ErrMalformed):
		return CodeCSRFMalformed
	case errors.Is(err, csrf.ErrSignatureInvalid), errors.Is(err, csrf.ErrMismatch):
		return CodeCSRFSignatureInvalid
	case errors.Is(err, csrf.ErrExpired):
		return CodeCSRFExpired

	case errors.Is(err, binder.ErrInvalidJSON),
		errors.Is(err, binder.ErrInvalidForm),
		errors.Is(err, binder.ErrInvalidQuery),
		errors.Is(err, binder.ErrUnsupportedMediaType),
		errors.Is(err, binder.ErrMissingContentType):
		return CodeRequestMalformed

	case errors.Is(err, magiclink.ErrInvalidEmail):
		return CodeEmailInvalid
	case errors.Is(err, magiclink.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, magiclink.ErrTokenNotFound):
		return CodeTokenNotFound
	case errors.Is(err, magiclink.ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, magiclink.ErrTokenAlreadyUsed):
		return CodeTokenAlreadyUsed

	case errors.Is(err, oauth.ErrStateMismatch):
		return CodeOAuthStateMismatch
	case errors.Is(err, oauth.ErrCancelled):
		return CodeOAuthCancelled
	case errors.Is(err, oauth.ErrProviderError),
		errors.Is(err, oauth.ErrInvalidCode),
		errors.Is(err, oauth.ErrNoEmail),
		errors.Is(err, oauth.ErrUnverifiedEmail),
		errors.Is(err, oauth.ErrUnknownProvider):
		return CodeOAuthProviderError

	default:
		return CodeUnknown
	}
}

// LogContext builds the structured log attributes for an error code in the
// context of a request: timestamp, error kind, client hints. Identifiers are
// masked upstream via logger.Email and logger.Token before they get here.
func LogContext(code Code, r *http.Request) []slog.Attr {
	attrs := []slog.Attr{
		logger.ErrorCode(string(code)),
		slog.Time("timestamp", time.Now()),
		slog.Bool("security", code.Security()),
	}
	if r == nil {
		return attrs
	}

	ua := useragent.Parse(r.UserAgent())
	attrs = append(attrs,
		slog.String("ip", clientip.GetIP(r)),
		slog.String("browser", ua.Browser()),
		slog.String("device_type", ua.DeviceType()),
		slog.String("os", ua.OS()),
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
	)
	return attrs
}
