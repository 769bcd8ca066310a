package logger

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/signupkit/pkg/sanitizer"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the emitting component under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Email records a masked email under the key "email". The local part is
// masked; the domain survives for operational correlation.
func Email(email string) slog.Attr {
	if email == "" {
		return slog.Attr{}
	}
	return slog.String("email", sanitizer.MaskEmail(email))
}

// SessionID records a signup session identifier under the key "session_id".
func SessionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("session_id", id)
}

// Provider records an OAuth provider name under the key "provider".
func Provider(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("provider", name)
}

// ErrorCode records a taxonomy error code under the key "error_code".
func ErrorCode(code string) slog.Attr {
	if code == "" {
		return slog.Attr{}
	}
	return slog.String("error_code", code)
}

// TokenAge records how old a token was at validation time, in seconds,
// under the key "token_age_sec".
func TokenAge(age time.Duration) slog.Attr {
	return slog.Int64("token_age_sec", int64(age.Seconds()))
}
