// Package requestid correlates log records across one request. The middleware
// accepts a client-supplied X-Request-ID when it looks sane and generates a
// UUID otherwise; the chosen value rides the request context and is echoed in
// the response header.
package requestid

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// Header is the canonical request identifier header.
const Header = "X-Request-ID"

const maxIDLength = 128

var validID = regexp.MustCompile("^[a-zA-Z0-9_-]+$")

type contextKey struct{}

// WithContext stores the request ID in the context.
func WithContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// FromContext returns the request ID or an empty string.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware assigns every request an identifier. Client-supplied values are
// kept only when they match the allowed shape; anything else is replaced, not
// rejected.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !acceptable(id) {
			id = uuid.New().String()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

func acceptable(id string) bool {
	return id != "" && len(id) <= maxIDLength && validID.MatchString(id)
}
