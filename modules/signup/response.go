package signup

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dmitrymomot/signupkit/pkg/taxonomy"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Returned instead of the precise CSRF/state code so the response body never
// explains which part of the check failed.
const rejectedCode = "REQUEST_REJECTED"

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// respondError maps err through the taxonomy: full context to the logs, one
// taxonomy-shaped {code, message} body to the client.
func (m *Module) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := taxonomy.FromError(err)

	m.log.LogAttrs(r.Context(), slog.LevelWarn, "signup request failed",
		taxonomy.LogContext(code, r)...)

	payload := errorPayload{
		Code:    string(code),
		Message: code.UserMessage(),
	}
	if code.Security() {
		payload.Code = rejectedCode
	}

	status := code.HTTPStatus()
	if status == http.StatusOK {
		status = http.StatusBadRequest
	}
	respondJSON(w, status, payload)
}

// redirectError sends the user to the error page with the taxonomy code and
// message in the query, for flows that arrive by browser navigation.
func (m *Module) redirectError(w http.ResponseWriter, r *http.Request, err error) {
	code := taxonomy.FromError(err)

	m.log.LogAttrs(r.Context(), slog.LevelWarn, "signup redirect flow failed",
		taxonomy.LogContext(code, r)...)

	q := url.Values{}
	if code.Security() {
		q.Set("code", rejectedCode)
	} else {
		q.Set("code", string(code))
	}
	q.Set("message", code.UserMessage())

	http.Redirect(w, r, m.cfg.ErrorRedirectURL+"?"+q.Encode(), http.StatusSeeOther)
}

func (m *Module) csrfErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	m.respondError(w, r, err)
}
