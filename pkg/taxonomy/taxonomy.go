package taxonomy

import "net/http"

// Code is a stable internal error code. Codes are the single source of truth
// for user-facing messages and structured log shapes across all
// authentication methods.
type Code string

const (
	CodeCSRFMissing          Code = "CSRF_MISSING"
	CodeCSRFMalformed        Code = "CSRF_MALFORMED"
	CodeCSRFSignatureInvalid Code = "CSRF_SIGNATURE_INVALID"
	CodeCSRFExpired          Code = "CSRF_EXPIRED"

	CodeRequestMalformed Code = "REQUEST_MALFORMED"
	CodeEmailInvalid     Code = "EMAIL_INVALID"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeTokenNotFound    Code = "TOKEN_NOT_FOUND"
	CodeTokenExpired     Code = "TOKEN_EXPIRED"
	CodeTokenAlreadyUsed Code = "TOKEN_ALREADY_USED"

	CodeOAuthStateMismatch Code = "OAUTH_STATE_MISMATCH"
	CodeOAuthProviderError Code = "OAUTH_PROVIDER_ERROR"
	CodeOAuthCancelled     Code = "OAUTH_CANCELLED"

	// Never surfaced to the user; operational logs only.
	CodeAnalyticsDispatchFailed Code = "ANALYTICS_DISPATCH_FAILED"

	CodeUnknown Code = "UNKNOWN"
)

// Security reports whether the code is security-relevant. Security failures
// get a single generic user message so the response cannot be used as an
// oracle, while the precise kind still lands in the logs.
func (c Code) Security() bool {
	switch c {
	case CodeCSRFMissing, CodeCSRFMalformed, CodeCSRFSignatureInvalid, CodeCSRFExpired, CodeOAuthStateMismatch:
		return true
	default:
		return false
	}
}

// Internal reports whether the code must never reach a user at all.
func (c Code) Internal() bool {
	return c == CodeAnalyticsDispatchFailed
}

const genericSecurityMessage = "Something went wrong. Please refresh the page and try again."

var userMessages = map[Code]string{
	CodeRequestMalformed:   "We couldn't read that request. Please refresh the page and try again.",
	CodeEmailInvalid:       "That doesn't look like a valid email address. Please check it and try again.",
	CodeRateLimited:        "You've requested too many sign-in links. Please wait a bit before trying again.",
	CodeTokenNotFound:      "This sign-in link isn't valid. Please request a new one.",
	CodeTokenExpired:       "This sign-in link has expired. Please request a new one.",
	CodeTokenAlreadyUsed:   "This sign-in link has already been used. Please request a new one.",
	CodeOAuthProviderError: "We couldn't complete sign-in with that provider. Please try again.",
	CodeOAuthCancelled:     "Sign-in was cancelled. You can try again whenever you're ready.",
}

// UserMessage returns the user-facing message for the code. Security codes
// collapse to one generic message; everything else is specific and
// actionable, with no internal jargon or raw codes.
func (c Code) UserMessage() string {
	if c.Security() {
		return genericSecurityMessage
	}
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return "Something went wrong on our end. Please try again."
}

// HTTPStatus returns the response status associated with the code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeCSRFMissing, CodeCSRFMalformed, CodeCSRFSignatureInvalid, CodeCSRFExpired:
		return http.StatusForbidden
	case CodeRequestMalformed:
		return http.StatusBadRequest
	case CodeEmailInvalid:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTokenNotFound:
		return http.StatusNotFound
	case CodeTokenExpired, CodeTokenAlreadyUsed:
		return http.StatusGone
	case CodeOAuthStateMismatch:
		return http.StatusForbidden
	case CodeOAuthProviderError:
		return http.StatusBadGateway
	case CodeOAuthCancelled:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
