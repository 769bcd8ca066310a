package taxonomy_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/signupkit/pkg/binder"
	"github.com/dmitrymomot/signupkit/pkg/csrf"
	"github.com/dmitrymomot/signupkit/pkg/magiclink"
	"github.com/dmitrymomot/signupkit/pkg/oauth"
	"github.com/dmitrymomot/signupkit/pkg/taxonomy"
)

var allCodes = []taxonomy.Code{
	taxonomy.CodeCSRFMissing,
	taxonomy.CodeCSRFMalformed,
	taxonomy.CodeCSRFSignatureInvalid,
	taxonomy.CodeCSRFExpired,
	taxonomy.CodeRequestMalformed,
	taxonomy.CodeEmailInvalid,
	taxonomy.CodeRateLimited,
	taxonomy.CodeTokenNotFound,
	taxonomy.CodeTokenExpired,
	taxonomy.CodeTokenAlreadyUsed,
	taxonomy.CodeOAuthStateMismatch,
	taxonomy.CodeOAuthProviderError,
	taxonomy.CodeOAuthCancelled,
	taxonomy.CodeAnalyticsDispatchFailed,
}

func TestCode_UserMessage(t *testing.T) {
	t.Parallel()

	t.Run("every code maps to a human message without jargon", func(t *testing.T) {
		t.Parallel()

		for _, code := range allCodes {
			msg := code.UserMessage()
			assert.NotEmpty(t, msg, "code %s", code)
			assert.NotContains(t, msg, string(code), "code %s leaks into its message", code)
			assert.NotContains(t, msg, "_", "code %s message looks like an internal code", code)
		}
	})

	t.Run("security codes share one generic message", func(t *testing.T) {
		t.Parallel()

		securityCodes := []taxonomy.Code{
			taxonomy.CodeCSRFMissing,
			taxonomy.CodeCSRFMalformed,
			taxonomy.CodeCSRFSignatureInvalid,
			taxonomy.CodeCSRFExpired,
			taxonomy.CodeOAuthStateMismatch,
		}
		generic := securityCodes[0].UserMessage()
		for _, code := range securityCodes {
			assert.True(t, code.Security(), "code %s", code)
			assert.Equal(t, generic, code.UserMessage(), "code %s", code)
		}
	})

	t.Run("validation codes are specific and actionable", func(t *testing.T) {
		t.Parallel()

		expired := taxonomy.CodeTokenExpired.UserMessage()
		used := taxonomy.CodeTokenAlreadyUsed.UserMessage()
		assert.NotEqual(t, expired, used)
		assert.Contains(t, strings.ToLower(expired), "expired")
	})
}

func TestFromError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want taxonomy.Code
	}{
		{csrf.ErrMissing, taxonomy.CodeCSRFMissing},
		{csrf.ErrMalformed, taxonomy.CodeCSRFMalformed},
		{csrf.ErrSignatureInvalid, taxonomy.CodeCSRFSignatureInvalid},
		{csrf.ErrMismatch, taxonomy.CodeCSRFSignatureInvalid},
		{csrf.ErrExpired, taxonomy.CodeCSRFExpired},
		{binder.ErrInvalidJSON, taxonomy.CodeRequestMalformed},
		{binder.ErrInvalidForm, taxonomy.CodeRequestMalformed},
		{binder.ErrUnsupportedMediaType, taxonomy.CodeRequestMalformed},
		{magiclink.ErrInvalidEmail, taxonomy.CodeEmailInvalid},
		{magiclink.ErrRateLimited, taxonomy.CodeRateLimited},
		{magiclink.ErrTokenNotFound, taxonomy.CodeTokenNotFound},
		{magiclink.ErrTokenExpired, taxonomy.CodeTokenExpired},
		{magiclink.ErrTokenAlreadyUsed, taxonomy.CodeTokenAlreadyUsed},
		{oauth.ErrStateMismatch, taxonomy.CodeOAuthStateMismatch},
		{oauth.ErrCancelled, taxonomy.CodeOAuthCancelled},
		{oauth.ErrProviderError, taxonomy.CodeOAuthProviderError},
		{oauth.ErrInvalidCode, taxonomy.CodeOAuthProviderError},
		{oauth.ErrUnverifiedEmail, taxonomy.CodeOAuthProviderError},
		{fmt.Errorf("wrapped: %w", magiclink.ErrTokenExpired), taxonomy.CodeTokenExpired},
		{assert.AnError, taxonomy.CodeUnknown},
		{nil, taxonomy.CodeUnknown},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, taxonomy.FromError(tc.err), "error %v", tc.err)
	}
}

func TestCode_HTTPStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusForbidden, taxonomy.CodeCSRFMissing.HTTPStatus())
	assert.Equal(t, http.StatusTooManyRequests, taxonomy.CodeRateLimited.HTTPStatus())
	assert.Equal(t, http.StatusGone, taxonomy.CodeTokenExpired.HTTPStatus())
	assert.Equal(t, http.StatusGone, taxonomy.CodeTokenAlreadyUsed.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, taxonomy.CodeRequestMalformed.HTTPStatus())
	assert.Equal(t, http.StatusUnprocessableEntity, taxonomy.CodeEmailInvalid.HTTPStatus())
	assert.Equal(t, http.StatusBadGateway, taxonomy.CodeOAuthProviderError.HTTPStatus())
	assert.Equal(t, http.StatusOK, taxonomy.CodeOAuthCancelled.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, taxonomy.CodeUnknown.HTTPStatus())
}

func TestLogContext(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/signup/email", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	r.Header.Set("X-Real-IP", "203.0.113.7")

	attrs := taxonomy.LogContext(taxonomy.CodeCSRFExpired, r)

	keys := make(map[string]string)
	for _, a := range attrs {
		keys[a.Key] = a.Value.String()
	}

	assert.Equal(t, string(taxonomy.CodeCSRFExpired), keys["error_code"])
	assert.Equal(t, "203.0.113.7", keys["ip"])
	assert.Contains(t, keys["browser"], "Chrome")
	assert.Equal(t, "desktop", keys["device_type"])
	assert.Equal(t, "/signup/email", keys["path"])
	require.Contains(t, keys, "timestamp")
	assert.Equal(t, "true", keys["security"])
}

func TestLogContext_NilRequest(t *testing.T) {
	t.Parallel()

	attrs := taxonomy.LogContext(taxonomy.CodeAnalyticsDispatchFailed, nil)
	require.NotEmpty(t, attrs)
	assert.Equal(t, "error_code", attrs[0].Key)
}
