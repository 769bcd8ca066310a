package signup_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/signupkit/modules/signup"
	"github.com/dmitrymomot/signupkit/pkg/cookie"
	"github.com/dmitrymomot/signupkit/pkg/csrf"
	"github.com/dmitrymomot/signupkit/pkg/email"
	"github.com/dmitrymomot/signupkit/pkg/funnel"
	"github.com/dmitrymomot/signupkit/pkg/identity"
	"github.com/dmitrymomot/signupkit/pkg/kv"
	"github.com/dmitrymomot/signupkit/pkg/magiclink"
	"github.com/dmitrymomot/signupkit/pkg/oauth"
	"github.com/dmitrymomot/signupkit/pkg/ratelimit"
	"github.com/dmitrymomot/signupkit/pkg/session"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []email.SendEmailParams
}

func (c *captureMailer) SendEmail(_ context.Context, params email.SendEmailParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, params)
	return nil
}

func (c *captureMailer) last(t *testing.T) email.SendEmailParams {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	return c.sent[len(c.sent)-1]
}

// linkToken pulls the raw token out of the plain-text verification email.
func linkToken(t *testing.T, params email.SendEmailParams) string {
	t.Helper()
	_, rest, ok := strings.Cut(params.BodyText, "token=")
	require.True(t, ok, "verification email carries no token")
	token, _, _ := strings.Cut(rest, "\n")
	return strings.TrimSpace(token)
}

type fakeAdapter struct {
	id string
}

func (f *fakeAdapter) ProviderID() string { return f.id }

func (f *fakeAdapter) AuthURL(state string) (string, error) {
	return "https://provider.test/authorize?state=" + url.QueryEscape(state), nil
}

func (f *fakeAdapter) ResolveProfile(_ context.Context, code string) (oauth.Profile, error) {
	if code != "valid-code" {
		return oauth.Profile{}, errors.New("bad authorization code")
	}
	return oauth.Profile{
		ProviderUserID: "provider-uid-1",
		Email:          "OAuth.User@Example.com",
		EmailVerified:  true,
		Name:           "OAuth User",
	}, nil
}

type testEnv struct {
	srv      *httptest.Server
	client   *http.Client
	mailer   *captureMailer
	accounts *identity.MemoryStorage
	funnel   funnel.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cookies, err := cookie.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	csrfManager, err := csrf.NewManager(csrf.Config{
		Secret:        "csrf-secret-csrf-secret-csrf-sec",
		TokenTTL:      time.Hour,
		RefreshWindow: 5 * time.Minute,
		CookieName:    "csrf_token",
	}, cookies)
	require.NoError(t, err)

	store := kv.NewMemoryStore()
	t.Cleanup(store.Close)

	rlStore := ratelimit.NewMemoryStore()
	t.Cleanup(rlStore.Close)
	limiter, err := ratelimit.NewSlidingWindow(rlStore, 3, time.Hour)
	require.NoError(t, err)

	accounts := identity.NewMemoryStorage()
	mailer := &captureMailer{}

	magicLinks := magiclink.NewService(magiclink.Config{
		TokenTTL:        24 * time.Hour,
		VerificationURL: "http://app.test/signup/verify",
	}, store, limiter, accounts, mailer, nil)

	coordinator := oauth.NewCoordinator(store, accounts, []oauth.ProviderAdapter{
		&fakeAdapter{id: oauth.ProviderGoogle},
	})

	sessions := session.NewManager(session.Config{
		TTL:        time.Hour,
		CookieName: "session_id",
	}, store, cookies)

	funnelStore := funnel.NewMemoryStore()
	tracker := funnel.NewTracker(funnelStore, nil)

	mod := signup.New(signup.Config{
		SuccessRedirectURL: "/welcome",
		ErrorRedirectURL:   "/signup/error",
		ExposeMetrics:      true,
	}, csrfManager, magicLinks, coordinator, sessions, tracker)

	srv := httptest.NewServer(mod.Router())
	t.Cleanup(srv.Close)

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testEnv{
		srv:      srv,
		client:   client,
		mailer:   mailer,
		accounts: accounts,
		funnel:   funnelStore,
	}
}

type csrfGrant struct {
	token  string
	cookie *http.Cookie
}

func (e *testEnv) fetchCSRF(t *testing.T) csrfGrant {
	t.Helper()

	resp, err := e.client.Get(e.srv.URL + "/csrf-token")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)

	for _, c := range resp.Cookies() {
		if c.Name == "csrf_token" {
			require.Equal(t, body.Token, c.Value)
			return csrfGrant{token: body.Token, cookie: c}
		}
	}
	t.Fatal("csrf cookie not set")
	return csrfGrant{}
}

func (e *testEnv) postEmail(t *testing.T, grant csrfGrant, payload string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/signup/email", strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if grant.token != "" {
		req.Header.Set("X-CSRF-Token", grant.token)
		req.AddCookie(grant.cookie)
	}

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) (code, message string) {
	t.Helper()
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Code, body.Message
}

func TestCSRFTokenEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("issues token with cookie", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		grant := env.fetchCSRF(t)
		assert.NotEmpty(t, grant.token)
		assert.False(t, grant.cookie.HttpOnly, "double-submit cookie must be readable by scripts")
	})

	t.Run("valid token survives refresh", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		grant := env.fetchCSRF(t)

		req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/csrf-token", nil)
		require.NoError(t, err)
		req.AddCookie(grant.cookie)

		resp, err := env.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, grant.token, body.Token, "token far from expiry is returned unchanged")
	})
}

func TestEmailSignupFlow(t *testing.T) {
	t.Parallel()

	t.Run("full flow: request link, verify, session established", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		grant := env.fetchCSRF(t)

		resp := env.postEmail(t, grant, `{"email":"New.User@Example.com"}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		token := linkToken(t, env.mailer.last(t))

		verifyResp, err := env.client.Get(env.srv.URL + "/signup/verify?token=" + url.QueryEscape(token))
		require.NoError(t, err)
		defer verifyResp.Body.Close()

		assert.Equal(t, http.StatusSeeOther, verifyResp.StatusCode)
		assert.Equal(t, "/welcome", verifyResp.Header.Get("Location"))

		var sessionCookie *http.Cookie
		for _, c := range verifyResp.Cookies() {
			if c.Name == "session_id" {
				sessionCookie = c
			}
		}
		require.NotNil(t, sessionCookie, "verification must establish a session")
		assert.True(t, sessionCookie.HttpOnly)

		account, err := env.accounts.GetByEmail(context.Background(), "new.user@example.com")
		require.NoError(t, err)
		assert.True(t, account.IsVerified)
		assert.Equal(t, identity.MethodMagicLink, account.AuthMethod)
	})

	t.Run("missing csrf token is rejected without detail", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)

		resp := env.postEmail(t, csrfGrant{}, `{"email":"user@example.com"}`)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		code, message := decodeError(t, resp)
		assert.Equal(t, "REQUEST_REJECTED", code)
		assert.NotContains(t, message, "CSRF")
	})

	t.Run("invalid email", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		grant := env.fetchCSRF(t)

		resp := env.postEmail(t, grant, `{"email":"not-an-email"}`)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		code, _ := decodeError(t, resp)
		assert.Equal(t, "EMAIL_INVALID", code)
	})

	t.Run("unreadable body reports a malformed request, not a bad email", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		grant := env.fetchCSRF(t)

		resp := env.postEmail(t, grant, `{"email":`)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		code, _ := decodeError(t, resp)
		assert.Equal(t, "REQUEST_MALFORMED", code)
	})

	t.Run("rate limit trips on fourth request", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		grant := env.fetchCSRF(t)

		for range 3 {
			resp := env.postEmail(t, grant, `{"email":"busy@example.com"}`)
			require.Equal(t, http.StatusAccepted, resp.StatusCode)
			resp.Body.Close()
		}

		resp := env.postEmail(t, grant, `{"email":"busy@example.com"}`)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		code, _ := decodeError(t, resp)
		assert.Equal(t, "RATE_LIMITED", code)
	})

	t.Run("token reuse redirects to error page", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		grant := env.fetchCSRF(t)

		resp := env.postEmail(t, grant, `{"email":"reuse@example.com"}`)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		resp.Body.Close()

		token := linkToken(t, env.mailer.last(t))
		verifyURL := env.srv.URL + "/signup/verify?token=" + url.QueryEscape(token)

		first, err := env.client.Get(verifyURL)
		require.NoError(t, err)
		first.Body.Close()
		require.Equal(t, http.StatusSeeOther, first.StatusCode)

		second, err := env.client.Get(verifyURL)
		require.NoError(t, err)
		defer second.Body.Close()

		require.Equal(t, http.StatusSeeOther, second.StatusCode)
		loc, err := url.Parse(second.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/signup/error", loc.Path)
		assert.Equal(t, "TOKEN_ALREADY_USED", loc.Query().Get("code"))
	})

	t.Run("unknown token redirects to error page", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)

		resp, err := env.client.Get(env.srv.URL + "/signup/verify?token=does-not-exist")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "TOKEN_NOT_FOUND", loc.Query().Get("code"))
	})
}

func TestOAuthFlow(t *testing.T) {
	t.Parallel()

	initiate := func(t *testing.T, env *testEnv) string {
		t.Helper()

		grant := env.fetchCSRF(t)
		req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/oauth/google", nil)
		require.NoError(t, err)
		req.Header.Set("X-CSRF-Token", grant.token)
		req.AddCookie(grant.cookie)

		resp, err := env.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		state := loc.Query().Get("state")
		require.NotEmpty(t, state)
		return state
	}

	t.Run("full flow creates account and session", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		state := initiate(t, env)

		resp, err := env.client.Get(env.srv.URL + "/oauth/google/callback?state=" + url.QueryEscape(state) + "&code=valid-code")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/welcome", resp.Header.Get("Location"))

		account, err := env.accounts.GetByEmail(context.Background(), "oauth.user@example.com")
		require.NoError(t, err)
		assert.True(t, account.IsVerified)
		assert.Equal(t, identity.MethodOAuthGoogle, account.AuthMethod)
	})

	t.Run("initiation without csrf token is rejected", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)

		resp, err := env.client.Post(env.srv.URL+"/oauth/google", "", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		code, _ := decodeError(t, resp)
		assert.Equal(t, "REQUEST_REJECTED", code)
	})

	t.Run("form-posted callback creates account and session", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		state := initiate(t, env)

		form := url.Values{"state": {state}, "code": {"valid-code"}}
		resp, err := env.client.Post(env.srv.URL+"/oauth/google/callback",
			"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/welcome", resp.Header.Get("Location"))

		account, err := env.accounts.GetByEmail(context.Background(), "oauth.user@example.com")
		require.NoError(t, err)
		assert.Equal(t, identity.MethodOAuthGoogle, account.AuthMethod)
	})

	t.Run("state replay is rejected", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		state := initiate(t, env)
		callbackURL := env.srv.URL + "/oauth/google/callback?state=" + url.QueryEscape(state) + "&code=valid-code"

		first, err := env.client.Get(callbackURL)
		require.NoError(t, err)
		first.Body.Close()
		require.Equal(t, http.StatusSeeOther, first.StatusCode)

		second, err := env.client.Get(callbackURL)
		require.NoError(t, err)
		defer second.Body.Close()

		loc, err := url.Parse(second.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/signup/error", loc.Path)
		assert.Equal(t, "REQUEST_REJECTED", loc.Query().Get("code"), "state failures must not be distinguishable")
	})

	t.Run("cancellation consumes state and reports softly", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		state := initiate(t, env)

		resp, err := env.client.Get(env.srv.URL + "/oauth/google/callback?state=" + url.QueryEscape(state) + "&error=access_denied")
		require.NoError(t, err)
		defer resp.Body.Close()

		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "OAUTH_CANCELLED", loc.Query().Get("code"))

		// The nonce was burned by the cancelled attempt.
		retry, err := env.client.Get(env.srv.URL + "/oauth/google/callback?state=" + url.QueryEscape(state) + "&code=valid-code")
		require.NoError(t, err)
		defer retry.Body.Close()

		retryLoc, err := url.Parse(retry.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "REQUEST_REJECTED", retryLoc.Query().Get("code"))
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		grant := env.fetchCSRF(t)

		req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/oauth/github", nil)
		require.NoError(t, err)
		req.Header.Set("X-CSRF-Token", grant.token)
		req.AddCookie(grant.cookie)

		resp, err := env.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestAnalyticsEndpoints(t *testing.T) {
	t.Parallel()

	postJSON := func(t *testing.T, env *testEnv, path, payload string) *http.Response {
		t.Helper()
		resp, err := env.client.Post(env.srv.URL+path, "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		return resp
	}

	t.Run("event intake always responds 204", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)

		resp := postJSON(t, env, "/analytics/signup", `{"session_id":"sess-1","stage":"viewed","landing_page":"/pricing"}`)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		// Garbage is dropped, not bounced.
		resp = postJSON(t, env, "/analytics/signup", `not json at all`)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		sess, err := env.funnel.GetSession(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Equal(t, funnel.StageViewed, sess.Stage)
		assert.Equal(t, "/pricing", sess.LandingPage)
	})

	t.Run("abandonment intake", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)

		resp := postJSON(t, env, "/analytics/signup", `{"session_id":"sess-2","stage":"viewed"}`)
		resp.Body.Close()
		resp = postJSON(t, env, "/analytics/signup", `{"session_id":"sess-2","stage":"started"}`)
		resp.Body.Close()

		resp = postJSON(t, env, "/analytics/abandonment",
			`{"session_id":"sess-2","last_field":"email","time_on_last_field_ms":4200,"total_time_ms":31000,"fields_touched":["email"],"reason":"exit"}`)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		sess, err := env.funnel.GetSession(context.Background(), "sess-2")
		require.NoError(t, err)
		assert.Equal(t, funnel.StageAbandoned, sess.Stage)

		rec, err := env.funnel.GetAbandonment(context.Background(), "sess-2")
		require.NoError(t, err)
		assert.Equal(t, "email", rec.LastField)
		assert.Equal(t, funnel.ReasonExit, rec.Reason)
	})

	t.Run("metrics reflect recorded sessions", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)

		for _, ev := range []string{
			`{"session_id":"m-1","stage":"viewed"}`,
			`{"session_id":"m-1","stage":"started"}`,
			`{"session_id":"m-1","stage":"method_chosen","method":"magic_link"}`,
			`{"session_id":"m-1","stage":"submitted"}`,
			`{"session_id":"m-1","stage":"completed"}`,
			`{"session_id":"m-2","stage":"viewed"}`,
		} {
			resp := postJSON(t, env, "/analytics/signup", ev)
			resp.Body.Close()
		}

		resp, err := env.client.Get(env.srv.URL + "/analytics/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var metrics struct {
			ViewedToCompleted  float64 `json:"viewed_to_completed"`
			StartedToCompleted float64 `json:"started_to_completed"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&metrics))
		assert.InDelta(t, 0.5, metrics.ViewedToCompleted, 0.001)
		assert.InDelta(t, 1.0, metrics.StartedToCompleted, 0.001)
	})
}

func TestServerSideFunnelCorrelation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	grant := env.fetchCSRF(t)

	for _, ev := range []string{
		`{"session_id":"corr-1","stage":"viewed"}`,
		`{"session_id":"corr-1","stage":"started"}`,
	} {
		resp, err := env.client.Post(env.srv.URL+"/analytics/signup", "application/json", strings.NewReader(ev))
		require.NoError(t, err)
		resp.Body.Close()
	}

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/signup/email",
		strings.NewReader(`{"email":"corr@example.com","session_id":"corr-1"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", grant.token)
	req.AddCookie(grant.cookie)

	resp, err := env.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	sess, err := env.funnel.GetSession(context.Background(), "corr-1")
	require.NoError(t, err)
	assert.Equal(t, funnel.StageSubmitted, sess.Stage)
	assert.Equal(t, "magic_link", sess.MethodSelected)

	token := linkToken(t, env.mailer.last(t))
	vreq, err := http.NewRequest(http.MethodGet, env.srv.URL+"/signup/verify?token="+url.QueryEscape(token), nil)
	require.NoError(t, err)
	vreq.Header.Set(signup.SessionHeader, "corr-1")

	vresp, err := env.client.Do(vreq)
	require.NoError(t, err)
	vresp.Body.Close()
	require.Equal(t, http.StatusSeeOther, vresp.StatusCode)

	sess, err = env.funnel.GetSession(context.Background(), "corr-1")
	require.NoError(t, err)
	assert.Equal(t, funnel.StageCompleted, sess.Stage)
}
