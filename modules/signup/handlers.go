package signup

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/signupkit/pkg/binder"
	"github.com/dmitrymomot/signupkit/pkg/csrf"
	"github.com/dmitrymomot/signupkit/pkg/funnel"
	"github.com/dmitrymomot/signupkit/pkg/identity"
	"github.com/dmitrymomot/signupkit/pkg/logger"
	"github.com/dmitrymomot/signupkit/pkg/oauth"
	"github.com/dmitrymomot/signupkit/pkg/taxonomy"
	"github.com/dmitrymomot/signupkit/pkg/useragent"
)

type csrfTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleCSRFToken issues the double-submit token. When the request already
// carries a valid cookie the token is refreshed, which returns it unchanged
// unless it is expired or inside the refresh window.
func (m *Module) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	var (
		token *csrf.Token
		err   error
	)
	if c, cookieErr := r.Cookie(m.csrf.CookieName()); cookieErr == nil && c.Value != "" {
		token, err = m.csrf.Refresh(c.Value)
	} else {
		token, err = m.csrf.Issue()
	}
	if err != nil {
		m.respondError(w, r, err)
		return
	}

	m.csrf.SetCookie(w, token)
	respondJSON(w, http.StatusOK, csrfTokenResponse{
		Token:     token.Encoded,
		ExpiresAt: token.ExpiresAt,
	})
}

type emailSignupRequest struct {
	Email     string `json:"email"      form:"email"`
	SessionID string `json:"session_id" form:"session_id"`
}

// handleEmailSignup accepts the email form and dispatches a magic link.
// Responds 202 as soon as the link is accepted for delivery.
func (m *Module) handleEmailSignup(w http.ResponseWriter, r *http.Request) {
	var req emailSignupRequest
	if err := m.bindBody(r, &req); err != nil {
		m.respondError(w, r, err)
		return
	}

	sessionID := m.sessionID(r, req.SessionID)

	if err := m.magicLinks.RequestLink(r.Context(), req.Email); err != nil {
		m.recordFailure(r, sessionID, err)
		m.respondError(w, r, err)
		return
	}

	m.recordProgress(r, sessionID, identity.MethodMagicLink)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type verifyRequest struct {
	Token string `query:"token"`
}

// handleVerify redeems a magic link token and establishes the session.
func (m *Module) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	_ = binder.Query(r, &req)

	sessionID := m.sessionID(r, "")

	account, err := m.magicLinks.Redeem(r.Context(), req.Token)
	if err != nil {
		m.recordFailure(r, sessionID, err)
		m.redirectError(w, r, err)
		return
	}

	if _, err := m.sessions.Start(r.Context(), w, account); err != nil {
		m.log.ErrorContext(r.Context(), "failed to start session",
			logger.Error(err),
			logger.Component("signup"),
			logger.Email(account.Email),
		)
		m.redirectError(w, r, err)
		return
	}

	m.recordCompletion(r, sessionID)
	http.Redirect(w, r, m.cfg.SuccessRedirectURL, http.StatusSeeOther)
}

// handleOAuthInitiate stores a state nonce and redirects to the provider.
// Initiation is a POST behind the double-submit check, so a third-party page
// cannot start the dance on a visitor's behalf.
func (m *Module) handleOAuthInitiate(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	authURL, err := m.oauth.Initiate(r.Context(), provider)
	if err != nil {
		m.respondError(w, r, err)
		return
	}

	m.tracker.RecordEvent(r.Context(), m.event(r, m.sessionID(r, ""), funnel.Event{
		Stage:  funnel.StageMethodChosen,
		Method: "oauth_" + provider,
	}))

	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

type oauthCallbackRequest struct {
	State string `query:"state" form:"state"`
	Code  string `query:"code"  form:"code"`
	Error string `query:"error" form:"error"`
}

// handleOAuthCallback processes the provider return and establishes the
// session on success. Google redirects back with query parameters; Apple
// posts a form body (response_mode=form_post), so both bindings are needed.
func (m *Module) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var req oauthCallbackRequest
	if r.Method == http.MethodPost {
		_ = binder.Form(r, &req)
	} else {
		_ = binder.Query(r, &req)
	}

	sessionID := m.sessionID(r, "")

	account, err := m.oauth.HandleCallback(r.Context(), provider, req.State, req.Code, req.Error)
	if err != nil {
		// Cancellation is soft: the person backed out, nothing failed.
		if !errors.Is(err, oauth.ErrCancelled) {
			m.recordFailure(r, sessionID, err)
		}
		m.redirectError(w, r, err)
		return
	}

	if _, err := m.sessions.Start(r.Context(), w, account); err != nil {
		m.log.ErrorContext(r.Context(), "failed to start session",
			logger.Error(err),
			logger.Component("signup"),
			logger.Provider(provider),
		)
		m.redirectError(w, r, err)
		return
	}

	m.recordCompletion(r, sessionID)
	http.Redirect(w, r, m.cfg.SuccessRedirectURL, http.StatusSeeOther)
}

type signupEventRequest struct {
	SessionID   string `json:"session_id"`
	Stage       string `json:"stage"`
	LandingPage string `json:"landing_page"`
	Referrer    string `json:"referrer"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	Method      string `json:"method"`
	ErrorCode   string `json:"error_code"`
}

// handleAnalyticsSignup ingests client-reported funnel events. Always 204:
// the endpoint is fire-and-forget, bad payloads are dropped, never bounced.
func (m *Module) handleAnalyticsSignup(w http.ResponseWriter, r *http.Request) {
	var req signupEventRequest
	if err := binder.JSON(r, &req); err == nil {
		m.tracker.RecordEvent(r.Context(), m.event(r, req.SessionID, funnel.Event{
			Stage:       funnel.Stage(req.Stage),
			LandingPage: req.LandingPage,
			Referrer:    req.Referrer,
			UTMSource:   req.UTMSource,
			UTMMedium:   req.UTMMedium,
			UTMCampaign: req.UTMCampaign,
			Method:      req.Method,
			ErrorCode:   req.ErrorCode,
		}))
	}
	w.WriteHeader(http.StatusNoContent)
}

type abandonmentRequest struct {
	SessionID         string   `json:"session_id"`
	LastField         string   `json:"last_field"`
	TimeOnLastFieldMs int64    `json:"time_on_last_field_ms"`
	TotalTimeMs       int64    `json:"total_time_ms"`
	FieldsTouched     []string `json:"fields_touched"`
	Reason            string   `json:"reason"`
	ErrorContext      string   `json:"error_context"`
}

// handleAnalyticsAbandonment ingests exit signals, typically sent via
// navigator.sendBeacon during page teardown.
func (m *Module) handleAnalyticsAbandonment(w http.ResponseWriter, r *http.Request) {
	var req abandonmentRequest
	if err := binder.JSON(r, &req); err == nil {
		m.tracker.RecordAbandonment(r.Context(), funnel.Abandonment{
			SessionID:         req.SessionID,
			LastField:         req.LastField,
			TimeOnLastFieldMs: req.TimeOnLastFieldMs,
			TotalTimeMs:       req.TotalTimeMs,
			FieldsTouched:     req.FieldsTouched,
			Reason:            funnel.AbandonReason(req.Reason),
			ErrorContext:      req.ErrorContext,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

type metricsResponse struct {
	ViewedToCompleted    float64 `json:"viewed_to_completed"`
	StartedToCompleted   float64 `json:"started_to_completed"`
	SubmittedToCompleted float64 `json:"submitted_to_completed"`
	AvgTimeToCompleteSec float64 `json:"avg_time_to_complete_sec"`
}

// handleMetrics reports read-side conversion metrics.
func (m *Module) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var resp metricsResponse

	resp.ViewedToCompleted = m.rate(ctx, funnel.StageViewed)
	resp.StartedToCompleted = m.rate(ctx, funnel.StageStarted)
	resp.SubmittedToCompleted = m.rate(ctx, funnel.StageSubmitted)

	if avg, err := m.tracker.AverageTimeToComplete(ctx); err == nil {
		resp.AvgTimeToCompleteSec = avg.Seconds()
	}

	respondJSON(w, http.StatusOK, resp)
}

func (m *Module) rate(ctx context.Context, from funnel.Stage) float64 {
	rate, err := m.tracker.ConversionRate(ctx, from, funnel.StageCompleted)
	if err != nil {
		return 0
	}
	return rate
}

func (m *Module) bindBody(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		return binder.JSON(r, v)
	}
	return binder.Form(r, v)
}

// sessionID resolves the signup session identifier from the explicit value,
// the request header, or the signup session cookie, in that order.
func (m *Module) sessionID(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie("signup_session"); err == nil {
		return c.Value
	}
	return ""
}

func (m *Module) event(r *http.Request, sessionID string, e funnel.Event) funnel.Event {
	e.SessionID = sessionID
	if e.DeviceType == "" || e.Browser == "" {
		ua := useragent.Parse(r.UserAgent())
		e.DeviceType = ua.DeviceType()
		e.Browser = ua.Browser()
	}
	return e
}

// recordProgress marks method selection and submission server-side so the
// funnel stays accurate even when a client stops reporting.
func (m *Module) recordProgress(r *http.Request, sessionID, method string) {
	if sessionID == "" {
		return
	}
	ctx := r.Context()
	m.tracker.RecordEvent(ctx, m.event(r, sessionID, funnel.Event{
		Stage:  funnel.StageMethodChosen,
		Method: method,
	}))
	m.tracker.RecordEvent(ctx, m.event(r, sessionID, funnel.Event{
		Stage: funnel.StageSubmitted,
	}))
}

func (m *Module) recordCompletion(r *http.Request, sessionID string) {
	if sessionID == "" {
		return
	}
	m.tracker.RecordEvent(r.Context(), m.event(r, sessionID, funnel.Event{
		Stage: funnel.StageCompleted,
	}))
}

func (m *Module) recordFailure(r *http.Request, sessionID string, err error) {
	if sessionID == "" {
		return
	}
	m.tracker.RecordEvent(r.Context(), m.event(r, sessionID, funnel.Event{
		Stage:     funnel.StageFailed,
		ErrorCode: string(taxonomy.FromError(err)),
	}))
}
