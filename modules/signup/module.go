package signup

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/signupkit/pkg/csrf"
	"github.com/dmitrymomot/signupkit/pkg/funnel"
	"github.com/dmitrymomot/signupkit/pkg/logger"
	"github.com/dmitrymomot/signupkit/pkg/magiclink"
	"github.com/dmitrymomot/signupkit/pkg/oauth"
	"github.com/dmitrymomot/signupkit/pkg/session"
)

// SessionHeader carries the client-assigned signup session identifier so
// server-side funnel events correlate with client-reported ones.
const SessionHeader = "X-Signup-Session"

// Config holds signup module configuration.
type Config struct {
	SuccessRedirectURL string `env:"SIGNUP_SUCCESS_REDIRECT_URL" envDefault:"/welcome"`
	ErrorRedirectURL   string `env:"SIGNUP_ERROR_REDIRECT_URL" envDefault:"/signup/error"`
	ExposeMetrics      bool   `env:"SIGNUP_EXPOSE_METRICS" envDefault:"false"`
}

// Module bundles the signup HTTP surface: CSRF issuance, magic link and
// OAuth authentication, and funnel analytics intake.
type Module struct {
	cfg        Config
	csrf       *csrf.Manager
	magicLinks *magiclink.Service
	oauth      *oauth.Coordinator
	sessions   *session.Manager
	tracker    *funnel.Tracker
	log        *slog.Logger
}

// Option configures a Module.
type Option func(*Module)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Module) {
		if log != nil {
			m.log = log
		}
	}
}

// New creates the signup module.
func New(
	cfg Config,
	csrfManager *csrf.Manager,
	magicLinks *magiclink.Service,
	oauthCoordinator *oauth.Coordinator,
	sessions *session.Manager,
	tracker *funnel.Tracker,
	opts ...Option,
) *Module {
	m := &Module{
		cfg:        cfg,
		csrf:       csrfManager,
		magicLinks: magicLinks,
		oauth:      oauthCoordinator,
		sessions:   sessions,
		tracker:    tracker,
		log:        logger.NewDiscard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Router mounts all signup endpoints.
func (m *Module) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/csrf-token", m.handleCSRFToken)

	// State-changing submissions sit behind the double-submit check: the
	// email form and OAuth initiation both start an authentication attempt.
	r.Group(func(r chi.Router) {
		r.Use(m.csrf.Middleware(
			csrf.WithLogger(m.log),
			csrf.WithErrorHandler(m.csrfErrorHandler),
		))
		r.Post("/signup/email", m.handleEmailSignup)
		r.Post("/oauth/{provider}", m.handleOAuthInitiate)
	})

	r.Get("/signup/verify", m.handleVerify)

	// Providers return on both verbs: Google redirects with a GET, Apple
	// form-posts the callback. The single-use state nonce guards both.
	r.Get("/oauth/{provider}/callback", m.handleOAuthCallback)
	r.Post("/oauth/{provider}/callback", m.handleOAuthCallback)

	// Analytics intake is beacon-friendly: sendBeacon cannot set custom
	// headers, so these endpoints stay outside the CSRF group. They mutate
	// nothing but their own event store.
	r.Post("/analytics/signup", m.handleAnalyticsSignup)
	r.Post("/analytics/abandonment", m.handleAnalyticsAbandonment)

	if m.cfg.ExposeMetrics {
		r.Get("/analytics/metrics", m.handleMetrics)
	}

	return r
}
