package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/signupkit/modules/signup"
	"github.com/dmitrymomot/signupkit/pkg/config"
	"github.com/dmitrymomot/signupkit/pkg/cookie"
	"github.com/dmitrymomot/signupkit/pkg/csrf"
	"github.com/dmitrymomot/signupkit/pkg/dispatch"
	"github.com/dmitrymomot/signupkit/pkg/email"
	"github.com/dmitrymomot/signupkit/pkg/funnel"
	"github.com/dmitrymomot/signupkit/pkg/httpserver"
	"github.com/dmitrymomot/signupkit/pkg/identity"
	"github.com/dmitrymomot/signupkit/pkg/kv"
	"github.com/dmitrymomot/signupkit/pkg/logger"
	"github.com/dmitrymomot/signupkit/pkg/magiclink"
	"github.com/dmitrymomot/signupkit/pkg/oauth"
	"github.com/dmitrymomot/signupkit/pkg/pg"
	"github.com/dmitrymomot/signupkit/pkg/ratelimit"
	pkgredis "github.com/dmitrymomot/signupkit/pkg/redis"
	"github.com/dmitrymomot/signupkit/pkg/requestid"
	"github.com/dmitrymomot/signupkit/pkg/session"
)

// appConfig selects storage and delivery drivers. Memory drivers keep local
// development dependency-free; production runs redis + postgres + postmark.
type appConfig struct {
	CookieSecret string `env:"COOKIE_SECRET,required"`

	KVDriver     string `env:"KV_DRIVER" envDefault:"memory"`       // memory | redis
	FunnelDriver string `env:"FUNNEL_DRIVER" envDefault:"memory"`   // memory | postgres
	EmailDriver  string `env:"EMAIL_DRIVER" envDefault:"dev"`       // dev | postmark
	GoogleOAuth  bool   `env:"GOOGLE_OAUTH_ENABLED" envDefault:"false"`
	AppleOAuth   bool   `env:"APPLE_OAUTH_ENABLED" envDefault:"false"`
}

func main() {
	ctx := context.Background()

	var logCfg logger.Config
	config.MustLoad(&logCfg)
	log := logger.NewFromConfig(logCfg, logger.WithAttr(logger.Component("signup-server")))

	if err := run(ctx, log); err != nil {
		log.ErrorContext(ctx, "server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	var app appConfig
	config.MustLoad(&app)

	cookies, err := cookie.New(app.CookieSecret)
	if err != nil {
		return err
	}

	var healthchecks []func(context.Context) error

	// Key-value storage backs CSRF-adjacent state, magic link tokens, OAuth
	// state nonces, sessions and rate limit counters.
	var (
		kvStore kv.Store
		rlStore ratelimit.Store
	)
	switch app.KVDriver {
	case "redis":
		var redisCfg pkgredis.Config
		config.MustLoad(&redisCfg)
		client, err := pkgredis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()
		kvStore = kv.NewRedisStore(client)
		rlStore = ratelimit.NewRedisStore(client, "ratelimit")
		healthchecks = append(healthchecks, pkgredis.Healthcheck(client))
	default:
		memKV := kv.NewMemoryStore()
		defer memKV.Close()
		memRL := ratelimit.NewMemoryStore()
		defer memRL.Close()
		kvStore = memKV
		rlStore = memRL
	}

	// Postgres, when enabled, holds both the funnel data and the accounts.
	var (
		funnelStore funnel.Store
		accounts    identity.Storage
	)
	switch app.FunnelDriver {
	case "postgres":
		var pgCfg pg.Config
		config.MustLoad(&pgCfg)
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
			return err
		}
		funnelStore = funnel.NewPostgresStore(pool)
		accounts = identity.NewPostgresStorage(pool)
		healthchecks = append(healthchecks, pg.Healthcheck(pool))
	default:
		funnelStore = funnel.NewMemoryStore()
		accounts = identity.NewMemoryStorage()
	}

	var mailer email.Sender
	switch app.EmailDriver {
	case "postmark":
		var emailCfg email.Config
		config.MustLoad(&emailCfg)
		mailer, err = email.NewPostmarkClient(emailCfg)
		if err != nil {
			return err
		}
	default:
		mailer = email.NewDevSender(log)
	}

	dispatcher := dispatch.New(dispatch.WithLogger(log))
	defer dispatcher.Close()

	var csrfCfg csrf.Config
	config.MustLoad(&csrfCfg)
	csrfManager, err := csrf.NewManager(csrfCfg, cookies)
	if err != nil {
		return err
	}

	var magicCfg magiclink.Config
	config.MustLoad(&magicCfg)
	limiter, err := ratelimit.NewSlidingWindow(rlStore, magicCfg.RateLimit, magicCfg.RateWindow)
	if err != nil {
		return err
	}

	magicLinks := magiclink.NewService(magicCfg, kvStore, limiter, accounts, mailer, dispatcher,
		magiclink.WithLogger(log))

	adapters, err := buildAdapters(ctx, app)
	if err != nil {
		return err
	}
	coordinator := oauth.NewCoordinator(kvStore, accounts, adapters, oauth.WithLogger(log))

	var sessionCfg session.Config
	config.MustLoad(&sessionCfg)
	sessions := session.NewManager(sessionCfg, kvStore, cookies)

	tracker := funnel.NewTracker(funnelStore, dispatcher, funnel.WithLogger(log))

	var signupCfg signup.Config
	config.MustLoad(&signupCfg)
	mod := signup.New(signupCfg, csrfManager, magicLinks, coordinator, sessions, tracker,
		signup.WithLogger(log))

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestid.Middleware)
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log, healthchecks...))
	r.Mount("/", mod.Router())

	var srvCfg httpserver.Config
	config.MustLoad(&srvCfg)
	srv := httpserver.NewFromConfig(srvCfg, httpserver.WithLogger(log))

	return srv.Run(ctx, r)
}

func buildAdapters(ctx context.Context, app appConfig) ([]oauth.ProviderAdapter, error) {
	var adapters []oauth.ProviderAdapter

	if app.GoogleOAuth {
		var cfg oauth.GoogleConfig
		config.MustLoad(&cfg)
		adapters = append(adapters, oauth.NewGoogleAdapter(cfg))
	}

	if app.AppleOAuth {
		var cfg oauth.AppleConfig
		config.MustLoad(&cfg)
		apple, err := oauth.NewAppleAdapter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, apple)
	}

	return adapters, nil
}
