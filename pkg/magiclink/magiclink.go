package magiclink

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/signupkit/pkg/dispatch"
	"github.com/dmitrymomot/signupkit/pkg/email"
	"github.com/dmitrymomot/signupkit/pkg/identity"
	"github.com/dmitrymomot/signupkit/pkg/kv"
	"github.com/dmitrymomot/signupkit/pkg/logger"
	"github.com/dmitrymomot/signupkit/pkg/ratelimit"
	"github.com/dmitrymomot/signupkit/pkg/sanitizer"
	"github.com/dmitrymomot/signupkit/pkg/validator"
)

const (
	tokenKeyPrefix = "magiclink:token:"
	emailKeyPrefix = "magiclink:email:"

	// Token records outlive the token itself so a late click can be told
	// apart from a link that never existed. Within the grace window Redeem
	// reports the token as expired, not as unknown.
	expiryGrace = 72 * time.Hour
)

// Config holds magic link service configuration.
type Config struct {
	TokenTTL        time.Duration `env:"MAGIC_LINK_TTL" envDefault:"24h"`
	RateLimit       int           `env:"MAGIC_LINK_RATE_LIMIT" envDefault:"3"`
	RateWindow      time.Duration `env:"MAGIC_LINK_RATE_WINDOW" envDefault:"1h"`
	VerificationURL string        `env:"MAGIC_LINK_VERIFICATION_URL" envDefault:"http://localhost:8080/signup/verify"`
}

// record is the persisted shape: the token hash, never the token.
type record struct {
	Email     string `json:"email"`
	TokenHash string `json:"hash"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	Used      bool   `json:"used"`
}

// Service handles passwordless authentication via magic links.
type Service struct {
	store      kv.Store
	limiter    ratelimit.Limiter
	accounts   identity.Storage
	mailer     email.Sender
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger

	ttl       time.Duration
	verifyURL string
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a magic link authentication service. The dispatcher is
// used for email sending so a slow provider never blocks the request; pass
// nil to send synchronously.
func NewService(
	cfg Config,
	store kv.Store,
	limiter ratelimit.Limiter,
	accounts identity.Storage,
	mailer email.Sender,
	dispatcher *dispatch.Dispatcher,
	opts ...Option,
) *Service {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	s := &Service{
		store:      store,
		limiter:    limiter,
		accounts:   accounts,
		mailer:     mailer,
		dispatcher: dispatcher,
		log:        logger.NewDiscard(),
		ttl:        ttl,
		verifyURL:  cfg.VerificationURL,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RequestLink validates the email, applies the per-identifier rate limit,
// stores the token hash, and dispatches the verification email. Any prior
// unexpired token for the same email is invalidated (latest wins).
func (s *Service) RequestLink(ctx context.Context, rawEmail string) error {
	addr := sanitizer.NormalizeEmail(rawEmail)
	if err := validator.Apply(validator.ValidEmail("email", addr)); err != nil {
		return ErrInvalidEmail
	}

	res, err := s.limiter.Allow(ctx, addr)
	if err != nil {
		return fmt.Errorf("magiclink: rate limit check: %w", err)
	}
	if !res.Allowed {
		return ErrRateLimited
	}

	raw, hash, err := generateToken()
	if err != nil {
		return fmt.Errorf("magiclink: generate token: %w", err)
	}

	now := s.now()
	data, err := json.Marshal(record{
		Email:     addr,
		TokenHash: hash,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
		Used:      false,
	})
	if err != nil {
		return fmt.Errorf("magiclink: marshal record: %w", err)
	}

	// Latest wins: drop the previous live token for this email before the
	// new one becomes visible.
	if oldHash, err := s.store.GetDel(ctx, emailKeyPrefix+addr); err == nil {
		_ = s.store.Delete(ctx, tokenKeyPrefix+string(oldHash))
	}

	if err := s.store.Set(ctx, tokenKeyPrefix+hash, data, s.ttl+expiryGrace); err != nil {
		return fmt.Errorf("magiclink: store token: %w", err)
	}
	if err := s.store.Set(ctx, emailKeyPrefix+addr, []byte(hash), s.ttl); err != nil {
		return fmt.Errorf("magiclink: store email index: %w", err)
	}

	s.deliver(addr, raw)
	return nil
}

func (s *Service) deliver(addr, raw string) {
	params := email.VerificationEmail(addr, s.verificationURL(raw))

	send := func(ctx context.Context) error {
		if err := s.mailer.SendEmail(ctx, params); err != nil {
			return fmt.Errorf("send magic link to %s: %w", sanitizer.MaskEmail(addr), err)
		}
		return nil
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch("magiclink.send", send)
		return
	}

	if err := send(context.Background()); err != nil {
		s.log.Error("magic link delivery failed",
			logger.Error(err),
			logger.Component("magiclink"),
			logger.Email(addr),
		)
	}
}

func (s *Service) verificationURL(raw string) string {
	return s.verifyURL + "?token=" + url.QueryEscape(raw)
}

// Redeem resolves a raw token to an authenticated account, marking the token
// used exactly once. A second redeem with the same token fails with
// ErrTokenAlreadyUsed even under concurrent requests.
func (s *Service) Redeem(ctx context.Context, rawToken string) (*identity.Account, error) {
	if rawToken == "" {
		return nil, ErrTokenNotFound
	}

	hash := hashToken(rawToken)
	key := tokenKeyPrefix + hash

	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("magiclink: load token: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("magiclink: decode record: %w", err)
	}

	if rec.Used {
		return nil, ErrTokenAlreadyUsed
	}
	if s.now().Unix() > rec.ExpiresAt {
		return nil, ErrTokenExpired
	}

	used := rec
	used.Used = true
	next, err := json.Marshal(used)
	if err != nil {
		return nil, fmt.Errorf("magiclink: marshal record: %w", err)
	}

	// The compare-and-swap is the idempotency boundary: of two concurrent
	// redemptions exactly one wins. The used record is kept through the
	// grace window so repeat clicks keep reporting the token as used.
	ttl := time.Until(time.Unix(rec.ExpiresAt, 0).Add(expiryGrace))
	swapped, err := s.store.CompareAndSwap(ctx, key, data, next, ttl)
	if err != nil {
		return nil, fmt.Errorf("magiclink: mark used: %w", err)
	}
	if !swapped {
		return nil, ErrTokenAlreadyUsed
	}

	_ = s.store.Delete(ctx, emailKeyPrefix+rec.Email)

	return s.resolveAccount(ctx, rec.Email)
}

// resolveAccount returns the existing account for the email or creates one.
// Possession of the link proves control of the mailbox, so an account that
// was created through another method (e.g. OAuth) is authenticated as-is
// rather than duplicated.
func (s *Service) resolveAccount(ctx context.Context, addr string) (*identity.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, addr)
	if err == nil {
		if !account.IsVerified {
			if err := s.accounts.SetVerified(ctx, account.ID, true); err != nil {
				s.log.Error("failed to update verified status",
					logger.Error(err),
					logger.Component("magiclink"),
					logger.Email(addr),
				)
			}
			account.IsVerified = true
		}
		return account, nil
	}
	if !errors.Is(err, identity.ErrAccountNotFound) {
		return nil, fmt.Errorf("magiclink: lookup account: %w", err)
	}

	account = &identity.Account{
		ID:         uuid.New(),
		Email:      addr,
		AuthMethod: identity.MethodMagicLink,
		IsVerified: true,
		CreatedAt:  s.now(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("magiclink: create account: %w", err)
	}
	return account, nil
}

func generateToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
