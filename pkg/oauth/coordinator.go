package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/signupkit/pkg/identity"
	"github.com/dmitrymomot/signupkit/pkg/kv"
	"github.com/dmitrymomot/signupkit/pkg/logger"
	"github.com/dmitrymomot/signupkit/pkg/sanitizer"
)

const stateKeyPrefix = "oauthstate:"

// Coordinator drives the authorization-code flow across registered providers.
// State nonces are single-use: every callback consumes its nonce before any
// other processing, including cancellations, so a nonce can never be replayed.
type Coordinator struct {
	adapters map[string]ProviderAdapter
	store    kv.Store
	accounts identity.Storage
	log      *slog.Logger

	stateTTL     time.Duration
	verifiedOnly bool
	now          func() time.Time
}

// CoordinatorOption configures a Coordinator during construction.
type CoordinatorOption func(*Coordinator)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithStateTTL overrides the state nonce lifetime.
func WithStateTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.stateTTL = ttl
		}
	}
}

// WithVerifiedOnly controls whether unverified provider emails are rejected.
// Defaults to true: linking an unverified email to an existing account would
// allow takeover through a provider that skips email verification.
func WithVerifiedOnly(verifiedOnly bool) CoordinatorOption {
	return func(c *Coordinator) {
		c.verifiedOnly = verifiedOnly
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator creates a Coordinator over the given provider adapters.
func NewCoordinator(store kv.Store, accounts identity.Storage, adapters []ProviderAdapter, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		adapters:     make(map[string]ProviderAdapter, len(adapters)),
		store:        store,
		accounts:     accounts,
		log:          logger.NewDiscard(),
		stateTTL:     10 * time.Minute,
		verifiedOnly: true,
		now:          time.Now,
	}
	for _, a := range adapters {
		c.adapters[a.ProviderID()] = a
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Providers returns the registered provider identifiers.
func (c *Coordinator) Providers() []string {
	ids := make([]string, 0, len(c.adapters))
	for id := range c.adapters {
		ids = append(ids, id)
	}
	return ids
}

// Initiate stores a fresh state nonce and returns the provider authorization
// URL to redirect the user to.
func (c *Coordinator) Initiate(ctx context.Context, provider string) (string, error) {
	adapter, ok := c.adapters[provider]
	if !ok {
		return "", ErrUnknownProvider
	}

	nonce, err := generateNonce()
	if err != nil {
		return "", fmt.Errorf("oauth: generate state: %w", err)
	}

	if err := c.store.Set(ctx, stateKey(provider, nonce), []byte{1}, c.stateTTL); err != nil {
		return "", fmt.Errorf("oauth: store state: %w", err)
	}

	authURL, err := adapter.AuthURL(nonce)
	if err != nil {
		return "", fmt.Errorf("oauth: build auth url: %w", err)
	}
	return authURL, nil
}

// HandleCallback processes the provider redirect. errParam carries the
// provider's error query parameter when present; "access_denied" maps to
// ErrCancelled. On success the account is created or, when an account with
// the same verified email already exists, linked to it.
func (c *Coordinator) HandleCallback(ctx context.Context, provider, state, code, errParam string) (*identity.Account, error) {
	adapter, ok := c.adapters[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	// Consume the nonce first on every path so cancelled flows cannot be
	// replayed either.
	if _, err := c.store.GetDel(ctx, stateKey(provider, state)); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrStateMismatch
		}
		return nil, fmt.Errorf("oauth: consume state: %w", err)
	}

	if errParam != "" {
		if errParam == "access_denied" {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("%w: %s", ErrProviderError, errParam)
	}

	profile, err := adapter.ResolveProfile(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrNoEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrProviderError, err)
	}

	if profile.ProviderUserID == "" {
		return nil, fmt.Errorf("%w: missing provider user id", ErrProviderError)
	}
	if profile.Email == "" {
		return nil, ErrNoEmail
	}
	profile.Email = sanitizer.NormalizeEmail(profile.Email)

	if c.verifiedOnly && !profile.EmailVerified {
		return nil, ErrUnverifiedEmail
	}

	return c.resolveAccount(ctx, adapter.ProviderID(), profile)
}

// resolveAccount deduplicates by provider identity first, then by email.
// An existing account with the same verified email is linked rather than
// duplicated, matching the magic link path for the same person.
func (c *Coordinator) resolveAccount(ctx context.Context, provider string, profile Profile) (*identity.Account, error) {
	account, err := c.accounts.GetByProvider(ctx, provider, profile.ProviderUserID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, identity.ErrAccountNotFound) {
		return nil, fmt.Errorf("oauth: lookup provider link: %w", err)
	}

	account, err = c.accounts.GetByEmail(ctx, profile.Email)
	if err == nil {
		if err := c.accounts.LinkProvider(ctx, account.ID, provider, profile.ProviderUserID); err != nil {
			return nil, fmt.Errorf("oauth: link provider: %w", err)
		}
		if !account.IsVerified {
			if err := c.accounts.SetVerified(ctx, account.ID, true); err != nil {
				c.log.Error("failed to update verified status",
					logger.Error(err),
					logger.Component("oauth"),
					logger.Provider(provider),
					logger.Email(profile.Email),
				)
			}
			account.IsVerified = true
		}
		return account, nil
	}
	if !errors.Is(err, identity.ErrAccountNotFound) {
		return nil, fmt.Errorf("oauth: lookup email: %w", err)
	}

	account = &identity.Account{
		ID:         uuid.New(),
		Email:      profile.Email,
		Name:       profile.Name,
		AuthMethod: methodForProvider(provider),
		IsVerified: profile.EmailVerified,
		CreatedAt:  c.now(),
	}
	if err := c.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("oauth: create account: %w", err)
	}
	if err := c.accounts.LinkProvider(ctx, account.ID, provider, profile.ProviderUserID); err != nil {
		return nil, fmt.Errorf("oauth: link provider: %w", err)
	}
	return account, nil
}

func methodForProvider(provider string) string {
	switch provider {
	case ProviderGoogle:
		return identity.MethodOAuthGoogle
	case ProviderApple:
		return identity.MethodOAuthApple
	default:
		return "oauth_" + provider
	}
}

func stateKey(provider, nonce string) string {
	return stateKeyPrefix + provider + ":" + nonce
}

func generateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
