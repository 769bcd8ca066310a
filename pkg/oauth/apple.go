package oauth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const appleIssuer = "https://appleid.apple.com"

// AppleConfig holds configuration for the Sign in with Apple provider.
// ClientSecret is the ES256-signed client secret JWT Apple requires,
// generated out of band from the team key.
type AppleConfig struct {
	ClientID     string   `env:"APPLE_OAUTH_CLIENT_ID,required"`
	ClientSecret string   `env:"APPLE_OAUTH_CLIENT_SECRET,required"`
	RedirectURL  string   `env:"APPLE_OAUTH_REDIRECT_URL,required"`
	Scopes       []string `env:"APPLE_OAUTH_SCOPES" envSeparator:"," envDefault:"name,email"`
}

type appleAdapter struct {
	conf     *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewAppleAdapter creates a Sign in with Apple provider adapter. The OIDC
// discovery document is fetched once at construction to obtain Apple's
// signing keys for id_token verification.
func NewAppleAdapter(ctx context.Context, cfg AppleConfig) (ProviderAdapter, error) {
	provider, err := oidc.NewProvider(ctx, appleIssuer)
	if err != nil {
		return nil, fmt.Errorf("oauth: apple oidc discovery: %w", err)
	}

	return &appleAdapter{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     provider.Endpoint(),
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (a *appleAdapter) ProviderID() string {
	return ProviderApple
}

func (a *appleAdapter) AuthURL(state string) (string, error) {
	// Apple mandates form_post response mode when name or email scopes are
	// requested.
	return a.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "form_post")), nil
}

// ResolveProfile exchanges the code and reads identity claims from the
// verified id_token. Apple has no userinfo endpoint; the id_token is the only
// source of the user's email.
func (a *appleAdapter) ResolveProfile(ctx context.Context, code string) (Profile, error) {
	tok, err := a.conf.Exchange(ctx, code)
	if err != nil {
		return Profile{}, ErrInvalidCode
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Profile{}, fmt.Errorf("apple token response missing id_token")
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Profile{}, fmt.Errorf("verify apple id_token: %w", err)
	}

	var claims struct {
		Email         string     `json:"email"`
		EmailVerified boolString `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Profile{}, fmt.Errorf("parse apple claims: %w", err)
	}
	if claims.Email == "" {
		return Profile{}, ErrNoEmail
	}

	return Profile{
		ProviderUserID: idToken.Subject,
		Email:          claims.Email,
		EmailVerified:  bool(claims.EmailVerified),
	}, nil
}

// boolString accepts Apple's email_verified claim, which arrives as either a
// JSON bool or the string "true"/"false" depending on the token vintage.
type boolString bool

func (b *boolString) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = boolString(t)
	case string:
		*b = t == "true"
	default:
		*b = false
	}
	return nil
}

var _ ProviderAdapter = (*appleAdapter)(nil)
