package oauth

import "context"

// Supported provider identifiers.
const (
	ProviderGoogle = "google"
	ProviderApple  = "apple"
)

// Profile is the provider-agnostic shape of an authenticated provider user.
type Profile struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
}

// ProviderAdapter hides provider-specific wire details from the coordinator.
type ProviderAdapter interface {
	// ProviderID returns the stable provider identifier.
	ProviderID() string

	// AuthURL builds the provider authorization URL carrying the state token.
	AuthURL(state string) (string, error)

	// ResolveProfile exchanges the authorization code and returns the
	// normalized provider profile.
	ResolveProfile(ctx context.Context, code string) (Profile, error)
}
