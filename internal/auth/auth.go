package auth

import (
	"context"
	"errors"
	"time"
)

// Tokens are provider credentials in plaintext. Callers encrypt them before
// persisting; they must never be logged.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	// TokenSecret is only set by the OAuth1 flow.
	TokenSecret string
	ExpiresAt   time.Time
	Scope       string
}

// Expired reports whether the access token is within leeway of its expiry.
// A zero ExpiresAt means the token does not expire.
func (t *Tokens) Expired(leeway time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(leeway).After(t.ExpiresAt)
}

// Identity is the normalized provider user record.
type Identity struct {
	ID         string
	Name       string
	Username   string
	Email      string
	Picture    string
	ProfileURL string
}

var (
	// ErrRefreshUnsupported is returned by protocols without a refresh
	// concept (OAuth1 access credentials live until revoked).
	ErrRefreshUnsupported = errors.New("auth: token refresh not supported")

	// ErrStateMismatch means the callback state did not match the value
	// issued at authorization time. The callback must not proceed.
	ErrStateMismatch = errors.New("auth: state mismatch")
)

// Authenticator abstracts the OAuth1/OAuth2 flows behind one contract.
type Authenticator interface {
	// AuthorizationURL builds the provider consent URL. OAuth1 performs a
	// request-token round trip here; OAuth2 is purely local.
	AuthorizationURL(ctx context.Context, state, verifier string) (string, error)

	// ExchangeCode trades the callback code (OAuth1: the oauth_verifier,
	// with the request token passed as verifier) for access credentials.
	ExchangeCode(ctx context.Context, code, verifier string) (*Tokens, error)

	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)

	Identity(ctx context.Context, tokens *Tokens) (*Identity, error)

	// UsesPKCE tells the caller to generate a code verifier before
	// building the authorization URL.
	UsesPKCE() bool
}

// Revoker is implemented by authenticators whose provider exposes a token
// revocation endpoint, called on channel deactivation.
type Revoker interface {
	Revoke(ctx context.Context, tokens *Tokens) error
}
