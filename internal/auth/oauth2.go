package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// IdentityParser converts a provider's raw userinfo JSON into an Identity.
type IdentityParser func(raw []byte) (*Identity, error)

// OAuth2Settings configures one provider's OAuth2 flow.
type OAuth2Settings struct {
	Config *oauth2.Config
	// ExtraParams are static query parameters the provider requires on the
	// authorization URL (e.g. access_type=offline, prompt=consent).
	ExtraParams url.Values
	UsePKCE     bool
	IdentityURL string
	Parse       IdentityParser
}

// OAuth2Authenticator implements Authenticator on top of golang.org/x/oauth2.
// Client authentication style (basic auth vs request body) is selected per
// provider through the endpoint's AuthStyle.
type OAuth2Authenticator struct {
	settings OAuth2Settings
	client   *http.Client
}

func NewOAuth2Authenticator(settings OAuth2Settings) *OAuth2Authenticator {
	return &OAuth2Authenticator{
		settings: settings,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// GenerateVerifier returns a fresh PKCE code verifier.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

func (a *OAuth2Authenticator) UsesPKCE() bool {
	return a.settings.UsePKCE
}

func (a *OAuth2Authenticator) AuthorizationURL(_ context.Context, state, verifier string) (string, error) {
	opts := make([]oauth2.AuthCodeOption, 0, len(a.settings.ExtraParams)+1)
	for key, values := range a.settings.ExtraParams {
		for _, v := range values {
			opts = append(opts, oauth2.SetAuthURLParam(key, v))
		}
	}
	if a.settings.UsePKCE && verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return a.settings.Config.AuthCodeURL(state, opts...), nil
}

func (a *OAuth2Authenticator) ExchangeCode(ctx context.Context, code, verifier string) (*Tokens, error) {
	if code == "" {
		return nil, fmt.Errorf("auth: empty authorization code")
	}

	var opts []oauth2.AuthCodeOption
	if a.settings.UsePKCE && verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	token, err := a.settings.Config.Exchange(ctx, code, opts...)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("auth: code exchange failed: %w", err)
	}

	return tokensFromOAuth2(token), nil
}

func (a *OAuth2Authenticator) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, ErrRefreshUnsupported
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	source := a.settings.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("auth: token refresh failed: %w", err)
	}

	tokens := tokensFromOAuth2(token)
	if tokens.RefreshToken == "" {
		// Providers that do not rotate refresh tokens omit the field.
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

func (a *OAuth2Authenticator) Identity(ctx context.Context, tokens *Tokens) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.settings.IdentityURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("auth: identity request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		slog.Info("identity endpoint returned non-200 status", "status", resp.StatusCode)
		return nil, fmt.Errorf("auth: identity endpoint returned status %d", resp.StatusCode)
	}

	return a.settings.Parse(body)
}

func tokensFromOAuth2(token *oauth2.Token) *Tokens {
	return &Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
}
