package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
)

// OAuth1Authenticator implements the three-legged OAuth1 flow. The request
// token secret obtained in AuthorizationURL is held in memory until the
// callback exchanges it; entries expire after pendingTTL.
type OAuth1Authenticator struct {
	config      *oauth1.Config
	identityURL string
	parse       IdentityParser

	mu      sync.Mutex
	pending map[string]pendingRequest
}

type pendingRequest struct {
	secret   string
	issuedAt time.Time
}

const pendingTTL = 15 * time.Minute

func NewOAuth1Authenticator(config *oauth1.Config, identityURL string, parse IdentityParser) *OAuth1Authenticator {
	return &OAuth1Authenticator{
		config:      config,
		identityURL: identityURL,
		parse:       parse,
		pending:     make(map[string]pendingRequest),
	}
}

func (a *OAuth1Authenticator) UsesPKCE() bool { return false }

func (a *OAuth1Authenticator) AuthorizationURL(ctx context.Context, state, _ string) (string, error) {
	// The provider only echoes oauth_token and oauth_verifier back to the
	// callback, so the state rides on the callback URL itself.
	cfg := *a.config
	if state != "" {
		callback, err := url.Parse(cfg.CallbackURL)
		if err != nil {
			return "", fmt.Errorf("auth: bad callback url: %w", err)
		}
		q := callback.Query()
		q.Set("state", state)
		callback.RawQuery = q.Encode()
		cfg.CallbackURL = callback.String()
	}

	requestToken, requestSecret, err := cfg.RequestToken()
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("auth: request token failed: %w", err)
	}

	a.mu.Lock()
	for token, p := range a.pending {
		if time.Since(p.issuedAt) > pendingTTL {
			delete(a.pending, token)
		}
	}
	a.pending[requestToken] = pendingRequest{secret: requestSecret, issuedAt: time.Now()}
	a.mu.Unlock()

	authorizeURL, err := a.config.AuthorizationURL(requestToken)
	if err != nil {
		return "", err
	}
	return authorizeURL.String(), nil
}

// ExchangeCode completes the flow: code is the oauth_verifier from the
// callback and verifier carries the oauth_token (request token).
func (a *OAuth1Authenticator) ExchangeCode(ctx context.Context, code, verifier string) (*Tokens, error) {
	requestToken := verifier
	if requestToken == "" || code == "" {
		return nil, errors.New("auth: missing oauth_token or oauth_verifier")
	}

	a.mu.Lock()
	p, ok := a.pending[requestToken]
	delete(a.pending, requestToken)
	a.mu.Unlock()
	if !ok || time.Since(p.issuedAt) > pendingTTL {
		return nil, fmt.Errorf("%w: unknown or expired request token", ErrStateMismatch)
	}

	accessToken, accessSecret, err := a.config.AccessToken(requestToken, p.secret, code)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("auth: access token exchange failed: %w", err)
	}

	// OAuth1 access credentials are long-lived until revoked.
	return &Tokens{AccessToken: accessToken, TokenSecret: accessSecret}, nil
}

func (a *OAuth1Authenticator) Refresh(ctx context.Context, _ string) (*Tokens, error) {
	return nil, ErrRefreshUnsupported
}

func (a *OAuth1Authenticator) Identity(ctx context.Context, tokens *Tokens) (*Identity, error) {
	client := a.config.Client(ctx, oauth1.NewToken(tokens.AccessToken, tokens.TokenSecret))
	client.Timeout = 15 * time.Second

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.identityURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
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

	return a.parse(body)
}
