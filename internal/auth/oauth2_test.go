package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newTestAuthenticator(tokenURL, identityURL string, pkce bool) *OAuth2Authenticator {
	return NewOAuth2Authenticator(OAuth2Settings{
		Config: &oauth2.Config{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "https://app.example.com/callback",
			Scopes:       []string{"profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://provider.example.com/authorize",
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		ExtraParams: url.Values{"access_type": {"offline"}},
		UsePKCE:     pkce,
		IdentityURL: identityURL,
		Parse: func(raw []byte) (*Identity, error) {
			var v struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return &Identity{ID: v.ID, Name: v.Name}, nil
		},
	})
}

func TestAuthorizationURLParams(t *testing.T) {
	a := newTestAuthenticator("https://provider.example.com/token", "", true)

	raw, err := a.AuthorizationURL(context.Background(), "state-123", "verifier-abc")
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	q := u.Query()
	if q.Get("state") != "state-123" {
		t.Fatalf("missing state: %v", q)
	}
	if q.Get("access_type") != "offline" {
		t.Fatalf("extra param not appended: %v", q)
	}
	if q.Get("code_challenge") == "" || q.Get("code_challenge_method") != "S256" {
		t.Fatalf("PKCE challenge not appended: %v", q)
	}
}

func TestExchangeCode(t *testing.T) {
	var gotVerifier string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotVerifier = r.FormValue("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	a := newTestAuthenticator(srv.URL, "", true)
	tokens, err := a.ExchangeCode(context.Background(), "code-1", "verifier-abc")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if tokens.AccessToken != "at-1" || tokens.RefreshToken != "rt-1" {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
	if gotVerifier != "verifier-abc" {
		t.Fatalf("code verifier not forwarded: %q", gotVerifier)
	}
	until := time.Until(tokens.ExpiresAt)
	if until < 55*time.Minute || until > 65*time.Minute {
		t.Fatalf("expiry not derived from expires_in: %v", tokens.ExpiresAt)
	}
}

func TestExchangeEmptyCode(t *testing.T) {
	a := newTestAuthenticator("https://provider.example.com/token", "", false)
	if _, err := a.ExchangeCode(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty code")
	}
}

func TestRefreshKeepsOldRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.FormValue("grant_type") != "refresh_token" {
			t.Errorf("unexpected grant_type %q", r.FormValue("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	a := newTestAuthenticator(srv.URL, "", false)
	tokens, err := a.Refresh(context.Background(), "rt-old")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tokens.AccessToken != "at-2" {
		t.Fatalf("unexpected access token: %+v", tokens)
	}
	if tokens.RefreshToken != "rt-old" {
		t.Fatalf("old refresh token not preserved: %+v", tokens)
	}
}

func TestIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); !strings.HasPrefix(got, "Bearer at-1") {
			t.Errorf("missing bearer header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"user-9","name":"Test User"}`))
	}))
	defer srv.Close()

	a := newTestAuthenticator("https://provider.example.com/token", srv.URL, false)
	identity, err := a.Identity(context.Background(), &Tokens{AccessToken: "at-1"})
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if identity.ID != "user-9" || identity.Name != "Test User" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestIdentityNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := newTestAuthenticator("https://provider.example.com/token", srv.URL, false)
	if _, err := a.Identity(context.Background(), &Tokens{AccessToken: "expired"}); err == nil {
		t.Fatal("expected error for non-200 identity response")
	}
}
