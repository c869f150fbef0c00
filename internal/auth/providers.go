package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dghubble/oauth1"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleAuthenticator covers YouTube channels and supports revocation.
type GoogleAuthenticator struct {
	*OAuth2Authenticator
}

func (a *GoogleAuthenticator) Revoke(ctx context.Context, tokens *Tokens) error {
	form := url.Values{"token": {tokens.AccessToken}}
	return a.revokeViaForm(ctx, "https://oauth2.googleapis.com/revoke", form)
}

// NewGoogleAuthenticator: access_type=offline and prompt=consent force
// Google to return a refresh token on every connect.
func NewGoogleAuthenticator(clientID, clientSecret, redirectURL string) *GoogleAuthenticator {
	inner := NewOAuth2Authenticator(OAuth2Settings{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.profile",
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/youtube.upload",
				"https://www.googleapis.com/auth/youtube.readonly",
			},
			Endpoint: google.Endpoint,
		},
		ExtraParams: url.Values{
			"access_type": {"offline"},
			"prompt":      {"consent"},
		},
		IdentityURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		Parse:       parseGoogleIdentity,
	})
	return &GoogleAuthenticator{OAuth2Authenticator: inner}
}

func parseGoogleIdentity(raw []byte) (*Identity, error) {
	var v struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &Identity{
		ID:         v.ID,
		Name:       v.Name,
		Username:   v.Email,
		Email:      v.Email,
		Picture:    v.Picture,
		ProfileURL: "https://www.youtube.com/channel/" + v.ID,
	}, nil
}

func NewFacebookAuthenticator(clientID, clientSecret, redirectURL string) *OAuth2Authenticator {
	return NewOAuth2Authenticator(OAuth2Settings{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"pages_show_list",
				"pages_manage_posts",
				"pages_read_engagement",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://www.facebook.com/v21.0/dialog/oauth",
				TokenURL:  "https://graph.facebook.com/v21.0/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		IdentityURL: "https://graph.facebook.com/v21.0/me?fields=id,name,picture{url},link",
		Parse:       parseFacebookIdentity,
	})
}

func parseFacebookIdentity(raw []byte) (*Identity, error) {
	var v struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Link    string `json:"link"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &Identity{
		ID:         v.ID,
		Name:       v.Name,
		Picture:    v.Picture.Data.URL,
		ProfileURL: v.Link,
	}, nil
}

func NewInstagramAuthenticator(clientID, clientSecret, redirectURL string) *OAuth2Authenticator {
	return NewOAuth2Authenticator(OAuth2Settings{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"instagram_business_basic",
				"instagram_business_content_publish",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://www.instagram.com/oauth/authorize",
				TokenURL:  "https://api.instagram.com/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		IdentityURL: "https://graph.instagram.com/me?fields=id,username,name,profile_picture_url",
		Parse:       parseInstagramIdentity,
	})
}

func parseInstagramIdentity(raw []byte) (*Identity, error) {
	var v struct {
		ID             string `json:"id"`
		Username       string `json:"username"`
		Name           string `json:"name"`
		ProfilePicture string `json:"profile_picture_url"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &Identity{
		ID:         v.ID,
		Name:       v.Name,
		Username:   v.Username,
		Picture:    v.ProfilePicture,
		ProfileURL: "https://www.instagram.com/" + v.Username,
	}, nil
}

// NewTikTokAuthenticator uses client_key instead of client_id on the
// authorization URL; the extra param carries it alongside the standard one.
func NewTikTokAuthenticator(clientKey, clientSecret, redirectURL string) *TikTokAuthenticator {
	inner := NewOAuth2Authenticator(OAuth2Settings{
		Config: &oauth2.Config{
			ClientID:     clientKey,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"user.info.basic",
				"user.info.profile",
				"video.publish",
				"video.upload",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://www.tiktok.com/v2/auth/authorize",
				TokenURL:  "https://open.tiktokapis.com/v2/oauth/token/",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		ExtraParams: url.Values{
			"client_key": {clientKey},
		},
		IdentityURL: "https://open.tiktokapis.com/v2/user/info/?fields=open_id,avatar_url,display_name,username",
		Parse:       parseTikTokIdentity,
	})
	return &TikTokAuthenticator{
		OAuth2Authenticator: inner,
		clientKey:           clientKey,
		accessTokenParam:    "client_key",
	}
}

// TikTokAuthenticator adds revocation on top of the OAuth2 flow.
type TikTokAuthenticator struct {
	*OAuth2Authenticator
	clientKey        string
	accessTokenParam string
}

func (a *TikTokAuthenticator) Revoke(ctx context.Context, tokens *Tokens) error {
	form := url.Values{
		a.accessTokenParam: {a.clientKey},
		"token":            {tokens.AccessToken},
	}
	return a.revokeViaForm(ctx, "https://open.tiktokapis.com/v2/oauth/revoke/", form)
}

func parseTikTokIdentity(raw []byte) (*Identity, error) {
	var v struct {
		Data struct {
			User struct {
				OpenID      string `json:"open_id"`
				AvatarURL   string `json:"avatar_url"`
				DisplayName string `json:"display_name"`
				Username    string `json:"username"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &Identity{
		ID:         v.Data.User.OpenID,
		Name:       v.Data.User.DisplayName,
		Username:   v.Data.User.Username,
		Picture:    v.Data.User.AvatarURL,
		ProfileURL: "https://www.tiktok.com/@" + v.Data.User.Username,
	}, nil
}

func NewLinkedInAuthenticator(clientID, clientSecret, redirectURL string) *OAuth2Authenticator {
	return NewOAuth2Authenticator(OAuth2Settings{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "profile", "w_member_social"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
				TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		IdentityURL: "https://api.linkedin.com/v2/userinfo",
		Parse:       parseLinkedInIdentity,
	})
}

func parseLinkedInIdentity(raw []byte) (*Identity, error) {
	var v struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &Identity{
		ID:      v.Sub,
		Name:    v.Name,
		Email:   v.Email,
		Picture: v.Picture,
	}, nil
}

// NewXAuthenticator uses the OAuth1 three-legged flow; X access credentials
// do not expire.
func NewXAuthenticator(consumerKey, consumerSecret, callbackURL string) *OAuth1Authenticator {
	config := &oauth1.Config{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		CallbackURL:    callbackURL,
		Endpoint: oauth1.Endpoint{
			RequestTokenURL: "https://api.twitter.com/oauth/request_token",
			AuthorizeURL:    "https://api.twitter.com/oauth/authorize",
			AccessTokenURL:  "https://api.twitter.com/oauth/access_token",
		},
	}
	identityURL := "https://api.twitter.com/1.1/account/verify_credentials.json"
	return NewOAuth1Authenticator(config, identityURL, parseXIdentity)
}

func parseXIdentity(raw []byte) (*Identity, error) {
	var v struct {
		IDStr      string `json:"id_str"`
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
		Picture    string `json:"profile_image_url_https"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &Identity{
		ID:         v.IDStr,
		Name:       v.Name,
		Username:   v.ScreenName,
		Picture:    v.Picture,
		ProfileURL: "https://x.com/" + v.ScreenName,
	}, nil
}

func (a *OAuth2Authenticator) revokeViaForm(ctx context.Context, endpoint string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: revoke returned status %d", resp.StatusCode)
	}
	return nil
}
