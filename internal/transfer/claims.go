package transfer

import "github.com/golang-jwt/jwt/v5"

// CustomClaims authenticates API requests; the subject is an organization.
type CustomClaims struct {
	OrganizationID string `json:"org_id"`
	jwt.RegisteredClaims
}

// StateClaims travel inside the signed OAuth state token. The verifier is
// the PKCE code verifier for providers that require one; redirect templates
// may contain a {{cId}} placeholder substituted with the new channel id.
type StateClaims struct {
	OrganizationID  string `json:"org_id"`
	Platform        string `json:"platform"`
	Nonce           string `json:"nonce"`
	Verifier        string `json:"verifier,omitempty"`
	RedirectSuccess string `json:"redirect_success,omitempty"`
	RedirectDeny    string `json:"redirect_deny,omitempty"`
	jwt.RegisteredClaims
}
