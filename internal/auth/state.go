package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"channelpress/internal/transfer"
)

// StateManager issues and verifies the signed state token that correlates an
// authorization request with its callback. The issued value is mirrored into
// a short-lived cookie; Verify compares the cookie and the callback query
// value byte-for-byte before trusting the signature.
type StateManager struct {
	secret []byte
	ttl    time.Duration
}

func NewStateManager(secret string, ttl time.Duration) *StateManager {
	return &StateManager{secret: []byte(secret), ttl: ttl}
}

// Issue signs the claims with a fresh nonce and expiry.
func (m *StateManager) Issue(claims *transfer.StateClaims) (string, error) {
	nonce, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	claims.Nonce = nonce
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Issuer:    "channelpress",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return signed, nil
}

// Verify checks the callback state against the issued one. Any mismatch,
// missing value, bad signature or expiry is an ErrStateMismatch; token
// exchange must not proceed.
func (m *StateManager) Verify(issued, returned string) (*transfer.StateClaims, error) {
	if issued == "" || returned == "" {
		return nil, fmt.Errorf("%w: missing state value", ErrStateMismatch)
	}
	if subtle.ConstantTimeCompare([]byte(issued), []byte(returned)) != 1 {
		return nil, fmt.Errorf("%w: issued and returned values differ", ErrStateMismatch)
	}

	token, err := jwt.ParseWithClaims(returned, &transfer.StateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("%w: %v", ErrStateMismatch, err)
	}

	claims, ok := token.Claims.(*transfer.StateClaims)
	if !ok || !token.Valid || claims.Nonce == "" {
		return nil, fmt.Errorf("%w: invalid claims", ErrStateMismatch)
	}
	return claims, nil
}
