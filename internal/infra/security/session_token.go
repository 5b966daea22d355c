package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenSigner mints signed bearer tokens for sessions. Tokens carry
// no expiry claim; the session row's sliding horizon is the sole source of
// validity.
type SessionTokenSigner struct {
	secret []byte
}

// NewSessionTokenSigner constructs a signer from the configured secret.
func NewSessionTokenSigner(secret string) (*SessionTokenSigner, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, fmt.Errorf("session token secret is required")
	}
	return &SessionTokenSigner{secret: []byte(trimmed)}, nil
}

// Mint signs a token tying the session id to the account it belongs to.
func (s *SessionTokenSigner) Mint(sessionID, accountID string, issuedAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       sessionID,
		Subject:  accountID,
		IssuedAt: jwt.NewNumericDate(issuedAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return signed, nil
}
