// Package auth issues and verifies session credentials and talks to the
// identity provider that proves a user owns an email address.
//
// A session credential is an HS256 JWT. It is self-contained: the claims
// carry the user id, email, name and handle, and nothing is stored server
// side. Logging out only clears the cookie.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"

	"github.com/sakif/memeboard/internal/model"
)

// SessionTTL is how long a session credential stays valid.
const SessionTTL = 30 * 24 * time.Hour

const issuer = "memeboard"

// TokenService signs and verifies session credentials with an HMAC secret.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// SessionClaims is the credential payload. Subject holds the user id in
// decimal; ID is a unique credential id.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Handle string `json:"handle,omitempty"`
}

// UserID parses the Subject claim.
func (c *SessionClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("auth: invalid subject %q", c.Subject)
	}
	return id, nil
}

// Issue signs a credential for user, valid for SessionTTL from now.
func (s *TokenService) Issue(user *model.User) (string, error) {
	return s.issueAt(user, time.Now())
}

func (s *TokenService) issueAt(user *model.User, now time.Time) (string, error) {
	if user == nil || user.ID <= 0 {
		return "", errors.New("auth: cannot issue a credential without a user id")
	}

	c := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
		Email:  user.Email,
		Name:   user.Name,
		Handle: user.Handle,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and expiry and returns the claims.
// Only HS256 is accepted, so "none" and key-confusion tokens are rejected.
func (s *TokenService) Parse(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired: %w", err)
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	if _, err := c.UserID(); err != nil {
		return nil, err
	}
	return c, nil
}
