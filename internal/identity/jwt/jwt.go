// Package jwt issues and validates HS256 access tokens.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/identity"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "incident-bot"

// Config contains token settings.
type Config struct {
	SecretKey           string
	AccessTokenDuration time.Duration
}

// Authenticator implements identity.Authenticator with signed JWTs.
type Authenticator struct {
	config Config
	now    func() time.Time
}

// NewAuthenticator creates a new JWT authenticator.
func NewAuthenticator(config Config) *Authenticator {
	return &Authenticator{config: config, now: time.Now}
}

type claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken issues an access token for user.
func (a *Authenticator) GenerateToken(_ context.Context, user *domain.User) (*identity.Token, error) {
	now := a.now()
	expiresAt := now.Add(a.config.AccessTokenDuration)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &identity.Token{AccessToken: signed, ExpiresAt: expiresAt}, nil
}

// ValidateAccessToken parses token and returns its subject and role.
func (a *Authenticator) ValidateAccessToken(_ context.Context, token string) (string, domain.Role, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return []byte(a.config.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", "", errors.Join(identity.ErrInvalidToken, err)
	}

	if c.Subject == "" || !c.Role.IsValid() {
		return "", "", identity.ErrInvalidToken
	}

	return c.Subject, c.Role, nil
}
