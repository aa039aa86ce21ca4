// Package auth issues and checks the bearer tokens that guard remote
// commands such as the cycle reset.
//
// Tokens are HS256 JWTs signed with a shared secret. Each carries a scope
// naming the command it may trigger; there is no refresh flow, operators mint
// a new token with `nearair token` when one expires.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is how long issued tokens are valid.
	DefaultTokenTTL = 24 * time.Hour

	// DefaultIssuer and DefaultAudience are used when the config leaves them empty.
	DefaultIssuer   = "nearair"
	DefaultAudience = "nearair-commands"

	// ScopeReset allows triggering a reset.
	ScopeReset = "reset"
)

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrScopeDenied  = errors.New("token scope does not allow this command")
)

// Claims are the claims carried by a command token.
type Claims struct {
	jwt.RegisteredClaims

	Scope string `json:"scope"`
}

// TokenConfig holds configuration for Tokens.
type TokenConfig struct {
	SigningKey string
	Issuer     string
	Audience   string

	// TTL defaults to DefaultTokenTTL.
	TTL time.Duration

	Now func() time.Time
}

// Tokens issues and validates command tokens.
type Tokens struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
	now        func() time.Time
}

// NewTokens creates a Tokens service.
func NewTokens(cfg TokenConfig) *Tokens {
	t := &Tokens{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		ttl:        cfg.TTL,
		now:        cfg.Now,
	}
	if t.issuer == "" {
		t.issuer = DefaultIssuer
	}
	if t.audience == "" {
		t.audience = DefaultAudience
	}
	if t.ttl <= 0 {
		t.ttl = DefaultTokenTTL
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Issue creates a token for subject limited to scope.
func (t *Tokens) Issue(subject, scope string) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Scope: scope,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate checks the token signature, issuer, audience and expiry, and that
// it was issued for scope.
func (t *Tokens) Validate(tokenString, scope string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != scope {
		return nil, ErrScopeDenied
	}
	return claims, nil
}
