// Package auth mints and checks the bearer tokens that guard the status API's
// mutating routes and live feed.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is stamped into every token minted by streamchat.
const DefaultIssuer = "streamchat"

// ErrNoSecret is returned when tokens are requested without a configured secret.
var ErrNoSecret = errors.New("api secret is not configured")

// Claims represents JWT claims for API access.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// NewJWTConfig returns nil when secret is empty.
func NewJWTConfig(secret string, ttl time.Duration) *JWTConfig {
	if secret == "" {
		return nil
	}
	return &JWTConfig{Secret: []byte(secret), Issuer: DefaultIssuer, TTL: ttl}
}

// GenerateToken creates a new JWT token for subject.
func GenerateToken(cfg *JWTConfig, subject string) (string, error) {
	if cfg == nil || len(cfg.Secret) == 0 {
		return "", ErrNoSecret
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   cfg.Issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if cfg.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(cfg.TTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken parses and validates a JWT token.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	if cfg == nil || len(cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	return claims, nil
}
