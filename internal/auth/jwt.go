// Package auth issues and verifies the gateway's bearer tokens and checks
// wallet login signatures.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ErrRoleMismatch the token is valid but was issued for another role
var ErrRoleMismatch = errors.New("token role not accepted")

// Claims JWT claims shared by user and admin tokens
type Claims struct {
	Subject string `json:"sub_name"` // user address or admin username
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates HS256 tokens for one role
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	role   string
}

// NewJWTManager requires a non-empty secret.
func NewJWTManager(secret string, ttl time.Duration, issuer, role string) (*JWTManager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is not configured")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(secret), ttl: ttl, issuer: issuer, role: role}, nil
}

// Issue creates a token for subject
func (m *JWTManager) Issue(subject string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(m.ttl)
	claims := Claims{
		Subject: subject,
		Role:    m.role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Validate parses tokenString and checks signature, expiry and issuer. A
// token for another role returns its claims together with ErrRoleMismatch.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != m.role {
		return claims, fmt.Errorf("%w: %q", ErrRoleMismatch, claims.Role)
	}
	return claims, nil
}
