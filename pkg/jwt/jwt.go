// Package jwt issues and validates the service's signed access tokens.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the access-token claims. Permissions are deliberately not
// embedded: the authentication middleware resolves the live permission
// claim set per request, so revocations take effect immediately.
type Claims struct {
	Email    string   `json:"email"`
	FullName string   `json:"name"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Manager signs and validates access tokens with a symmetric secret shared
// between issuer and validator.
type Manager struct {
	secret    []byte
	issuer    string
	audience  string
	accessTTL time.Duration
	now       func() time.Time
}

// NewManager creates a token manager. The secret must be non-empty; issuer
// and audience are embedded into every token and required on validation.
func NewManager(secret, issuer, audience string, accessTTL time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("jwt: signing secret is required")
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("jwt: issuer and audience are required")
	}
	if accessTTL <= 0 {
		return nil, errors.New("jwt: access token TTL must be positive")
	}
	return &Manager{
		secret:    []byte(secret),
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		now:       time.Now,
	}, nil
}

// Issuer returns the configured trusted issuer string.
func (m *Manager) Issuer() string { return m.issuer }

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// Generate signs an access token for the subject carrying identity claims
// and one roles entry per assigned role. Returns the token and its expiry.
func (m *Manager) Generate(userID, email, fullName string, roles []string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.accessTTL)

	claims := &Claims{
		Email:    email,
		FullName: fullName,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a token: signature, issuer, audience, and
// expiry, with zero clock-skew tolerance. An expired token yields
// ErrTokenExpired so callers can distinguish it from a malformed one.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
