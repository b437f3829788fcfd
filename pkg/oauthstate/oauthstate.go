// Package oauthstate issues and checks the signed state parameter of the
// OAuth authorization-code flow, so no server-side state store is needed.
package oauthstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "ghsync"

// ErrStateInvalid is returned when a state value is malformed, forged or expired.
var ErrStateInvalid = errors.New("oauth state is invalid or expired")

// Claims carried in a state value.
type Claims struct {
	// ReturnTo is an optional frontend path to land on after the callback.
	ReturnTo string `json:"return_to,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and validates state values with an HMAC secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. ttl <= 0 defaults to ten minutes.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("state secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a new state value.
func (s *Signer) Issue(returnTo string) (string, error) {
	now := s.now()
	claims := &Claims{
		ReturnTo: returnTo,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign oauth state: %w", err)
	}
	return state, nil
}

// Verify checks a state value and returns its claims.
func (s *Signer) Verify(state string) (*Claims, error) {
	if state == "" {
		return nil, ErrStateInvalid
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(state, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrStateInvalid
	}
	return claims, nil
}
