// Package auth verifies the bearer tokens minted by the identity provider.
// The service never issues real sessions itself; it only checks the HS256
// signature and lifts the subject and profile claims out of the token.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken means the request carried no bearer token at all.
	ErrNoToken = errors.New("no bearer token")
	// ErrInvalidToken means a token was present but failed verification.
	ErrInvalidToken = errors.New("invalid token")
)

// An Identity is the verified caller. ExternalID is the identity provider's
// subject and is the only value trusted to say who is calling.
type Identity struct {
	ExternalID string
	Email      string
	Name       string
}

// Claims is the token payload: registered claims plus the profile fields the
// provider embeds.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// A Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a raw token and returns the caller identity.
func (v *Verifier) Verify(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		ExternalID: claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
	}, nil
}

// FromRequest extracts the Authorization bearer token and verifies it.
// A missing header yields ErrNoToken so callers can distinguish "anonymous"
// from "bad token".
func (v *Verifier) FromRequest(r *http.Request) (Identity, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return Identity{}, ErrNoToken
	}
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return Identity{}, ErrInvalidToken
	}
	return v.Verify(strings.TrimSpace(authz[len("Bearer "):]))
}

// Sign mints a token for the given identity. Used by tests and local tooling;
// production tokens come from the identity provider with the same secret.
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ExternalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
