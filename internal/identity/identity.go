// Package identity verifies the signed caller claims presented by the web
// frontend and the chat relay. Both sources mint HS256 JWTs with the same
// shared key, so a caller is treated the same regardless of where it came
// from.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/playperu/treasurehunt/internal/hunt"
)

// Sources a token may declare.
const (
	SourceWeb  = "web"
	SourceChat = "chat"
)

type claims struct {
	jwt.RegisteredClaims
	Name   string   `json:"name,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	Source string   `json:"src"`
}

type Verifier struct {
	key []byte
	now func() time.Time
}

func NewVerifier(key string) *Verifier {
	return &Verifier{key: []byte(key), now: time.Now}
}

// Verify parses a bearer token and returns the caller it names. Every
// failure is Unauthorized.
func (v *Verifier) Verify(token string) (hunt.Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return hunt.Caller{}, hunt.Errorf(hunt.CodeUnauthorized, "identity token is required")
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return hunt.Caller{}, mapJWTError(err)
	}

	if strings.TrimSpace(c.Subject) == "" {
		return hunt.Caller{}, hunt.Errorf(hunt.CodeUnauthorized, "identity token has no subject")
	}
	switch c.Source {
	case SourceWeb, SourceChat:
	default:
		return hunt.Caller{}, hunt.Errorf(hunt.CodeUnauthorized, "identity token source %q is not recognised", c.Source)
	}
	return hunt.Caller{ID: c.Subject, Name: c.Name, Roles: c.Roles, Source: c.Source}, nil
}

// Sign mints a token for caller. The server only verifies; Sign exists for
// the relay tooling and tests.
func (v *Verifier) Sign(caller hunt.Caller, ttl time.Duration) (string, error) {
	now := v.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:   caller.Name,
		Roles:  caller.Roles,
		Source: caller.Source,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("signing identity token: %w", err)
	}
	return signed, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return hunt.Errorf(hunt.CodeUnauthorized, "identity token is expired")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return hunt.Errorf(hunt.CodeUnauthorized, "identity token signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return hunt.Errorf(hunt.CodeUnauthorized, "identity token algorithm is not accepted")
	default:
		return hunt.Errorf(hunt.CodeUnauthorized, "identity token is invalid")
	}
}
