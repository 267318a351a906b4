// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fwdslsh/dispatch-sub012/pkg/errors"
)

const (
	issuer   = "dispatch"
	audience = "dispatch"
)

// Verifier validates bearer tokens and extracts the caller identity.
type Verifier interface {
	// Verify checks the credential and returns the identity it proves.
	// Implementations never include the credential in returned errors.
	Verify(token string) (*Identity, error)
}

// HMACVerifier verifies HS256-signed tokens issued with a shared
// secret. This is the single-server deployment model; federated
// providers sit behind the same interface.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier over the shared signing secret.
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("auth secret must be at least 16 bytes")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// Verify parses and validates the token. Error messages describe the
// failure class only; the token itself is never echoed back or logged.
func (v *HMACVerifier) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, errors.NewNotAuthenticatedError("missing credential", nil)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.NewNotAuthenticatedError("invalid credential", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.NewNotAuthenticatedError("invalid credential claims", nil)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.NewNotAuthenticatedError("credential missing subject", nil)
	}

	identity := &Identity{UserID: sub, Claims: claims}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	return identity, nil
}

// IssueToken mints an HS256 token for the given user. Used by the CLI
// for local deployments and by tests.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": issuer,
		"aud": audience,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
