// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth verifies transport credentials and carries the caller's
// identity through request contexts.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller. Session ownership checks
// compare against UserID.
type Identity struct {
	// UserID is the stable subject identifier.
	UserID string
	// Name is the optional human-readable name.
	Name string
	// Claims holds the raw verified claims for anything beyond the
	// standard fields.
	Claims jwt.MapClaims
}

// identityContextKey keys the Identity in a context. An empty struct
// type cannot collide with keys from other packages.
type identityContextKey struct{}

// WithIdentity stores an Identity in the context. A nil identity
// returns the context unchanged.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the authenticated Identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok
}
