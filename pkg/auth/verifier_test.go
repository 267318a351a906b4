// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwdslsh/dispatch-sub012/pkg/errors"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	token, err := IssueToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.UserID)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	token, err := IssueToken(testSecret, "alice", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.True(t, errors.IsNotAuthenticated(err))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	token, err := IssueToken("another-secret-another-secret", "alice", time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.True(t, errors.IsNotAuthenticated(err))
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()

	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "alice",
		"iss": issuer,
		"aud": audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.True(t, errors.IsNotAuthenticated(err))
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	_, err = v.Verify("")
	require.Error(t, err)
	assert.True(t, errors.IsNotAuthenticated(err))
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	t.Parallel()

	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": issuer,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = v.Verify(signed)
	require.Error(t, err)
	assert.True(t, errors.IsNotAuthenticated(err))
}

func TestNewHMACVerifierRejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewHMACVerifier("short")
	require.Error(t, err)
}

func TestMiddlewareAuthenticates(t *testing.T) {
	t.Parallel()

	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	var gotUser string
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		gotUser = identity.UserID
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := IssueToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "alice", gotUser)
}

func TestMiddlewareRejectsMissingCredential(t *testing.T) {
	t.Parallel()

	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	handler := Middleware(v)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAcceptsQueryToken(t *testing.T) {
	t.Parallel()

	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)

	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := IssueToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLocalUserMiddleware(t *testing.T) {
	t.Parallel()

	handler := LocalUserMiddleware("dev")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "dev", identity.UserID)
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
