// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	withCause := NewStoreFailureError("append failed", errors.New("disk full"))
	assert.Equal(t, "store_failure: append failed: disk full", withCause.Error())

	noCause := NewNotFoundError("no such session", nil)
	assert.Equal(t, "not_found: no such session", noCause.Error())
}

func TestUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("root cause")
	err := NewAdapterFailureError("process exited", cause)
	assert.ErrorIs(t, err, cause)
}

func TestPredicatesMatchWrappedErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NewNotFoundError("x", nil), IsNotFound},
		{"not authenticated", NewNotAuthenticatedError("x", nil), IsNotAuthenticated},
		{"not authorized", NewNotAuthorizedError("x", nil), IsNotAuthorized},
		{"invalid argument", NewInvalidArgumentError("x", nil), IsInvalidArgument},
		{"conflict", NewConflictError("x", nil), IsConflict},
		{"session closed", NewSessionClosedError("x", nil), IsSessionClosed},
		{"adapter failure", NewAdapterFailureError("x", nil), IsAdapterFailure},
		{"store failure", NewStoreFailureError("x", nil), IsStoreFailure},
		{"overflow", NewOverflowError("x", nil), IsOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, tt.check(tt.err))
			// Predicates must see through fmt.Errorf wrapping.
			assert.True(t, tt.check(fmt.Errorf("outer: %w", tt.err)))
			// And must not match a different type.
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestTypeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrConflict, TypeOf(NewConflictError("dup", nil)))
	assert.Equal(t, "", TypeOf(errors.New("plain")))
	assert.Equal(t, "", TypeOf(nil))
}
