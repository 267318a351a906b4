// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the typed errors surfaced by the dispatch core.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrNotFound is returned when a session, event, or workspace does not exist
	ErrNotFound = "not_found"

	// ErrNotAuthenticated is returned when no identity has been established
	ErrNotAuthenticated = "not_authenticated"

	// ErrNotAuthorized is returned when the identity does not own the session
	ErrNotAuthorized = "not_authorized"

	// ErrInvalidArgument is returned when an invalid argument is provided
	ErrInvalidArgument = "invalid_argument"

	// ErrConflict is returned when a create collides with an existing id
	ErrConflict = "conflict"

	// ErrSessionClosed is returned for writes or resizes after terminal state
	ErrSessionClosed = "session_closed"

	// ErrAdapterFailure is returned when the external process failed
	ErrAdapterFailure = "adapter_failure"

	// ErrStoreFailure is returned when the durable store is unavailable
	ErrStoreFailure = "store_failure"

	// ErrOverflow is returned when subscription backpressure is exceeded
	ErrOverflow = "overflow"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewNotAuthenticatedError creates a new not authenticated error
func NewNotAuthenticatedError(message string, cause error) *Error {
	return NewError(ErrNotAuthenticated, message, cause)
}

// NewNotAuthorizedError creates a new not authorized error
func NewNotAuthorizedError(message string, cause error) *Error {
	return NewError(ErrNotAuthorized, message, cause)
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// NewConflictError creates a new conflict error
func NewConflictError(message string, cause error) *Error {
	return NewError(ErrConflict, message, cause)
}

// NewSessionClosedError creates a new session closed error
func NewSessionClosedError(message string, cause error) *Error {
	return NewError(ErrSessionClosed, message, cause)
}

// NewAdapterFailureError creates a new adapter failure error
func NewAdapterFailureError(message string, cause error) *Error {
	return NewError(ErrAdapterFailure, message, cause)
}

// NewStoreFailureError creates a new store failure error
func NewStoreFailureError(message string, cause error) *Error {
	return NewError(ErrStoreFailure, message, cause)
}

// NewOverflowError creates a new overflow error
func NewOverflowError(message string, cause error) *Error {
	return NewError(ErrOverflow, message, cause)
}

// TypeOf returns the error type if err is (or wraps) an *Error,
// or the empty string otherwise.
func TypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrNotFound
}

// IsNotAuthenticated checks if the error is a not authenticated error
func IsNotAuthenticated(err error) bool {
	return TypeOf(err) == ErrNotAuthenticated
}

// IsNotAuthorized checks if the error is a not authorized error
func IsNotAuthorized(err error) bool {
	return TypeOf(err) == ErrNotAuthorized
}

// IsInvalidArgument checks if the error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return TypeOf(err) == ErrInvalidArgument
}

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool {
	return TypeOf(err) == ErrConflict
}

// IsSessionClosed checks if the error is a session closed error
func IsSessionClosed(err error) bool {
	return TypeOf(err) == ErrSessionClosed
}

// IsAdapterFailure checks if the error is an adapter failure error
func IsAdapterFailure(err error) bool {
	return TypeOf(err) == ErrAdapterFailure
}

// IsStoreFailure checks if the error is a store failure error
func IsStoreFailure(err error) bool {
	return TypeOf(err) == ErrStoreFailure
}

// IsOverflow checks if the error is an overflow error
func IsOverflow(err error) bool {
	return TypeOf(err) == ErrOverflow
}
