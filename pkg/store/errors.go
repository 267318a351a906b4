// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "errors"

var (
	// ErrNotFound is returned when a requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyExists is returned when a session id is already taken.
	ErrAlreadyExists = errors.New("session already exists")

	// ErrSessionClosed is returned on appends to a closed session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrBusy is returned when the durable backing store is saturated.
	// The caller may retry; the seq reservation has been released.
	ErrBusy = errors.New("store busy")
)
