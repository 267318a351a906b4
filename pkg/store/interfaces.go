// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package store defines the persistence interfaces for sessions and
// their event logs.
package store

import (
	"context"
	"encoding/json"

	"github.com/fwdslsh/dispatch-sub012/pkg/session"
)

// SessionStore persists run-session rows.
type SessionStore interface {
	// Create inserts a new session row. Returns ErrAlreadyExists if the
	// id is taken.
	Create(ctx context.Context, s *session.Session) error
	// Get retrieves a session by id, including its current LastSeq.
	Get(ctx context.Context, id string) (*session.Session, error)
	// List returns sessions owned by the given user matching the
	// filter, pinned first, then most recently active.
	List(ctx context.Context, ownerUserID string, filter session.Filter) ([]*session.Session, error)
	// ListAll returns every session row regardless of owner. Used for
	// startup recovery.
	ListAll(ctx context.Context) ([]*session.Session, error)
	// Update rewrites the mutable columns (title, status, pinned,
	// type-specific state, last activity) of an existing row.
	Update(ctx context.Context, s *session.Session) error
}

// EventStore persists and streams per-session event sequences.
type EventStore interface {
	// Append atomically assigns seq = lastSeq+1, persists the event,
	// and updates the session's lastSeq. Returns the assigned seq.
	// Returns ErrSessionClosed once the session is terminal.
	Append(ctx context.Context, sessionID, channel, eventType string, payload json.RawMessage) (int64, error)
	// AppendClosing appends the session's final event and atomically
	// marks the session closed; later appends fail with
	// ErrSessionClosed and tails end after delivering this event.
	AppendClosing(ctx context.Context, sessionID, channel, eventType string, payload json.RawMessage) (int64, error)
	// Range returns events with seq > afterSeq in ascending order.
	// limit <= 0 means no cap.
	Range(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]session.Event, error)
	// LastSeq returns the highest seq assigned to the session.
	LastSeq(ctx context.Context, sessionID string) (int64, error)
	// Tail streams all events after afterSeq, including events appended
	// concurrently, in seq order with no gaps or duplicates. The stream
	// ends cleanly once the session is closed and every event up to the
	// final seq has been delivered.
	Tail(ctx context.Context, sessionID string, afterSeq int64) (EventStream, error)
}

// EventStream is an ordered stream of session events.
type EventStream interface {
	// Events returns the channel events are delivered on. It is closed
	// when the stream ends, for any reason.
	Events() <-chan session.Event
	// Err returns the terminal error, if any, once Events is closed.
	// nil means the stream ended cleanly (session closed, fully
	// delivered, or the caller's context was cancelled).
	Err() error
}
