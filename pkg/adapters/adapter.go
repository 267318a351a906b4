// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package adapters defines the capability contract between the session
// orchestrator and the external processes it embeds.
package adapters

import (
	"context"
)

// EmitFunc is an adapter's sole output channel to the orchestrator.
// Every call becomes one appended event. Emit may be called from any
// goroutine; the orchestrator funnels calls through a single writer per
// session, so each call observes the seq ordering of prior calls. Emit
// blocks while the session's emit queue is full, which is the
// backpressure signal adapters get.
type EmitFunc func(channel, eventType string, payload any)

// Config enumerates everything an adapter may need to start. Only the
// fields relevant to the kind are required.
type Config struct {
	// WorkspacePath is the canonicalized directory to run in.
	WorkspacePath string
	// Cols and Rows give the initial terminal geometry, when relevant.
	Cols int
	Rows int
	// Env holds extra environment variables for the external process.
	Env map[string]string
	// Argv overrides the default command line, when relevant.
	Argv []string
	// ResumeState is the TypeSpecificState captured when a prior
	// session of this kind closed, if the caller wants to resume it.
	ResumeState []byte
}

// Adapter embeds one external process kind behind the standard
// capability set. Resize and Snapshot are optional capabilities; see
// [Resizer] and [Snapshotter].
type Adapter interface {
	// Start launches the external process. Events begin flowing through
	// emit as soon as it returns. The context covers the launch only,
	// not the process lifetime.
	Start(ctx context.Context, cfg Config, emit EmitFunc) error

	// Write delivers input: raw bytes for a terminal, an encoded
	// command for structured kinds.
	Write(ctx context.Context, data []byte) error

	// Close terminates the process gracefully within the context's
	// deadline and returns serializable state for future resume
	// attempts (may be nil).
	Close(ctx context.Context) ([]byte, error)
}

// Resizer is the optional resize capability. Kinds without a notion of
// geometry simply don't implement it.
type Resizer interface {
	Resize(ctx context.Context, cols, rows int) error
}

// Snapshotter is the optional screen-state capability. Adapters that
// can synthesize a replayable prefix (e.g. the current terminal buffer)
// return it here; catch-up replays raw events otherwise.
type Snapshotter interface {
	// Snapshot returns the channel, type, and payload of one synthetic
	// event representing current state, or ok=false when there is
	// nothing to replay.
	Snapshot() (channel, eventType string, payload any, ok bool)
}

// Factory constructs a fresh adapter instance for one session.
type Factory func() Adapter
