// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package session defines the run-session data model shared by the
// store, the orchestrator, and the transports.
package session

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Initial session kinds. The set is extensible; adapters register
// additional kinds at process start.
const (
	KindPTY     = "pty"
	KindAI      = "ai"
	KindWebView = "web-view"
)

// Status describes where a session is in its lifecycle.
type Status string

// Session lifecycle states.
const (
	// StatusStarting means the adapter has not finished launching yet.
	StatusStarting Status = "starting"
	// StatusRunning means the adapter is live and recently active.
	StatusRunning Status = "running"
	// StatusIdle means the adapter is live but has been quiet past the
	// configured threshold. Advisory; flips back on activity.
	StatusIdle Status = "idle"
	// StatusError means the adapter is gone after a failure. The row
	// remains until the owner closes it.
	StatusError Status = "error"
	// StatusClosed is terminal.
	StatusClosed Status = "closed"
)

// Terminal reports whether the status admits no further adapter activity.
func (s Status) Terminal() bool {
	return s == StatusClosed
}

// Live reports whether the adapter behind the session is expected to be
// running.
func (s Status) Live() bool {
	return s == StatusStarting || s == StatusRunning || s == StatusIdle
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusStarting, StatusRunning, StatusIdle, StatusError, StatusClosed:
		return true
	}
	return false
}

// Session is the persisted run-session record.
type Session struct {
	// ID is an opaque stable identifier, unique process-wide.
	ID string `json:"id"`
	// Kind selects the adapter; fixed at creation.
	Kind string `json:"kind"`
	// OwnerUserID is the only user allowed to attach, write, or close.
	OwnerUserID string `json:"ownerUserId"`
	// WorkspacePath is the canonicalized absolute directory the adapter
	// runs in.
	WorkspacePath string `json:"workspacePath"`
	// Title is the human label; the one mutable field besides status.
	Title string `json:"title"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// LastSeq is the highest event sequence assigned so far.
	LastSeq int64 `json:"lastSeq"`
	// Pinned affects default visibility in listings. Advisory.
	Pinned bool `json:"pinned"`
	// TypeSpecificState is opaque adapter state captured at close to
	// permit later resume. Never contains the session id.
	TypeSpecificState []byte `json:"-"`

	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Kind          string
	Status        Status
	WorkspacePath string
	// PinnedOnly restricts results to pinned sessions.
	PinnedOnly bool
}

// MaxIDLength bounds session ids on all input paths.
const MaxIDLength = 64

// NewID returns a fresh session identifier (UUID v4).
func NewID() string {
	return uuid.NewString()
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)

// ValidID reports whether id is non-empty, within the length bound, and
// URL-safe.
func ValidID(id string) bool {
	return id != "" && len(id) <= MaxIDLength && idPattern.MatchString(id)
}

// LegacyID holds the components of a pre-UUID session identifier of the
// form {kind}-{timestamp}-{nonce}. New sessions always get UUIDs; legacy
// ids are accepted on read paths only.
type LegacyID struct {
	Kind      string
	Timestamp time.Time
	Nonce     string
}

// ParseLegacyID parses a legacy {kind}-{timestamp}-{nonce} identifier.
// The timestamp is Unix milliseconds. Returns false for UUIDs and any
// other shape.
func ParseLegacyID(id string) (LegacyID, bool) {
	if _, err := uuid.Parse(id); err == nil {
		return LegacyID{}, false
	}
	parts := strings.Split(id, "-")
	if len(parts) < 3 {
		return LegacyID{}, false
	}
	// The kind itself may contain dashes (web-view), so parse from the
	// right: nonce, then timestamp, then everything left is the kind.
	nonce := parts[len(parts)-1]
	millis, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil || millis <= 0 || nonce == "" {
		return LegacyID{}, false
	}
	kind := strings.Join(parts[:len(parts)-2], "-")
	if kind == "" {
		return LegacyID{}, false
	}
	return LegacyID{
		Kind:      kind,
		Timestamp: time.UnixMilli(millis).UTC(),
		Nonce:     nonce,
	}, true
}
