// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package ws is the live WebSocket transport: it fans events out to
// attached clients and relays their input to the orchestrator.
package ws

import (
	"github.com/fwdslsh/dispatch-sub012/pkg/session"
)

// Client-to-server message types. catchup is attach by another name:
// both take a cursor and yield the historical range plus the live tail,
// superseding any prior subscription to the session.
const (
	MsgAttach  = "attach"
	MsgCatchup = "catchup"
	MsgDetach  = "detach"
	MsgInput   = "input"
	MsgResize  = "resize"
	MsgClose   = "close"
)

// Server-to-client message types.
const (
	MsgRunEvent       = "run:event"
	MsgAttached       = "attached"
	MsgSessionCreated = "session:created"
	MsgSessionUpdated = "session:updated"
	MsgSessionClosed  = "session:closed"
	MsgError          = "error"
	MsgOverflow       = "overflow"
)

// ClientMessage is the envelope for everything a client sends.
type ClientMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`

	// AfterSeq is the attach cursor: 0 replays history, a positive
	// value resumes after that seq, -1 requests screen-state catch-up.
	AfterSeq *int64 `json:"afterSeq,omitempty"`

	// Data carries input bytes (base64 on the wire).
	Data []byte `json:"data,omitempty"`

	// Cols and Rows accompany resize.
	Cols int `json:"cols,omitempty"`
	Rows int `json:"rows,omitempty"`
}

// ServerMessage is the envelope for everything the server sends.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`

	// Event is set on run:event messages.
	Event *session.Event `json:"event,omitempty"`

	// Session is set on session lifecycle notifications and on
	// attached acknowledgements.
	Session *session.Session `json:"session,omitempty"`

	// LastDeliveredSeq accompanies overflow so the client can
	// re-attach without losing its place.
	LastDeliveredSeq int64 `json:"lastDeliveredSeq,omitempty"`

	// Error is set on error messages.
	Error *WireError `json:"error,omitempty"`
}

// WireError is the transport rendering of a typed core error.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
