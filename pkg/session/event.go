// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Well-known event channels. Channels are free-form strings and adapters
// own their namespace; these are the ones the core itself produces or
// gives meaning to.
const (
	ChannelStdout = "stdout"
	ChannelStdin  = "stdin"
	ChannelResize = "resize"

	// ChannelSystemStatus carries lifecycle transitions.
	ChannelSystemStatus = "system:status"
	// ChannelSystemInput echoes user input so that history replays
	// include the user's side of the conversation.
	ChannelSystemInput = "system:input"
)

// Event types used on the system channels.
const (
	TypeData        = "data"
	TypeOpened      = "opened"
	TypeFailed      = "failed"
	TypeClosed      = "closed"
	TypeForcedClose = "forced-close"
)

// Event is one append-only record in a session's log.
type Event struct {
	SessionID string `json:"sessionId"`
	// Seq is monotonic and dense within the session, starting at 1.
	Seq     int64  `json:"seq"`
	Channel string `json:"channel"`
	Type    string `json:"type"`
	// Payload is channel-specific JSON. Opaque byte strings are
	// base64-encoded by encoding/json.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Timestamp is the server wall clock at append.
	Timestamp time.Time `json:"timestamp"`
}

// MarshalPayload encodes an arbitrary payload value for an event.
// A nil value yields a nil payload.
func MarshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling event payload: %w", err)
	}
	return data, nil
}

// StatusPayload is the payload of system:status events.
type StatusPayload struct {
	Status Status `json:"status"`
	// Reason is set on failed and forced-close events.
	Reason string `json:"reason,omitempty"`
	// ExitCode is set on closed events for process-backed kinds.
	ExitCode *int `json:"exitCode,omitempty"`
}

// InputPayload is the payload of system:input events.
type InputPayload struct {
	Data []byte `json:"data"`
}

// DataPayload is the payload of raw output events such as stdout/data.
type DataPayload struct {
	Data []byte `json:"data"`
}

// ResizePayload is the payload of resize events.
type ResizePayload struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}
