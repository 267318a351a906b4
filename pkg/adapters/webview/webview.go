// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package webview embeds a navigable browser view behind the adapter
// contract. No external process is involved: the adapter tracks
// navigation state and broadcasts it so every attached client renders
// the same page.
package webview

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/fwdslsh/dispatch-sub012/pkg/adapters"
	"github.com/fwdslsh/dispatch-sub012/pkg/errors"
)

// ChannelNavigation carries navigation state changes.
const ChannelNavigation = "web-view:navigation"

// TypeNavigated is the event type of navigation events.
const TypeNavigated = "navigated"

// Navigation actions accepted through Write.
const (
	ActionNavigate = "navigate"
	ActionBack     = "back"
	ActionForward  = "forward"
	ActionReload   = "reload"
)

// Command is the encoded input the adapter accepts through Write.
type Command struct {
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}

// NavigationPayload is the payload of navigation events.
type NavigationPayload struct {
	URL    string `json:"url"`
	Action string `json:"action"`
	// CanGoBack and CanGoForward let clients enable their controls
	// without mirroring the history stack.
	CanGoBack    bool `json:"canGoBack"`
	CanGoForward bool `json:"canGoForward"`
}

// resumeState persists the history stack across sessions.
type resumeState struct {
	History []string `json:"history"`
	Index   int      `json:"index"`
}

// Adapter tracks a linear navigation history with a cursor.
type Adapter struct {
	mu      sync.Mutex
	started bool
	closed  bool
	history []string
	index   int

	emit adapters.EmitFunc
}

// New constructs an unstarted webview adapter.
func New() adapters.Adapter {
	return &Adapter{index: -1}
}

var _ adapters.Snapshotter = (*Adapter)(nil)

// Start restores navigation history from resume state, if any.
func (a *Adapter) Start(_ context.Context, cfg adapters.Config, emit adapters.EmitFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.NewConflictError("webview adapter already started", nil)
	}
	if len(cfg.ResumeState) > 0 {
		var state resumeState
		if err := json.Unmarshal(cfg.ResumeState, &state); err != nil {
			return errors.NewInvalidArgumentError("decoding webview resume state", err)
		}
		if state.Index < -1 || state.Index >= len(state.History) {
			return errors.NewInvalidArgumentError(
				fmt.Sprintf("webview resume index %d out of range", state.Index), nil)
		}
		a.history = state.History
		a.index = state.Index
	}
	a.started = true
	a.emit = emit
	return nil
}

// Write applies one navigation command and broadcasts the resulting
// state.
func (a *Adapter) Write(_ context.Context, data []byte) error {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return errors.NewInvalidArgumentError("decoding webview command", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started || a.closed {
		return errors.NewSessionClosedError("webview adapter is not running", nil)
	}

	switch cmd.Action {
	case ActionNavigate:
		parsed, err := url.Parse(cmd.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return errors.NewInvalidArgumentError(
				fmt.Sprintf("invalid navigation url %q", cmd.URL), err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return errors.NewInvalidArgumentError(
				fmt.Sprintf("unsupported url scheme %q", parsed.Scheme), nil)
		}
		// Navigating discards any forward history.
		a.history = append(a.history[:a.index+1], cmd.URL)
		a.index = len(a.history) - 1
	case ActionBack:
		if a.index <= 0 {
			return errors.NewInvalidArgumentError("no back history", nil)
		}
		a.index--
	case ActionForward:
		if a.index < 0 || a.index >= len(a.history)-1 {
			return errors.NewInvalidArgumentError("no forward history", nil)
		}
		a.index++
	case ActionReload:
		if a.index < 0 {
			return errors.NewInvalidArgumentError("nothing to reload", nil)
		}
	default:
		return errors.NewInvalidArgumentError(
			fmt.Sprintf("unknown webview action %q", cmd.Action), nil)
	}

	a.emit(ChannelNavigation, TypeNavigated, a.payloadLocked(cmd.Action))
	return nil
}

// payloadLocked builds the broadcast payload. Caller holds a.mu.
func (a *Adapter) payloadLocked(action string) NavigationPayload {
	return NavigationPayload{
		URL:          a.history[a.index],
		Action:       action,
		CanGoBack:    a.index > 0,
		CanGoForward: a.index < len(a.history)-1,
	}
}

// Close returns the history stack as resume state.
func (a *Adapter) Close(_ context.Context) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if len(a.history) == 0 {
		return nil, nil
	}
	state, err := json.Marshal(resumeState{History: a.history, Index: a.index})
	if err != nil {
		return nil, fmt.Errorf("encoding webview resume state: %w", err)
	}
	return state, nil
}

// Snapshot returns the current navigation state so a late-attaching
// client can render the page without replaying the whole history.
func (a *Adapter) Snapshot() (string, string, any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.index < 0 {
		return "", "", nil, false
	}
	return ChannelNavigation, TypeNavigated, a.payloadLocked(ActionReload), true
}
