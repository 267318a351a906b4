// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package ai embeds a streaming Anthropic chat behind the adapter
// contract. Each Write starts one assistant turn; deltas stream out as
// events while the full transcript accumulates for resume.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/fwdslsh/dispatch-sub012/pkg/adapters"
	"github.com/fwdslsh/dispatch-sub012/pkg/errors"
	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
)

// Event channels owned by this adapter.
const (
	ChannelMessage = "ai:message"
	ChannelError   = "ai:error"
)

// Event types on ChannelMessage.
const (
	TypeDelta    = "delta"
	TypeComplete = "complete"
)

const (
	defaultModel     = string(sdk.ModelClaudeSonnet4_5)
	defaultMaxTokens = 4096
)

// MessagesClient is the subset of the Anthropic SDK the adapter needs.
// *sdk.MessageService satisfies it; tests substitute a fake.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// turnCommand is the encoded input the adapter accepts through Write.
type turnCommand struct {
	Content string `json:"content"`
}

// DeltaPayload is the payload of ai:message/delta events.
type DeltaPayload struct {
	Text string `json:"text"`
}

// MessagePayload is the payload of ai:message/complete events.
type MessagePayload struct {
	Role       string `json:"role"`
	Text       string `json:"text"`
	StopReason string `json:"stopReason,omitempty"`
}

// transcriptEntry is one message in the serialized resume state.
type transcriptEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Adapter implements the adapter contract over Anthropic Messages.
type Adapter struct {
	messages MessagesClient
	model    string

	mu         sync.Mutex
	started    bool
	closed     bool
	inFlight   bool
	transcript []transcriptEntry
	cancelTurn context.CancelFunc

	emit adapters.EmitFunc
	wg   sync.WaitGroup
}

// New constructs an adapter backed by the default Anthropic client,
// reading ANTHROPIC_API_KEY from the environment.
func New() adapters.Adapter {
	client := sdk.NewClient(option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")))
	return NewWithClient(&client.Messages, defaultModel)
}

// NewWithClient constructs an adapter over an explicit messages client.
func NewWithClient(messages MessagesClient, model string) *Adapter {
	if model == "" {
		model = defaultModel
	}
	return &Adapter{messages: messages, model: model}
}

// Start restores any prior transcript from resume state. No request is
// issued until the first Write.
func (a *Adapter) Start(_ context.Context, cfg adapters.Config, emit adapters.EmitFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.NewConflictError("ai adapter already started", nil)
	}
	if len(cfg.ResumeState) > 0 {
		var transcript []transcriptEntry
		if err := json.Unmarshal(cfg.ResumeState, &transcript); err != nil {
			return errors.NewInvalidArgumentError("decoding ai resume state", err)
		}
		a.transcript = transcript
	}
	a.started = true
	a.emit = emit
	return nil
}

// Write starts one assistant turn from an encoded command. A turn that
// is already streaming rejects further input until it completes.
func (a *Adapter) Write(ctx context.Context, data []byte) error {
	var cmd turnCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		// Raw text is accepted for terminal-style clients.
		cmd.Content = string(data)
	}
	if cmd.Content == "" {
		return errors.NewInvalidArgumentError("ai turn content cannot be empty", nil)
	}

	a.mu.Lock()
	if !a.started || a.closed {
		a.mu.Unlock()
		return errors.NewSessionClosedError("ai adapter is not running", nil)
	}
	if a.inFlight {
		a.mu.Unlock()
		return errors.NewConflictError("a turn is already in progress", nil)
	}
	a.inFlight = true
	a.transcript = append(a.transcript, transcriptEntry{Role: "user", Text: cmd.Content})
	params := a.buildParamsLocked()
	turnCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancelTurn = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go a.runTurn(turnCtx, params)
	return nil
}

// buildParamsLocked assembles the request from the full transcript.
// Caller holds a.mu.
func (a *Adapter) buildParamsLocked() sdk.MessageNewParams {
	msgs := make([]sdk.MessageParam, 0, len(a.transcript))
	for _, entry := range a.transcript {
		block := sdk.NewTextBlock(entry.Text)
		if entry.Role == "assistant" {
			msgs = append(msgs, sdk.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, sdk.NewUserMessage(block))
		}
	}
	return sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: defaultMaxTokens,
		Messages:  msgs,
	}
}

// runTurn drains one streaming response, emitting deltas as they
// arrive and a complete event at the end of the turn.
func (a *Adapter) runTurn(ctx context.Context, params sdk.MessageNewParams) {
	defer a.wg.Done()
	defer func() {
		a.mu.Lock()
		a.inFlight = false
		a.cancelTurn = nil
		a.mu.Unlock()
	}()

	stream := a.messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var text string
	var stopReason string
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
				text += delta.Text
				a.emit(ChannelMessage, TypeDelta, DeltaPayload{Text: delta.Text})
			}
		case sdk.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			// Turn was cancelled by Close; nothing to report.
			return
		}
		logger.Errorw("ai turn failed", "error", err)
		a.emit(ChannelError, "failed", map[string]any{"reason": err.Error()})
		return
	}

	a.mu.Lock()
	a.transcript = append(a.transcript, transcriptEntry{Role: "assistant", Text: text})
	a.mu.Unlock()

	a.emit(ChannelMessage, TypeComplete, MessagePayload{
		Role:       "assistant",
		Text:       text,
		StopReason: stopReason,
	})
}

// Close cancels any in-flight turn and returns the transcript as
// resume state.
func (a *Adapter) Close(_ context.Context) ([]byte, error) {
	a.mu.Lock()
	a.closed = true
	cancel := a.cancelTurn
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.transcript) == 0 {
		return nil, nil
	}
	state, err := json.Marshal(a.transcript)
	if err != nil {
		return nil, fmt.Errorf("encoding ai resume state: %w", err)
	}
	return state, nil
}
