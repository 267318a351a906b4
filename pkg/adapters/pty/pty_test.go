// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package pty

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwdslsh/dispatch-sub012/pkg/adapters"
	"github.com/fwdslsh/dispatch-sub012/pkg/session"
)

// collector gathers emitted events and signals when a terminal status
// event arrives.
type collector struct {
	mu     sync.Mutex
	events []emitted
	done   chan struct{}
	once   sync.Once
}

type emitted struct {
	channel   string
	eventType string
	payload   any
}

func newCollector() *collector {
	return &collector{done: make(chan struct{})}
}

func (c *collector) emit(channel, eventType string, payload any) {
	c.mu.Lock()
	c.events = append(c.events, emitted{channel, eventType, payload})
	c.mu.Unlock()
	if channel == session.ChannelSystemStatus && eventType == session.TypeClosed {
		c.once.Do(func() { close(c.done) })
	}
}

func (c *collector) wait(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for closed status event")
	}
}

func (c *collector) stdout() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sb strings.Builder
	for _, e := range c.events {
		if e.channel != session.ChannelStdout {
			continue
		}
		if p, ok := e.payload.(session.DataPayload); ok {
			sb.Write(p.Data)
		}
	}
	return sb.String()
}

func (c *collector) closedStatus() (session.StatusPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.channel == session.ChannelSystemStatus && e.eventType == session.TypeClosed {
			if p, ok := e.payload.(session.StatusPayload); ok {
				return p, true
			}
		}
	}
	return session.StatusPayload{}, false
}

func TestStartEchoEmitsOutputAndExit(t *testing.T) {
	t.Parallel()

	a := New()
	c := newCollector()

	err := a.Start(context.Background(), adapters.Config{
		WorkspacePath: t.TempDir(),
		Argv:          []string{"/bin/echo", "hello from pty"},
	}, c.emit)
	require.NoError(t, err)

	c.wait(t, 10*time.Second)

	assert.Contains(t, c.stdout(), "hello from pty")

	status, ok := c.closedStatus()
	require.True(t, ok)
	require.NotNil(t, status.ExitCode)
	assert.Equal(t, 0, *status.ExitCode)
}

func TestExitCodeSurfaced(t *testing.T) {
	t.Parallel()

	a := New()
	c := newCollector()

	err := a.Start(context.Background(), adapters.Config{
		WorkspacePath: t.TempDir(),
		Argv:          []string{"/bin/sh", "-c", "exit 3"},
	}, c.emit)
	require.NoError(t, err)

	c.wait(t, 10*time.Second)

	status, ok := c.closedStatus()
	require.True(t, ok)
	require.NotNil(t, status.ExitCode)
	assert.Equal(t, 3, *status.ExitCode)
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()

	a := New()
	c := newCollector()

	err := a.Start(context.Background(), adapters.Config{
		WorkspacePath: t.TempDir(),
		Argv:          []string{"/bin/cat"},
	}, c.emit)
	require.NoError(t, err)

	require.NoError(t, a.Write(context.Background(), []byte("ping\n")))

	require.Eventually(t, func() bool {
		return strings.Contains(c.stdout(), "ping")
	}, 10*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = a.Close(ctx)
	require.NoError(t, err)
}

func TestCloseReturnsGeometryState(t *testing.T) {
	t.Parallel()

	a := New()
	c := newCollector()

	err := a.Start(context.Background(), adapters.Config{
		WorkspacePath: t.TempDir(),
		Argv:          []string{"/bin/cat"},
		Cols:          120,
		Rows:          40,
	}, c.emit)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := a.Close(ctx)
	require.NoError(t, err)

	var rs resumeState
	require.NoError(t, json.Unmarshal(state, &rs))
	assert.Equal(t, 120, rs.Cols)
	assert.Equal(t, 40, rs.Rows)

	// The orchestrator-initiated close suppresses the adapter's own
	// exit event.
	_, emitted := c.closedStatus()
	assert.False(t, emitted)

	// A second close is a no-op returning the same state.
	state2, err := a.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, state2)
}

func TestResizeValidation(t *testing.T) {
	t.Parallel()

	a := New().(*Adapter)
	assert.Error(t, a.Resize(context.Background(), 0, 24))
	assert.Error(t, a.Resize(context.Background(), 80, -1))
}

func TestSnapshotReplaysBuffer(t *testing.T) {
	t.Parallel()

	a := New()
	c := newCollector()

	err := a.Start(context.Background(), adapters.Config{
		WorkspacePath: t.TempDir(),
		Argv:          []string{"/bin/echo", "snapshot me"},
	}, c.emit)
	require.NoError(t, err)

	c.wait(t, 10*time.Second)

	channel, eventType, payload, ok := a.(*Adapter).Snapshot()
	require.True(t, ok)
	assert.Equal(t, session.ChannelStdout, channel)
	assert.Equal(t, session.TypeData, eventType)

	data, ok := payload.(session.DataPayload)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(string(data.Data), "\x1b[0m"))
	assert.Contains(t, string(data.Data), "snapshot me")
}

func TestSnapshotEmptyBuffer(t *testing.T) {
	t.Parallel()

	a := New().(*Adapter)
	_, _, _, ok := a.Snapshot()
	assert.False(t, ok)
}

func TestBufferCutsAtLineBoundary(t *testing.T) {
	t.Parallel()

	a := New().(*Adapter)

	line := strings.Repeat("x", 1023) + "\n"
	for i := 0; i < 200; i++ {
		a.appendBuffer([]byte(line))
	}

	a.bufMu.Lock()
	defer a.bufMu.Unlock()
	assert.LessOrEqual(t, len(a.buffer), maxBufferSize)
	// After a cut the buffer starts at the beginning of a line.
	assert.Equal(t, byte('x'), a.buffer[0])
	assert.True(t, len(a.buffer)%1024 == 0)
}

func TestStartMissingBinary(t *testing.T) {
	t.Parallel()

	a := New()
	err := a.Start(context.Background(), adapters.Config{
		WorkspacePath: t.TempDir(),
		Argv:          []string{"/nonexistent/binary"},
	}, newCollector().emit)
	assert.Error(t, err)
}
