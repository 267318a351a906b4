// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package pty embeds an interactive shell behind the adapter contract.
package pty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/fwdslsh/dispatch-sub012/pkg/adapters"
	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
	"github.com/fwdslsh/dispatch-sub012/pkg/session"
)

const (
	defaultCols = 80
	defaultRows = 24

	// maxBufferSize bounds the replay ring buffer. When a client asks
	// for screen-state catch-up, this buffer is what it gets.
	maxBufferSize = 100 * 1024

	// ansiReset is prepended to buffer replays to avoid inheriting
	// stale formatting from truncated escape sequences.
	ansiReset = "\x1b[0m"
)

// resumeState is what the adapter serializes at close so that a future
// session can start with the same geometry.
type resumeState struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Adapter runs a shell (or an arbitrary argv) on a pseudo-terminal.
type Adapter struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	ptmx   *os.File
	cols   int
	rows   int
	closed bool

	// buffer is the replay ring; guarded by bufMu, immutable once the
	// process has exited.
	bufMu  sync.Mutex
	buffer []byte

	exited chan struct{}
}

// New constructs an unstarted pty adapter.
func New() adapters.Adapter {
	return &Adapter{exited: make(chan struct{})}
}

var (
	_ adapters.Resizer     = (*Adapter)(nil)
	_ adapters.Snapshotter = (*Adapter)(nil)
)

// Start launches the configured argv (defaulting to the user's shell)
// on a fresh pty and begins emitting stdout/data events.
func (a *Adapter) Start(_ context.Context, cfg adapters.Config, emit adapters.EmitFunc) error {
	argv := cfg.Argv
	if len(argv) == 0 {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/bash"
		}
		argv = []string{shell}
	}

	cols, rows := cfg.Cols, cfg.Rows
	if prior, ok := decodeResumeState(cfg.ResumeState); ok {
		if cols == 0 {
			cols = prior.Cols
		}
		if rows == 0 {
			rows = prior.Rows
		}
	}
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cfg.WorkspacePath
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols), //nolint:gosec // bounded by resize validation
		Rows: uint16(rows), //nolint:gosec
	})
	if err != nil {
		return fmt.Errorf("starting pty %q: %w", argv[0], err)
	}

	a.mu.Lock()
	a.cmd = cmd
	a.ptmx = ptmx
	a.cols = cols
	a.rows = rows
	a.mu.Unlock()

	go a.readLoop(emit)
	go a.waitExit(emit)
	return nil
}

// readLoop pumps pty output into emit until the process side closes.
func (a *Adapter) readLoop(emit adapters.EmitFunc) {
	buf := make([]byte, 4096)
	for {
		n, err := a.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			a.appendBuffer(data)
			emit(session.ChannelStdout, session.TypeData, session.DataPayload{Data: data})
		}
		if err != nil {
			// EIO is the normal end-of-stream on Linux ptys.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) {
				logger.Debugw("pty read ended", "error", err)
			}
			return
		}
	}
}

// waitExit surfaces the process exit as an event unless Close already
// took responsibility for the shutdown.
func (a *Adapter) waitExit(emit adapters.EmitFunc) {
	err := a.cmd.Wait()
	close(a.exited)

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			emit("pty:error", session.TypeFailed, map[string]any{"reason": err.Error()})
			return
		}
	} else if a.cmd.ProcessState != nil {
		exitCode = a.cmd.ProcessState.ExitCode()
	}

	emit(session.ChannelSystemStatus, session.TypeClosed,
		session.StatusPayload{Status: session.StatusClosed, ExitCode: &exitCode})
}

// Write delivers raw input bytes to the terminal.
func (a *Adapter) Write(_ context.Context, data []byte) error {
	a.mu.Lock()
	ptmx := a.ptmx
	closed := a.closed
	a.mu.Unlock()
	if closed || ptmx == nil {
		return fmt.Errorf("pty is not running")
	}
	if _, err := ptmx.Write(data); err != nil {
		return fmt.Errorf("writing to pty: %w", err)
	}
	return nil
}

// Resize changes the terminal geometry.
func (a *Adapter) Resize(_ context.Context, cols, rows int) error {
	if cols <= 0 || rows <= 0 || cols > 10000 || rows > 10000 {
		return fmt.Errorf("invalid pty size %dx%d", cols, rows)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.ptmx == nil {
		return fmt.Errorf("pty is not running")
	}
	if err := pty.Setsize(a.ptmx, &pty.Winsize{
		Cols: uint16(cols), //nolint:gosec // validated above
		Rows: uint16(rows), //nolint:gosec
	}); err != nil {
		return fmt.Errorf("resizing pty: %w", err)
	}
	a.cols = cols
	a.rows = rows
	return nil
}

// Close terminates the shell, escalating from SIGHUP to SIGKILL if the
// grace period runs out, and returns the final geometry as resume state.
func (a *Adapter) Close(ctx context.Context) ([]byte, error) {
	a.mu.Lock()
	if a.closed {
		cols, rows := a.cols, a.rows
		a.mu.Unlock()
		return encodeResumeState(cols, rows), nil
	}
	a.closed = true
	cmd := a.cmd
	ptmx := a.ptmx
	cols, rows := a.cols, a.rows
	a.mu.Unlock()

	state := encodeResumeState(cols, rows)
	if cmd == nil || cmd.Process == nil {
		return state, nil
	}

	_ = cmd.Process.Signal(syscall.SIGHUP)

	select {
	case <-a.exited:
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-a.exited
	}

	if ptmx != nil {
		_ = ptmx.Close()
	}
	return state, nil
}

// Snapshot returns the buffered terminal output as a single replayable
// stdout event, prefixed with an ANSI reset so truncated escape
// sequences cannot corrupt the replayed screen.
func (a *Adapter) Snapshot() (string, string, any, bool) {
	a.bufMu.Lock()
	defer a.bufMu.Unlock()
	if len(a.buffer) == 0 {
		return "", "", nil, false
	}
	data := make([]byte, 0, len(ansiReset)+len(a.buffer))
	data = append(data, ansiReset...)
	data = append(data, a.buffer...)
	return session.ChannelStdout, session.TypeData, session.DataPayload{Data: data}, true
}

// appendBuffer adds output to the replay ring, cutting at a line
// boundary when over capacity so a replay never starts mid escape
// sequence.
func (a *Adapter) appendBuffer(data []byte) {
	a.bufMu.Lock()
	defer a.bufMu.Unlock()

	a.buffer = append(a.buffer, data...)
	if len(a.buffer) <= maxBufferSize {
		return
	}
	excess := len(a.buffer) - maxBufferSize
	cut := excess
	limit := min(excess+256, len(a.buffer))
	for i := excess; i < limit; i++ {
		if a.buffer[i] == '\n' {
			cut = i + 1
			break
		}
	}
	a.buffer = a.buffer[cut:]
}

func encodeResumeState(cols, rows int) []byte {
	data, err := json.Marshal(resumeState{Cols: cols, Rows: rows})
	if err != nil {
		return nil
	}
	return data
}

func decodeResumeState(data []byte) (resumeState, bool) {
	if len(data) == 0 {
		return resumeState{}, false
	}
	var state resumeState
	if err := json.Unmarshal(data, &state); err != nil {
		return resumeState{}, false
	}
	return state, true
}
