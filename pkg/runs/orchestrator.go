// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package runs orchestrates run sessions: it owns the adapter
// lifecycle, serializes adapter output into the event store, and is
// the single authority for session lifecycle transitions.
package runs

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/fwdslsh/dispatch-sub012/pkg/adapters"
	"github.com/fwdslsh/dispatch-sub012/pkg/config"
	"github.com/fwdslsh/dispatch-sub012/pkg/errors"
	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
	"github.com/fwdslsh/dispatch-sub012/pkg/session"
	"github.com/fwdslsh/dispatch-sub012/pkg/store"
	"github.com/fwdslsh/dispatch-sub012/pkg/telemetry"
	"github.com/fwdslsh/dispatch-sub012/pkg/workspaces"
)

// Options configures an Orchestrator.
type Options struct {
	Sessions   store.SessionStore
	Events     store.EventStore
	Registry   *adapters.Registry
	Workspaces *workspaces.Resolver

	// Metrics is optional; nil disables instrumentation.
	Metrics *telemetry.Metrics

	// CloseGrace bounds adapter shutdown; zero means the default.
	CloseGrace time.Duration
	// IdleThreshold controls the advisory idle flip; zero means the
	// default.
	IdleThreshold time.Duration
	// EmitQueueCap bounds each session's emit queue; zero means the
	// default.
	EmitQueueCap int
}

// Orchestrator mediates every session operation. All writes to a
// session's event log funnel through its single per-session worker, so
// seq assignment is race-free by construction.
type Orchestrator struct {
	sessions   store.SessionStore
	events     store.EventStore
	registry   *adapters.Registry
	workspaces *workspaces.Resolver
	metrics    *telemetry.Metrics

	closeGrace    time.Duration
	idleThreshold time.Duration
	emitQueueCap  int

	mu     sync.Mutex
	active map[string]*activeSession

	notifier *notifier
	shutdown chan struct{}
	shutOnce sync.Once
}

// New creates an orchestrator. Call Recover before serving traffic and
// Run to start the background sweeper.
func New(opts Options) (*Orchestrator, error) {
	if opts.Sessions == nil || opts.Events == nil {
		return nil, fmt.Errorf("session and event stores are required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("adapter registry is required")
	}
	if opts.Workspaces == nil {
		return nil, fmt.Errorf("workspace resolver is required")
	}
	if opts.CloseGrace <= 0 {
		opts.CloseGrace = config.DefaultCloseGrace
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = config.DefaultIdleThreshold
	}
	if opts.EmitQueueCap <= 0 {
		opts.EmitQueueCap = config.DefaultEmitQueueCap
	}
	return &Orchestrator{
		sessions:      opts.Sessions,
		events:        opts.Events,
		registry:      opts.Registry,
		workspaces:    opts.Workspaces,
		metrics:       opts.Metrics,
		closeGrace:    opts.CloseGrace,
		idleThreshold: opts.IdleThreshold,
		emitQueueCap:  opts.EmitQueueCap,
		active:        make(map[string]*activeSession),
		notifier:      newNotifier(),
		shutdown:      make(chan struct{}),
	}, nil
}

// CreateOptions carries the per-session creation parameters.
type CreateOptions struct {
	Kind          string
	WorkspacePath string
	Title         string
	Cols          int
	Rows          int
	Env           map[string]string
	Argv          []string
	// ResumeFromID names a closed session of the same kind and owner
	// whose captured state seeds the new one.
	ResumeFromID string
}

// Create starts a new session: persists the row, launches the adapter,
// and begins streaming its events.
func (o *Orchestrator) Create(ctx context.Context, ownerUserID string, opts CreateOptions) (*session.Session, error) {
	factory, ok := o.registry.Factory(opts.Kind)
	if !ok {
		return nil, errors.NewInvalidArgumentError(
			fmt.Sprintf("unknown session kind %q", opts.Kind), nil)
	}

	wsPath, err := o.workspaces.Resolve(opts.WorkspacePath)
	if err != nil {
		return nil, err
	}

	var resumeState []byte
	if opts.ResumeFromID != "" {
		prior, err := o.authorized(ctx, ownerUserID, opts.ResumeFromID)
		if err != nil {
			return nil, err
		}
		if prior.Kind != opts.Kind {
			return nil, errors.NewInvalidArgumentError(
				fmt.Sprintf("cannot resume %s session from %s session %s",
					opts.Kind, prior.Kind, prior.ID), nil)
		}
		if !prior.Status.Terminal() {
			return nil, errors.NewConflictError(
				fmt.Sprintf("session %s is not closed", prior.ID), nil)
		}
		resumeState = prior.TypeSpecificState
	}

	title := opts.Title
	if title == "" {
		title = opts.Kind + " session"
	}

	now := time.Now().UTC()
	s := &session.Session{
		ID:             session.NewID(),
		Kind:           opts.Kind,
		OwnerUserID:    ownerUserID,
		WorkspacePath:  wsPath,
		Title:          title,
		Status:         session.StatusStarting,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := o.sessions.Create(ctx, s); err != nil {
		return nil, errors.NewStoreFailureError("persisting session", err)
	}

	active := newActiveSession(s.ID, s.Kind, o)
	active.adapter = factory()

	o.mu.Lock()
	o.active[s.ID] = active
	o.mu.Unlock()
	go active.runWorker()

	err = active.adapter.Start(ctx, adapters.Config{
		WorkspacePath: wsPath,
		Cols:          opts.Cols,
		Rows:          opts.Rows,
		Env:           opts.Env,
		Argv:          opts.Argv,
		ResumeState:   resumeState,
	}, active.emit)
	if err != nil {
		failedPayload, _ := session.MarshalPayload(session.StatusPayload{
			Status: session.StatusError,
			Reason: "adapter failed to start",
		})
		active.enqueue(emitRequest{
			channel:   session.ChannelSystemStatus,
			eventType: session.TypeFailed,
			payload:   failedPayload,
		})
		active.stopWorker()
		o.removeActive(s.ID)
		s.Status = session.StatusError
		if updateErr := o.sessions.Update(ctx, s); updateErr != nil {
			logger.Errorw("marking failed session", "session_id", s.ID, "error", updateErr)
		}
		logger.Errorw("adapter start failed",
			"session_id", s.ID, "kind", s.Kind, "error", err)
		return nil, errors.NewAdapterFailureError(
			fmt.Sprintf("starting %s adapter", opts.Kind), err)
	}

	// The opened event is enqueued only once the launch succeeded: a
	// failed start logs nothing but the failed event. Adapters begin
	// emitting after Start returns, so opened still lands first.
	openedPayload, _ := session.MarshalPayload(session.StatusPayload{Status: session.StatusRunning})
	active.enqueue(emitRequest{
		channel:   session.ChannelSystemStatus,
		eventType: session.TypeOpened,
		payload:   openedPayload,
	})

	s.Status = session.StatusRunning
	if err := o.sessions.Update(ctx, s); err != nil {
		logger.Errorw("updating session status", "session_id", s.ID, "error", err)
	}

	if o.metrics != nil {
		o.metrics.ActiveSessions.WithLabelValues(s.Kind).Inc()
	}
	o.notifier.publish(NotifyCreated, s)
	logger.Infow("session created",
		"session_id", s.ID, "kind", s.Kind, "workspace", wsPath)
	return s, nil
}

// Get returns a session the user owns.
func (o *Orchestrator) Get(ctx context.Context, userID, sessionID string) (*session.Session, error) {
	return o.authorized(ctx, userID, sessionID)
}

// List returns the user's sessions matching the filter, pinned first.
func (o *Orchestrator) List(ctx context.Context, userID string, filter session.Filter) ([]*session.Session, error) {
	out, err := o.sessions.List(ctx, userID, filter)
	if err != nil {
		return nil, errors.NewStoreFailureError("listing sessions", err)
	}
	return out, nil
}

// Write delivers user input to the session's adapter. The input is
// echoed into the event log first so that history replays include both
// sides of the exchange.
func (o *Orchestrator) Write(ctx context.Context, userID, sessionID string, data []byte) error {
	s, err := o.authorized(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	active := o.lookupActive(sessionID)
	if active == nil {
		if s.Status.Terminal() {
			return errors.NewSessionClosedError(
				fmt.Sprintf("session %s is closed", sessionID), nil)
		}
		return errors.NewAdapterFailureError(
			fmt.Sprintf("session %s has no live adapter", sessionID), nil)
	}

	inputPayload, err := session.MarshalPayload(session.InputPayload{Data: data})
	if err != nil {
		return errors.NewInvalidArgumentError("encoding input", err)
	}
	active.enqueue(emitRequest{
		channel:   session.ChannelSystemInput,
		eventType: session.TypeData,
		payload:   inputPayload,
	})

	if err := active.adapter.Write(ctx, data); err != nil {
		var typed *errors.Error
		if stderrors.As(err, &typed) {
			return err
		}
		return errors.NewAdapterFailureError("writing to adapter", err)
	}

	// Successful input flips advisory idle/error states back.
	if s.Status == session.StatusIdle || s.Status == session.StatusError {
		s.Status = session.StatusRunning
		if err := o.sessions.Update(ctx, s); err == nil {
			o.notifier.publish(NotifyUpdated, s)
		}
	}
	return nil
}

// Resize changes the session's terminal geometry, for kinds that have
// one. The resize is recorded in the event log.
func (o *Orchestrator) Resize(ctx context.Context, userID, sessionID string, cols, rows int) error {
	_, err := o.authorized(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	active := o.lookupActive(sessionID)
	if active == nil {
		return errors.NewSessionClosedError(
			fmt.Sprintf("session %s has no live adapter", sessionID), nil)
	}
	resizer, ok := active.adapter.(adapters.Resizer)
	if !ok {
		return errors.NewInvalidArgumentError(
			fmt.Sprintf("%s sessions do not support resize", active.kind), nil)
	}

	if err := resizer.Resize(ctx, cols, rows); err != nil {
		var typed *errors.Error
		if stderrors.As(err, &typed) {
			return err
		}
		return errors.NewInvalidArgumentError("resizing session", err)
	}

	resizePayload, _ := session.MarshalPayload(session.ResizePayload{Cols: cols, Rows: rows})
	active.enqueue(emitRequest{
		channel:   session.ChannelResize,
		eventType: session.TypeData,
		payload:   resizePayload,
	})
	return nil
}

// Rename updates the session title.
func (o *Orchestrator) Rename(ctx context.Context, userID, sessionID, title string) error {
	if title == "" || len(title) > 256 {
		return errors.NewInvalidArgumentError("title must be 1-256 characters", nil)
	}
	s, err := o.authorized(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	s.Title = title
	if err := o.sessions.Update(ctx, s); err != nil {
		return errors.NewStoreFailureError("renaming session", err)
	}
	o.notifier.publish(NotifyUpdated, s)
	return nil
}

// Pin sets the advisory pinned flag.
func (o *Orchestrator) Pin(ctx context.Context, userID, sessionID string, pinned bool) error {
	s, err := o.authorized(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if s.Pinned == pinned {
		return nil
	}
	s.Pinned = pinned
	if err := o.sessions.Update(ctx, s); err != nil {
		return errors.NewStoreFailureError("updating session", err)
	}
	o.notifier.publish(NotifyUpdated, s)
	return nil
}

// Close ends a session: the adapter gets the grace period to shut down
// and hand back resume state, after which it is force-closed. Closing
// an already-closed session succeeds.
func (o *Orchestrator) Close(ctx context.Context, userID, sessionID string) error {
	s, err := o.authorized(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	active := o.lookupActive(sessionID)
	if active == nil {
		return o.closeInactive(ctx, s)
	}
	return o.closeActive(ctx, s, active)
}

// closeInactive closes a session with no live adapter (errored rows,
// or rows recovered after a restart).
func (o *Orchestrator) closeInactive(ctx context.Context, s *session.Session) error {
	if s.Status.Terminal() {
		return nil
	}
	payload, _ := session.MarshalPayload(session.StatusPayload{
		Status: session.StatusClosed,
		Reason: "closed by owner",
	})
	_, err := o.events.AppendClosing(ctx, s.ID, session.ChannelSystemStatus, session.TypeClosed, payload)
	if err != nil && !stderrors.Is(err, store.ErrSessionClosed) {
		return errors.NewStoreFailureError("closing session", err)
	}
	s.Status = session.StatusClosed
	if err := o.sessions.Update(ctx, s); err != nil {
		return errors.NewStoreFailureError("closing session", err)
	}
	o.notifier.publish(NotifyClosed, s)
	return nil
}

// closeActive runs the graceful shutdown of a live adapter.
func (o *Orchestrator) closeActive(ctx context.Context, s *session.Session, active *activeSession) error {
	if !active.beginClose() {
		// Another close (or a spontaneous exit) is already tearing the
		// session down; wait for it.
		select {
		case <-active.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.closeGrace)
	defer cancel()
	state, closeErr := active.adapter.Close(graceCtx)

	eventType := session.TypeClosed
	payload := session.StatusPayload{Status: session.StatusClosed, Reason: "closed by owner"}
	if graceCtx.Err() != nil {
		eventType = session.TypeForcedClose
		payload.Reason = "close grace period exceeded"
	} else if closeErr != nil {
		logger.Warnw("adapter close reported an error",
			"session_id", s.ID, "error", closeErr)
	}

	raw, _ := session.MarshalPayload(payload)
	active.enqueue(emitRequest{
		channel:   session.ChannelSystemStatus,
		eventType: eventType,
		payload:   raw,
		closing:   true,
	})
	<-active.workerDone

	o.removeActive(s.ID)
	s.TypeSpecificState = state
	s.Status = session.StatusClosed
	if err := o.sessions.Update(ctx, s); err != nil {
		logger.Errorw("persisting close", "session_id", s.ID, "error", err)
	}
	if o.metrics != nil {
		o.metrics.ActiveSessions.WithLabelValues(s.Kind).Dec()
	}
	o.notifier.publish(NotifyClosed, s)
	close(active.done)
	logger.Infow("session closed", "session_id", s.ID, "kind", s.Kind)
	return nil
}

// Attachment is the result of joining a session's event stream.
type Attachment struct {
	Session *session.Session
	// Snapshot, when set, is a synthetic event representing current
	// state; it replaces the historical replay for afterSeq == -1.
	Snapshot *session.Event
	// Stream delivers every event after the caller's cursor, gapless,
	// ending cleanly when the session closes.
	Stream store.EventStream
}

// Attach joins a session's event stream. afterSeq is the caller's
// cursor: 0 replays from the beginning, a positive value resumes after
// that seq, and -1 requests screen-state-only catch-up when the
// adapter can synthesize one.
func (o *Orchestrator) Attach(ctx context.Context, userID, sessionID string, afterSeq int64) (*Attachment, error) {
	s, err := o.authorized(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if afterSeq < -1 {
		return nil, errors.NewInvalidArgumentError(
			fmt.Sprintf("afterSeq must be >= -1, got %d", afterSeq), nil)
	}

	att := &Attachment{Session: s}
	cursor := afterSeq

	if afterSeq == -1 {
		cursor = 0
		if active := o.lookupActive(sessionID); active != nil {
			if snapshotter, ok := active.adapter.(adapters.Snapshotter); ok {
				// Reading lastSeq before the snapshot means anything
				// appended in between shows up both in the snapshot and
				// in the tail; duplicated output is harmless, a gap is
				// not.
				lastSeq, err := o.events.LastSeq(ctx, sessionID)
				if err != nil {
					return nil, errors.NewStoreFailureError("reading last seq", err)
				}
				if channel, eventType, payload, ok := snapshotter.Snapshot(); ok {
					raw, err := session.MarshalPayload(payload)
					if err != nil {
						return nil, errors.NewAdapterFailureError("encoding snapshot", err)
					}
					att.Snapshot = &session.Event{
						SessionID: sessionID,
						Seq:       lastSeq,
						Channel:   channel,
						Type:      eventType,
						Payload:   raw,
						Timestamp: time.Now().UTC(),
					}
					cursor = lastSeq
				}
			}
		}
		// Without a snapshot the full history is replayed instead.
	}

	stream, err := o.events.Tail(ctx, sessionID, cursor)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NewNotFoundError(
				fmt.Sprintf("session %s not found", sessionID), err)
		}
		return nil, errors.NewStoreFailureError("tailing session events", err)
	}
	att.Stream = stream
	return att, nil
}

// Events returns a bounded page of historical events.
func (o *Orchestrator) Events(ctx context.Context, userID, sessionID string, afterSeq int64, limit int) ([]session.Event, error) {
	if _, err := o.authorized(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if afterSeq < 0 {
		return nil, errors.NewInvalidArgumentError(
			fmt.Sprintf("afterSeq must be >= 0, got %d", afterSeq), nil)
	}
	events, err := o.events.Range(ctx, sessionID, afterSeq, limit)
	if err != nil {
		return nil, errors.NewStoreFailureError("reading events", err)
	}
	return events, nil
}

// Subscribe returns the advisory control stream of session lifecycle
// notifications. The subscription ends with ctx.
func (o *Orchestrator) Subscribe(ctx context.Context) <-chan Notification {
	return o.notifier.subscribe(ctx)
}

// Recover marks sessions that were live when the server last stopped
// as errored; their adapters are gone. Call once at startup.
func (o *Orchestrator) Recover(ctx context.Context) error {
	all, err := o.sessions.ListAll(ctx)
	if err != nil {
		return errors.NewStoreFailureError("listing sessions for recovery", err)
	}
	recovered := 0
	for _, s := range all {
		if !s.Status.Live() {
			continue
		}
		payload, _ := session.MarshalPayload(session.StatusPayload{
			Status: session.StatusError,
			Reason: "server restarted",
		})
		if _, err := o.events.Append(ctx, s.ID, session.ChannelSystemStatus, session.TypeFailed, payload); err != nil &&
			!stderrors.Is(err, store.ErrSessionClosed) {
			logger.Errorw("recording recovery event", "session_id", s.ID, "error", err)
		}
		s.Status = session.StatusError
		if err := o.sessions.Update(ctx, s); err != nil {
			return errors.NewStoreFailureError("recovering session", err)
		}
		recovered++
	}
	if recovered > 0 {
		logger.Infow("recovered interrupted sessions", "count", recovered)
	}
	return nil
}

// Run drives the idle sweeper until ctx ends.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := o.idleThreshold / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepIdle(ctx)
		}
	}
}

// sweepIdle flips running sessions that went quiet to idle, and idle
// sessions with fresh activity back to running. Advisory only.
func (o *Orchestrator) sweepIdle(ctx context.Context) {
	all, err := o.sessions.ListAll(ctx)
	if err != nil {
		logger.Errorw("idle sweep listing failed", "error", err)
		return
	}
	now := time.Now().UTC()
	for _, s := range all {
		if o.lookupActive(s.ID) == nil {
			continue
		}
		quiet := now.Sub(s.LastActivityAt) > o.idleThreshold
		switch {
		case s.Status == session.StatusRunning && quiet:
			s.Status = session.StatusIdle
		case s.Status == session.StatusIdle && !quiet:
			s.Status = session.StatusRunning
		default:
			continue
		}
		if err := o.sessions.Update(ctx, s); err != nil {
			logger.Errorw("idle sweep update failed", "session_id", s.ID, "error", err)
			continue
		}
		o.notifier.publish(NotifyUpdated, s)
	}
}

// Shutdown closes every live session gracefully. The server calls this
// once during termination.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s, err := o.sessions.Get(ctx, id)
			if err != nil {
				return
			}
			if active := o.lookupActive(id); active != nil {
				if err := o.closeActive(ctx, s, active); err != nil {
					logger.Errorw("shutdown close failed", "session_id", id, "error", err)
				}
			}
		}(id)
	}
	wg.Wait()
	o.shutOnce.Do(func() { close(o.shutdown) })
}

// failSession tears a session down after persistent store failures.
func (o *Orchestrator) failSession(active *activeSession, reason string) {
	if !active.beginClose() {
		return
	}
	graceCtx, cancel := context.WithTimeout(context.Background(), o.closeGrace)
	defer cancel()
	state, _ := active.adapter.Close(graceCtx)

	o.removeActive(active.id)
	if s, err := o.sessions.Get(graceCtx, active.id); err == nil {
		s.Status = session.StatusError
		s.TypeSpecificState = state
		if err := o.sessions.Update(graceCtx, s); err != nil {
			logger.Errorw("persisting failed session", "session_id", active.id, "error", err)
		}
		o.notifier.publish(NotifyUpdated, s)
	}
	if o.metrics != nil {
		o.metrics.ActiveSessions.WithLabelValues(active.kind).Dec()
	}
	logger.Errorw("session failed", "session_id", active.id, "reason", reason)
	close(active.done)
}

// finalizeSpontaneous completes teardown after the adapter announced
// its own exit (the closing event is already in the log).
func (o *Orchestrator) finalizeSpontaneous(active *activeSession) {
	if !active.beginClose() {
		return
	}
	graceCtx, cancel := context.WithTimeout(context.Background(), o.closeGrace)
	defer cancel()
	state, _ := active.adapter.Close(graceCtx)

	o.removeActive(active.id)
	if s, err := o.sessions.Get(graceCtx, active.id); err == nil {
		s.Status = session.StatusClosed
		s.TypeSpecificState = state
		if err := o.sessions.Update(graceCtx, s); err != nil {
			logger.Errorw("persisting spontaneous close", "session_id", active.id, "error", err)
		}
		o.notifier.publish(NotifyClosed, s)
	}
	if o.metrics != nil {
		o.metrics.ActiveSessions.WithLabelValues(active.kind).Dec()
	}
	logger.Infow("session process exited", "session_id", active.id, "kind", active.kind)
	close(active.done)
}

// markErrored records an advisory error status after an adapter
// reported a failure on an :error channel. The adapter stays up.
func (o *Orchestrator) markErrored(sessionID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	s, err := o.sessions.Get(ctx, sessionID)
	if err != nil || !s.Status.Live() {
		return
	}
	s.Status = session.StatusError
	if err := o.sessions.Update(ctx, s); err != nil {
		logger.Errorw("marking errored session", "session_id", sessionID, "error", err)
		return
	}
	o.notifier.publish(NotifyUpdated, s)
	logger.Warnw("session errored", "session_id", sessionID, "reason", reason)
}

func (o *Orchestrator) lookupActive(id string) *activeSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active[id]
}

func (o *Orchestrator) removeActive(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}

// authorized loads a session and checks ownership.
func (o *Orchestrator) authorized(ctx context.Context, userID, sessionID string) (*session.Session, error) {
	if userID == "" {
		return nil, errors.NewNotAuthenticatedError("user identity is required", nil)
	}
	if !session.ValidID(sessionID) {
		return nil, errors.NewInvalidArgumentError(
			fmt.Sprintf("invalid session id %q", sessionID), nil)
	}
	s, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NewNotFoundError(
				fmt.Sprintf("session %s not found", sessionID), err)
		}
		return nil, errors.NewStoreFailureError("loading session", err)
	}
	if s.OwnerUserID != userID {
		return nil, errors.NewNotAuthorizedError(
			fmt.Sprintf("session %s is not owned by the caller", sessionID), nil)
	}
	return s, nil
}
