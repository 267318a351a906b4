// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fwdslsh/dispatch-sub012/pkg/session"
	"github.com/fwdslsh/dispatch-sub012/pkg/store"
)

// tailBatchSize caps how many rows a tail reads per wakeup. A full batch
// means more rows may be pending, so the tail loops without waiting.
const tailBatchSize = 256

// EventStore implements store.EventStore using SQLite.
//
// Sequence monotonicity relies on a single-writer discipline per
// session: a per-session mutex serializes the read-increment-insert
// transaction, so racing appends from different emit queues are
// impossible by construction.
type EventStore struct {
	wrapper *DB
	db      *sql.DB

	// locks holds one mutex per session id, created on first append.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	notify *notifier
}

// NewEventStore creates a new SQLite-backed EventStore.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{
		wrapper: db,
		db:      db.DB(),
		locks:   make(map[string]*sync.Mutex),
		notify:  newNotifier(),
	}
}

var _ store.EventStore = (*EventStore)(nil)

// Append atomically assigns the next seq, persists the event, and
// updates the session's lastSeq.
func (e *EventStore) Append(
	ctx context.Context, sessionID, channel, eventType string, payload json.RawMessage,
) (int64, error) {
	return e.append(ctx, sessionID, channel, eventType, payload, false)
}

// AppendClosing appends the final event of a session and atomically
// marks the session closed. Any append after this one fails with
// ErrSessionClosed, and tails end once they deliver this event.
func (e *EventStore) AppendClosing(
	ctx context.Context, sessionID, channel, eventType string, payload json.RawMessage,
) (int64, error) {
	return e.append(ctx, sessionID, channel, eventType, payload, true)
}

func (e *EventStore) append(
	ctx context.Context, sessionID, channel, eventType string, payload json.RawMessage, closing bool,
) (int64, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, translateErr(err)
	}
	defer rollback(tx)

	var status string
	var lastSeq int64
	err = tx.QueryRowContext(ctx,
		`SELECT status, last_seq FROM sessions WHERE id = ?`, sessionID,
	).Scan(&status, &lastSeq)
	if err != nil {
		return 0, translateErr(err)
	}
	if session.Status(status).Terminal() {
		return 0, store.ErrSessionClosed
	}

	seq := lastSeq + 1
	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (session_id, seq, channel, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, seq, channel, eventType, []byte(payload), formatTime(now),
	); err != nil {
		return 0, translateErr(err)
	}

	update := `UPDATE sessions SET last_seq = ?, last_activity_at = ? WHERE id = ?`
	if closing {
		update = `UPDATE sessions SET last_seq = ?, last_activity_at = ?, status = 'closed' WHERE id = ?`
	}
	if _, err := tx.ExecContext(ctx, update, seq, formatTime(now), sessionID); err != nil {
		return 0, translateErr(err)
	}

	// Rollback on commit failure releases the seq reservation; the next
	// successful append reuses the same seq.
	if err := tx.Commit(); err != nil {
		return 0, translateErr(err)
	}

	e.notify.broadcast(sessionID)
	return seq, nil
}

// Range returns events with seq > afterSeq in ascending order.
func (e *EventStore) Range(
	ctx context.Context, sessionID string, afterSeq int64, limit int,
) ([]session.Event, error) {
	query := `
		SELECT session_id, seq, channel, event_type, payload, created_at
		FROM events
		WHERE session_id = ? AND seq > ?
		ORDER BY seq`
	args := []any{sessionID, afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", translateErr(err))
	}
	defer func() { _ = rows.Close() }()

	var events []session.Event
	for rows.Next() {
		ev, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest seq assigned to the session.
func (e *EventStore) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var lastSeq int64
	err := e.db.QueryRowContext(ctx,
		`SELECT last_seq FROM sessions WHERE id = ?`, sessionID,
	).Scan(&lastSeq)
	if err != nil {
		return 0, translateErr(err)
	}
	return lastSeq, nil
}

// Tail streams events after afterSeq until the session closes or ctx is
// cancelled. Delivery is cursor-based: the tail re-reads from the
// database after its cursor on every wakeup, so a slow consumer can
// never force a skip or a reorder.
func (e *EventStore) Tail(
	ctx context.Context, sessionID string, afterSeq int64,
) (store.EventStream, error) {
	// Fail fast on unknown sessions rather than from the goroutine.
	if _, err := e.LastSeq(ctx, sessionID); err != nil {
		return nil, err
	}

	stream := newTailStream()
	go e.runTail(ctx, sessionID, afterSeq, stream)
	return stream, nil
}

func (e *EventStore) runTail(ctx context.Context, sessionID string, cursor int64, stream *tailStream) {
	for {
		// Snapshot the notify channel before reading so that an append
		// racing with the read still wakes the next iteration.
		wakeup := e.notify.wait(sessionID)

		batch, err := e.Range(ctx, sessionID, cursor, tailBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				stream.finish(nil)
				return
			}
			stream.finish(err)
			return
		}

		for _, ev := range batch {
			select {
			case stream.ch <- ev:
				cursor = ev.Seq
			case <-ctx.Done():
				stream.finish(nil)
				return
			}
		}
		if len(batch) == tailBatchSize {
			// Possibly more rows pending; read again immediately.
			continue
		}

		status, lastSeq, err := e.sessionState(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				stream.finish(nil)
				return
			}
			stream.finish(err)
			return
		}
		if session.Status(status).Terminal() && cursor >= lastSeq {
			stream.finish(nil)
			return
		}

		select {
		case <-wakeup:
		case <-ctx.Done():
			stream.finish(nil)
			return
		}
	}
}

func (e *EventStore) sessionState(ctx context.Context, sessionID string) (string, int64, error) {
	var status string
	var lastSeq int64
	err := e.db.QueryRowContext(ctx,
		`SELECT status, last_seq FROM sessions WHERE id = ?`, sessionID,
	).Scan(&status, &lastSeq)
	if err != nil {
		return "", 0, translateErr(err)
	}
	return status, lastSeq, nil
}

func (e *EventStore) sessionLock(sessionID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	lock, ok := e.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[sessionID] = lock
	}
	return lock
}

func scanEvent(sc scanner) (session.Event, error) {
	var (
		ev        session.Event
		payload   []byte
		createdAt string
	)
	if err := sc.Scan(&ev.SessionID, &ev.Seq, &ev.Channel, &ev.Type, &payload, &createdAt); err != nil {
		return session.Event{}, translateErr(err)
	}
	if len(payload) > 0 {
		ev.Payload = json.RawMessage(payload)
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return session.Event{}, fmt.Errorf("parsing event timestamp: %w", err)
	}
	ev.Timestamp = ts
	return ev, nil
}

// tailStream is the EventStream handed to tail consumers.
type tailStream struct {
	ch chan session.Event

	mu  sync.Mutex
	err error
}

func newTailStream() *tailStream {
	return &tailStream{ch: make(chan session.Event)}
}

func (s *tailStream) Events() <-chan session.Event {
	return s.ch
}

func (s *tailStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *tailStream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.ch)
}

var _ store.EventStream = (*tailStream)(nil)

// notifier wakes tails when a session gains events. Each session has a
// channel that is closed and replaced on every append; waiters snapshot
// the current channel and block on it.
type notifier struct {
	mu    sync.Mutex
	chans map[string]chan struct{}
}

func newNotifier() *notifier {
	return &notifier{chans: make(map[string]chan struct{})}
}

func (n *notifier) wait(sessionID string) <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.chans[sessionID]
	if !ok {
		ch = make(chan struct{})
		n.chans[sessionID] = ch
	}
	return ch
}

func (n *notifier) broadcast(sessionID string) {
	n.mu.Lock()
	ch, ok := n.chans[sessionID]
	if ok {
		n.chans[sessionID] = make(chan struct{})
	}
	n.mu.Unlock()
	if ok {
		close(ch)
	}
}
