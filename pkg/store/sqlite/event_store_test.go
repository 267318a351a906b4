// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwdslsh/dispatch-sub012/pkg/session"
	"github.com/fwdslsh/dispatch-sub012/pkg/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "dispatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestSession(t *testing.T, db *DB) *session.Session {
	t.Helper()
	sess := &session.Session{
		ID:             session.NewID(),
		Kind:           session.KindPTY,
		OwnerUserID:    "user-1",
		WorkspacePath:  "/tmp",
		Status:         session.StatusRunning,
		CreatedAt:      time.Now().UTC(),
		LastActivityAt: time.Now().UTC(),
	}
	require.NoError(t, NewSessionStore(db).Create(context.Background(), sess))
	return sess
}

func appendN(t *testing.T, events *EventStore, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		payload, err := session.MarshalPayload(map[string]any{"i": i})
		require.NoError(t, err)
		_, err = events.Append(context.Background(), sessionID, session.ChannelStdout, session.TypeData, payload)
		require.NoError(t, err)
	}
}

func TestAppendAssignsDenseSequence(t *testing.T) {
	db := openTestDB(t)
	sess := newTestSession(t, db)
	events := NewEventStore(db)

	for want := int64(1); want <= 5; want++ {
		seq, err := events.Append(context.Background(), sess.ID, session.ChannelStdout, session.TypeData, nil)
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}

	// Invariant: range(0) reads back 1..lastSeq with no gaps and no
	// duplicates.
	got, err := events.Range(context.Background(), sess.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, ev := range got {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, sess.ID, ev.SessionID)
	}

	lastSeq, err := events.LastSeq(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), lastSeq)
}

func TestRangeFromEveryOffset(t *testing.T) {
	db := openTestDB(t)
	sess := newTestSession(t, db)
	events := NewEventStore(db)
	appendN(t, events, sess.ID, 10)

	for afterSeq := int64(0); afterSeq <= 10; afterSeq++ {
		got, err := events.Range(context.Background(), sess.ID, afterSeq, 0)
		require.NoError(t, err)
		require.Len(t, got, int(10-afterSeq), "afterSeq=%d", afterSeq)
		for i, ev := range got {
			assert.Equal(t, afterSeq+int64(i)+1, ev.Seq)
		}
	}
}

func TestRangeHonorsLimit(t *testing.T) {
	db := openTestDB(t)
	sess := newTestSession(t, db)
	events := NewEventStore(db)
	appendN(t, events, sess.ID, 10)

	got, err := events.Range(context.Background(), sess.ID, 2, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(3), got[0].Seq)
	assert.Equal(t, int64(5), got[2].Seq)
}

func TestAppendPreservesPayload(t *testing.T) {
	db := openTestDB(t)
	sess := newTestSession(t, db)
	events := NewEventStore(db)

	payload, err := session.MarshalPayload(session.InputPayload{Data: []byte("ls -la\n")})
	require.NoError(t, err)
	_, err = events.Append(context.Background(), sess.ID, session.ChannelSystemInput, session.TypeData, payload)
	require.NoError(t, err)

	got, err := events.Range(context.Background(), sess.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	var decoded session.InputPayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &decoded))
	assert.Equal(t, []byte("ls -la\n"), decoded.Data)
	assert.Equal(t, session.ChannelSystemInput, got[0].Channel)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestAppendToUnknownSession(t *testing.T) {
	db := openTestDB(t)
	events := NewEventStore(db)

	_, err := events.Append(context.Background(), "nope", session.ChannelStdout, session.TypeData, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendClosingIsTerminal(t *testing.T) {
	db := openTestDB(t)
	sess := newTestSession(t, db)
	events := NewEventStore(db)
	sessions := NewSessionStore(db)
	appendN(t, events, sess.ID, 3)

	payload, err := session.MarshalPayload(session.StatusPayload{Status: session.StatusClosed})
	require.NoError(t, err)
	seq, err := events.AppendClosing(
		context.Background(), sess.ID, session.ChannelSystemStatus, session.TypeClosed, payload)
	require.NoError(t, err)
	assert.Equal(t, int64(4), seq)

	got, err := sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusClosed, got.Status)

	_, err = events.Append(context.Background(), sess.ID, session.ChannelStdout, session.TypeData, nil)
	assert.ErrorIs(t, err, store.ErrSessionClosed)
}

func TestConcurrentAppendsStayDense(t *testing.T) {
	db := openTestDB(t)
	sess := newTestSession(t, db)
	events := NewEventStore(db)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := events.Append(
					context.Background(), sess.ID, session.ChannelStdout, session.TypeData, nil)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, err := events.Range(context.Background(), sess.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, writers*perWriter)
	for i, ev := range got {
		require.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestLastSeqSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.db")

	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	sess := newTestSession(t, db)
	events := NewEventStore(db)
	appendN(t, events, sess.ID, 7)
	require.NoError(t, db.Close())

	// Recovery: lastSeq equals the maximum seq ever durably appended.
	db, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	lastSeq, err := NewEventStore(db).LastSeq(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), lastSeq)

	got, err := NewEventStore(db).Range(context.Background(), sess.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 7)
}

func TestReopenRepairsDivergentLastSeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.db")

	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	sess := newTestSession(t, db)
	appendN(t, NewEventStore(db), sess.ID, 4)

	// Simulate a torn counter: the row claims more than was durably
	// appended.
	_, err = db.DB().Exec(`UPDATE sessions SET last_seq = 99 WHERE id = ?`, sess.ID)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	lastSeq, err := NewEventStore(db).LastSeq(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), lastSeq)

	// The next append continues densely from the repaired counter.
	seq, err := NewEventStore(db).Append(
		context.Background(), sess.ID, session.ChannelStdout, session.TypeData, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), seq)
}

func TestTailDeliversHistoricalThenLive(t *testing.T) {
	db := openTestDB(t)
	sess := newTestSession(t, db)
	events := NewEventStore(db)
	appendN(t, events, sess.ID, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tail, err := events.Tail(ctx, sess.ID, 2)
	require.NoError(t, err)

	// Historical part: 3, 4, 5.
	for want := int64(3); want <= 5; want++ {
		ev := <-tail.Events()
		assert.Equal(t, want, ev.Seq)
	}

	// Live part: appended after the tail started.
	appendN(t, events, sess.ID, 2)
	for want := int64(6); want <= 7; want++ {
		select {
		case ev := <-tail.Events():
			assert.Equal(t, want, ev.Seq)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for live event %d", want)
		}
	}
}

func TestTailClosesCleanlyAfterFinalSeq(t *testing.T) {
	db := openTestDB(t)
	sess := newTestSession(t, db)
	events := NewEventStore(db)
	appendN(t, events, sess.ID, 3)

	tail, err := events.Tail(context.Background(), sess.ID, 0)
	require.NoError(t, err)

	_, err = events.AppendClosing(
		context.Background(), sess.ID, session.ChannelSystemStatus, session.TypeClosed, nil)
	require.NoError(t, err)

	var seqs []int64
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-tail.Events():
			if !ok {
				require.Equal(t, []int64{1, 2, 3, 4}, seqs)
				assert.NoError(t, tail.Err())
				return
			}
			seqs = append(seqs, ev.Seq)
		case <-deadline:
			t.Fatal("tail did not close after final seq")
		}
	}
}

func TestTailRangeConcatenationProperty(t *testing.T) {
	// Invariant: range(0, k) ++ tail(k) equals tail(0) for every k.
	db := openTestDB(t)
	sess := newTestSession(t, db)
	events := NewEventStore(db)
	const total = 20
	appendN(t, events, sess.ID, total)
	_, err := events.AppendClosing(
		context.Background(), sess.ID, session.ChannelSystemStatus, session.TypeClosed, nil)
	require.NoError(t, err)

	collect := func(tail store.EventStream) []int64 {
		var seqs []int64
		for ev := range tail.Events() {
			seqs = append(seqs, ev.Seq)
		}
		require.NoError(t, tail.Err())
		return seqs
	}

	full, err := events.Tail(context.Background(), sess.ID, 0)
	require.NoError(t, err)
	want := collect(full)

	for k := int64(0); k <= total; k += 5 {
		head, err := events.Range(context.Background(), sess.ID, 0, int(k))
		require.NoError(t, err)

		tail, err := events.Tail(context.Background(), sess.ID, k)
		require.NoError(t, err)

		var got []int64
		for _, ev := range head {
			got = append(got, ev.Seq)
		}
		got = append(got, collect(tail)...)
		assert.Equal(t, want, got, "k=%d", k)
	}
}

func TestTailUnknownSession(t *testing.T) {
	db := openTestDB(t)
	events := NewEventStore(db)

	_, err := events.Tail(context.Background(), "nope", 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentTailsSeeIdenticalSequences(t *testing.T) {
	db := openTestDB(t)
	sess := newTestSession(t, db)
	events := NewEventStore(db)

	const readers = 4
	const total = 100

	ctx := context.Background()
	tails := make([]store.EventStream, readers)
	for i := range tails {
		tail, err := events.Tail(ctx, sess.ID, 0)
		require.NoError(t, err)
		tails[i] = tail
	}

	go func() {
		for i := 0; i < total; i++ {
			payload, _ := session.MarshalPayload(map[string]any{"i": i})
			if _, err := events.Append(ctx, sess.ID, session.ChannelStdout, session.TypeData, payload); err != nil {
				panic(fmt.Sprintf("append: %v", err))
			}
		}
		if _, err := events.AppendClosing(ctx, sess.ID, session.ChannelSystemStatus, session.TypeClosed, nil); err != nil {
			panic(fmt.Sprintf("close: %v", err))
		}
	}()

	var wg sync.WaitGroup
	results := make([][]int64, readers)
	for i, tail := range tails {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range tail.Events() {
				results[i] = append(results[i], ev.Seq)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < readers; i++ {
		require.Len(t, results[i], total+1, "reader %d", i)
		assert.Equal(t, results[0], results[i], "reader %d diverged", i)
	}
	for j, seq := range results[0] {
		require.Equal(t, int64(j+1), seq)
	}
}
