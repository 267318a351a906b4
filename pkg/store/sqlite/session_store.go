// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fwdslsh/dispatch-sub012/pkg/session"
	"github.com/fwdslsh/dispatch-sub012/pkg/store"
)

// SessionStore implements store.SessionStore using SQLite.
type SessionStore struct {
	wrapper *DB
	db      *sql.DB
}

// NewSessionStore creates a new SQLite-backed SessionStore.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{wrapper: db, db: db.DB()}
}

var _ store.SessionStore = (*SessionStore)(nil)

// sessionColumns is the SELECT column list shared by Get and List.
const sessionColumns = `id, kind, owner_user_id, workspace_path, title, status,
			last_seq, pinned, type_specific_state, created_at, last_activity_at`

// Create inserts a new session row.
func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, kind, owner_user_id, workspace_path, title, status,
			last_seq, pinned, type_specific_state, created_at, last_activity_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.Kind,
		sess.OwnerUserID,
		sess.WorkspacePath,
		sess.Title,
		string(sess.Status),
		sess.LastSeq,
		boolToInt(sess.Pinned),
		sess.TypeSpecificState,
		formatTime(sess.CreatedAt),
		formatTime(sess.LastActivityAt),
	)
	if err != nil {
		return translateErr(err)
	}
	return nil
}

// Get retrieves a session by id.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// List returns sessions owned by the user, pinned first, most recently
// active next.
func (s *SessionStore) List(
	ctx context.Context, ownerUserID string, filter session.Filter,
) ([]*session.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE owner_user_id = ?`
	args := []any{ownerUserID}

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.WorkspacePath != "" {
		query += ` AND workspace_path = ?`
		args = append(args, filter.WorkspacePath)
	}
	if filter.PinnedOnly {
		query += ` AND pinned = 1`
	}
	query += ` ORDER BY pinned DESC, last_activity_at DESC, id`

	return s.querySessions(ctx, query, args...)
}

// ListAll returns every session row.
func (s *SessionStore) ListAll(ctx context.Context) ([]*session.Session, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at, id`)
}

// Update rewrites the mutable columns of an existing session row.
// last_seq is owned by the event store and deliberately not touched.
func (s *SessionStore) Update(ctx context.Context, sess *session.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			title = ?, status = ?, pinned = ?,
			type_specific_state = ?, last_activity_at = ?
		WHERE id = ?`,
		sess.Title,
		string(sess.Status),
		boolToInt(sess.Pinned),
		sess.TypeSpecificState,
		formatTime(sess.LastActivityAt),
		sess.ID,
	)
	if err != nil {
		return translateErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SessionStore) querySessions(ctx context.Context, query string, args ...any) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", translateErr(err))
	}
	defer func() { _ = rows.Close() }()

	var result []*session.Session
	for rows.Next() {
		sess, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		result = append(result, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return result, nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface{ Scan(dest ...any) error }

func scanSession(sc scanner) (*session.Session, error) {
	var (
		sess         session.Session
		status       string
		pinned       int
		createdAt    string
		lastActivity string
		resumeState  []byte
	)
	err := sc.Scan(
		&sess.ID, &sess.Kind, &sess.OwnerUserID, &sess.WorkspacePath,
		&sess.Title, &status, &sess.LastSeq, &pinned, &resumeState,
		&createdAt, &lastActivity,
	)
	if err != nil {
		return nil, translateErr(err)
	}

	sess.Status = session.Status(status)
	sess.Pinned = pinned != 0
	sess.TypeSpecificState = resumeState
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.LastActivityAt, err = parseTime(lastActivity); err != nil {
		return nil, fmt.Errorf("parsing last_activity_at: %w", err)
	}
	return &sess, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
