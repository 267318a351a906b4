// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlite implements the store interfaces on a local SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/fwdslsh/dispatch-sub012/pkg/store"
)

// DB wraps the SQLite connection shared by the session and event stores.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies
// pending migrations. The connection pool is limited to a single
// connection: SQLite serializes writers anyway, and one connection keeps
// transaction semantics simple.
func Open(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?%s", path, url.Values{
		"_pragma": []string{
			"journal_mode(WAL)",
			"busy_timeout(5000)",
			"foreign_keys(ON)",
			"synchronous(NORMAL)",
		},
	}.Encode())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	w := &DB{db: db}
	if err := w.reconcileLastSeq(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// DB returns the underlying database handle.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// reconcileLastSeq repairs sessions.last_seq against the durably
// appended events after a crash. Appends are transactional so the two
// should never diverge, but recovery is defined as "last_seq equals the
// maximum seq ever durably appended", so we enforce it on open.
func (d *DB) reconcileLastSeq(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE sessions SET last_seq = COALESCE(
			(SELECT MAX(seq) FROM events WHERE events.session_id = sessions.id), 0)
		WHERE last_seq <> COALESCE(
			(SELECT MAX(seq) FROM events WHERE events.session_id = sessions.id), 0)`)
	if err != nil {
		return fmt.Errorf("reconciling last_seq: %w", err)
	}
	return nil
}

// isUniqueViolation checks for a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// isBusy checks for a saturated backing store (locked database or
// exhausted storage). These map to store.ErrBusy so callers can retry.
func isBusy(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED, sqlite3lib.SQLITE_FULL:
			return true
		}
	}
	return false
}

// translateErr maps low-level SQLite failures onto store sentinel errors.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case isUniqueViolation(err):
		return store.ErrAlreadyExists
	case isBusy(err):
		return fmt.Errorf("%w: %w", store.ErrBusy, err)
	default:
		return err
	}
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }
