// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/llmemo-dev/llmemo/internal/store"
)

const sessionColumns = `id, provider, url, conversation_id, session_key, started_at, last_message_at, message_count, title, summary`

// CreateSession inserts a new session record. A duplicate id or duplicate
// session key surfaces as store.ErrConflict.
func (s *Store) CreateSession(ctx context.Context, session *store.Session) error {
	if session.ID == "" || session.Key == "" || !session.Provider.Valid() {
		return fmt.Errorf("session %q: %w", session.ID, store.ErrInvalidInput)
	}

	const q = `INSERT INTO sessions (` + sessionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		session.ID,
		string(session.Provider),
		session.URL,
		session.ConversationID,
		session.Key,
		formatTime(session.StartedAt),
		formatTime(session.LastMessageAt),
		session.MessageCount,
		session.Title,
		session.Summary,
	)
	if isConstraintErr(err) {
		return fmt.Errorf("creating session %s: %w", session.ID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating session %s: %w", session.ID, err)
	}
	return nil
}

// GetSession returns one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	return s.querySession(ctx, q, id)
}

// GetSessionByKey returns the session owning the given grouping key.
func (s *Store) GetSessionByKey(ctx context.Context, key string) (*store.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE session_key = ?`
	return s.querySession(ctx, q, key)
}

func (s *Store) querySession(ctx context.Context, q string, arg any) (*store.Session, error) {
	var (
		sess                 store.Session
		startedAt, lastMsgAt string
	)

	err := s.db.QueryRowContext(ctx, q, arg).Scan(
		&sess.ID,
		&sess.Provider,
		&sess.URL,
		&sess.ConversationID,
		&sess.Key,
		&startedAt,
		&lastMsgAt,
		&sess.MessageCount,
		&sess.Title,
		&sess.Summary,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %v: %w", arg, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %v: %w", arg, err)
	}

	sess.StartedAt = parseTime(startedAt)
	sess.LastMessageAt = parseTime(lastMsgAt)
	return &sess, nil
}

// UpdateSessionMeta sets the externally-settable title and summary fields.
// Identity and aggregate fields are never touched here.
func (s *Store) UpdateSessionMeta(ctx context.Context, id, title, summary string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, summary = ? WHERE id = ?`,
		title, summary, id,
	)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for session %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListSessions returns all sessions, most recently started first.
func (s *Store) ListSessions(ctx context.Context) ([]*store.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]*store.Session, error) {
	var sessions []*store.Session
	for rows.Next() {
		var (
			sess                 store.Session
			startedAt, lastMsgAt string
		)
		if err := rows.Scan(
			&sess.ID,
			&sess.Provider,
			&sess.URL,
			&sess.ConversationID,
			&sess.Key,
			&startedAt,
			&lastMsgAt,
			&sess.MessageCount,
			&sess.Title,
			&sess.Summary,
		); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sess.StartedAt = parseTime(startedAt)
		sess.LastMessageAt = parseTime(lastMsgAt)
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}
