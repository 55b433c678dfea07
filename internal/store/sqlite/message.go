// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llmemo-dev/llmemo/internal/store"
)

const messageColumns = `id, session_id, role, content, timestamp, metadata`

// AppendMessage inserts msg and bumps the owning session's aggregates in
// one transaction. The increment happens SQL-side so concurrent appends to
// the same session never lose updates.
func (s *Store) AppendMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" || msg.SessionID == "" || !msg.Role.Valid() {
		return fmt.Errorf("message %q: %w", msg.ID, store.ErrInvalidInput)
	}

	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling message metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insert = `INSERT INTO messages (` + messageColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, insert,
		msg.ID,
		msg.SessionID,
		string(msg.Role),
		msg.Content,
		formatTime(msg.Timestamp),
		string(metadata),
	)
	if isConstraintErr(err) {
		return fmt.Errorf("appending message %s: %w", msg.ID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("appending message %s: %w", msg.ID, err)
	}

	const bump = `UPDATE sessions
SET message_count = message_count + 1, last_message_at = ?
WHERE id = ?`

	result, err := tx.ExecContext(ctx, bump, formatTime(msg.Timestamp), msg.SessionID)
	if err != nil {
		return fmt.Errorf("updating aggregates for session %s: %w", msg.SessionID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for session %s: %w", msg.SessionID, err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s: %w", msg.SessionID, store.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// ListMessages returns all messages of a session in storage order. Callers
// sort by Timestamp for display.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]*store.Message, error) {
	const q = `SELECT ` + messageColumns + ` FROM messages WHERE session_id = ?`

	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing messages for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	return scanMessages(rows)
}

// SearchMessages matches query as a case-insensitive substring of message
// content. Full scan; data volume is a single user's local history.
func (s *Store) SearchMessages(ctx context.Context, query string) ([]*store.Message, error) {
	// SQLite's LIKE folds case for ASCII only, so non-ASCII queries are
	// folded in Go over a full read instead.
	if !isASCII(query) {
		return s.searchFolded(ctx, query)
	}

	const q = `SELECT ` + messageColumns + ` FROM messages
WHERE content LIKE ? ESCAPE '\'`

	rows, err := s.db.QueryContext(ctx, q, "%"+escapeLike(query)+"%")
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMessages(rows)
}

func (s *Store) searchFolded(ctx context.Context, query string) ([]*store.Message, error) {
	const q = `SELECT ` + messageColumns + ` FROM messages`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	matched := msgs[:0]
	for _, msg := range msgs {
		if strings.Contains(strings.ToLower(msg.Content), needle) {
			matched = append(matched, msg)
		}
	}
	return matched, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}

// escapeLike neutralises LIKE metacharacters so the query matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanMessages(rows *sql.Rows) ([]*store.Message, error) {
	var msgs []*store.Message
	for rows.Next() {
		var (
			msg                 store.Message
			timestamp, metaJSON string
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.Role,
			&msg.Content,
			&timestamp,
			&metaJSON,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.Timestamp = parseTime(timestamp)
		if metaJSON != "" && metaJSON != "{}" && metaJSON != "null" {
			if err := json.Unmarshal([]byte(metaJSON), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshalling message metadata: %w", err)
			}
		}
		msgs = append(msgs, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}
