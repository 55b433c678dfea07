// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package store

import "context"

// Store is the durable home of captured sessions and messages.
//
// Implementations must make AppendMessage an atomic unit: the message
// insert and the owning session's aggregate bump either both apply or
// neither does, and the aggregate update is a read-modify-write that is
// safe under concurrent appends to the same session.
type Store interface {
	// CreateSession inserts a new session. Returns ErrConflict when the id
	// or the session key already exists.
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// GetSessionByKey looks a session up by its (provider, conversation-or-url)
	// grouping key. Returns ErrNotFound when no session owns the key.
	GetSessionByKey(ctx context.Context, key string) (*Session, error)
	// UpdateSessionMeta sets the externally-settable title and summary.
	UpdateSessionMeta(ctx context.Context, id, title, summary string) error
	// ListSessions returns all sessions ordered by StartedAt descending.
	ListSessions(ctx context.Context) ([]*Session, error)

	// AppendMessage inserts msg and bumps the owning session's
	// MessageCount and LastMessageAt in the same transaction.
	AppendMessage(ctx context.Context, msg *Message) error
	// ListMessages returns all messages of a session. The store imposes no
	// ordering; callers sort by Timestamp for display.
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)
	// SearchMessages performs a case-insensitive substring match of query
	// against every message's content.
	SearchMessages(ctx context.Context, query string) ([]*Message, error)

	ComputeStats(ctx context.Context) (*Stats, error)
	// ExportAll returns the full store snapshot with an export timestamp.
	ExportAll(ctx context.Context) (*Snapshot, error)
	// WipeAll irreversibly deletes all sessions, messages and persisted
	// settings. Idempotent.
	WipeAll(ctx context.Context) error

	// LoadSettings returns the persisted settings key-value map.
	LoadSettings(ctx context.Context) (map[string]string, error)
	// SaveSetting persists one settings key.
	SaveSetting(ctx context.Context, key, value string) error

	Close() error
}
