// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/llmemo-dev/llmemo/internal/store"
)

// ComputeStats aggregates whole-store counters.
func (s *Store) ComputeStats(ctx context.Context) (*store.Stats, error) {
	stats := &store.Stats{ByProvider: make(map[string]int64)}

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&stats.TotalSessions)
	if err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.TotalMessages)
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT provider, COUNT(*) FROM sessions GROUP BY provider`)
	if err != nil {
		return nil, fmt.Errorf("grouping sessions by provider: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var provider string
		var count int64
		if err := rows.Scan(&provider, &count); err != nil {
			return nil, fmt.Errorf("scanning provider histogram row: %w", err)
		}
		stats.ByProvider[provider] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.TotalSessions > 0 {
		var oldest, newest string
		err = s.db.QueryRowContext(ctx,
			`SELECT MIN(started_at), MAX(started_at) FROM sessions`,
		).Scan(&oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("reading session time bounds: %w", err)
		}
		stats.OldestSession = parseTime(oldest)
		stats.NewestSession = parseTime(newest)
	}

	return stats, nil
}

// ExportAll snapshots every session and message together with an export
// timestamp. The snapshot round-trips losslessly with the record shapes.
func (s *Store) ExportAll(ctx context.Context) (*store.Snapshot, error) {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages`)
	if err != nil {
		return nil, fmt.Errorf("exporting messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	return &store.Snapshot{
		ExportedAt: time.Now().UTC(),
		Sessions:   sessions,
		Messages:   messages,
	}, nil
}
