// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package sqlite_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/llmemo-dev/llmemo/internal/store"
	"github.com/llmemo-dev/llmemo/internal/store/sqlite"
)

// testStore opens a store on a temp SQLite database.
func testStore(t *testing.T, name string) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// newSession builds a minimal valid session for tests.
func newSession(id string, provider store.Provider, url, convID string) *store.Session {
	return &store.Session{
		ID:             id,
		Provider:       provider,
		URL:            url,
		ConversationID: convID,
		Key:            store.SessionKey(provider, url, convID),
		StartedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}
