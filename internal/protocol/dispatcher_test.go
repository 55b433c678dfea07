// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package protocol

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmemo-dev/llmemo/internal/session"
	"github.com/llmemo-dev/llmemo/internal/settings"
	"github.com/llmemo-dev/llmemo/internal/store"
	"github.com/llmemo-dev/llmemo/internal/store/sqlite"
)

func testDispatcher(t *testing.T) (*Dispatcher, store.Store) {
	t.Helper()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "protocol.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mgr, err := settings.Load(context.Background(), st)
	require.NoError(t, err)

	d := NewDispatcher(st, session.NewResolver(st), mgr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return d, st
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func newMessageReq(t *testing.T, role, content string) Request {
	return Request{Op: OpNewMessage, Payload: payload(t, NewMessagePayload{
		Provider:       "claude",
		URL:            "https://claude.ai/chat/abc123",
		ConversationID: "abc123",
		Role:           role,
		Content:        content,
	})}
}

func TestDispatchUnknownOp(t *testing.T) {
	d, _ := testDispatcher(t)

	resp := d.Dispatch(context.Background(), Request{Op: "OPEN_POD_BAY_DOORS"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown operation")
}

func TestDispatchNewMessage(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	resp := d.Dispatch(ctx, newMessageReq(t, "user", "Hello"))
	require.True(t, resp.Success, resp.Error)
	require.NotNil(t, resp.Message)
	require.NotNil(t, resp.Session)

	assert.Equal(t, "Hello", resp.Message.Content)
	assert.Equal(t, store.MessageRoleUser, resp.Message.Role)
	assert.Equal(t, resp.Session.ID, resp.Message.SessionID)
	assert.Equal(t, int64(1), resp.Session.MessageCount)
	assert.Equal(t, "abc123", resp.Session.ConversationID)
}

func TestDispatchNewMessageRejectsBadPayload(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	resp := d.Dispatch(ctx, Request{Op: OpNewMessage, Payload: json.RawMessage(`{`)})
	assert.False(t, resp.Success)

	resp = d.Dispatch(ctx, Request{Op: OpNewMessage, Payload: payload(t, NewMessagePayload{
		Provider: "claude", URL: "https://claude.ai/chat/x", Role: "user", Content: "   ",
	})})
	assert.False(t, resp.Success)

	resp = d.Dispatch(ctx, Request{Op: OpNewMessage, Payload: payload(t, NewMessagePayload{
		Provider: "claude", URL: "https://claude.ai/chat/x", Role: "narrator", Content: "hi",
	})})
	assert.False(t, resp.Success)

	resp = d.Dispatch(ctx, Request{Op: OpNewMessage, Payload: payload(t, NewMessagePayload{
		Provider: "yahoo", URL: "https://example.com", Role: "user", Content: "hi",
	})})
	assert.False(t, resp.Success)
}

// Exercises the full conversation flow: two captured turns land in one
// session, reads come back ordered, and search matches case-insensitively.
func TestDispatchConversationFlow(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	first := d.Dispatch(ctx, newMessageReq(t, "user", "Hello"))
	require.True(t, first.Success, first.Error)
	second := d.Dispatch(ctx, newMessageReq(t, "assistant", "Hi there"))
	require.True(t, second.Success, second.Error)

	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, int64(2), second.Session.MessageCount)

	sessions := d.Dispatch(ctx, Request{Op: OpGetSessions})
	require.True(t, sessions.Success)
	require.Len(t, sessions.Sessions, 1)

	msgs := d.Dispatch(ctx, Request{Op: OpGetSessionMessages,
		Payload: payload(t, SessionMessagesPayload{SessionID: first.Session.ID})})
	require.True(t, msgs.Success)
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, "Hello", msgs.Messages[0].Content)
	assert.Equal(t, "Hi there", msgs.Messages[1].Content)

	found := d.Dispatch(ctx, Request{Op: OpSearch, Payload: payload(t, SearchPayload{Query: "hi"})})
	require.True(t, found.Success)
	require.Len(t, found.Results, 1)
	assert.Equal(t, store.MessageRoleAssistant, found.Results[0].Role)
	assert.Equal(t, "Hi there", found.Results[0].Content)

	stats := d.Dispatch(ctx, Request{Op: OpGetStats})
	require.True(t, stats.Success)
	assert.Equal(t, int64(1), stats.Stats.TotalSessions)
	assert.Equal(t, int64(2), stats.Stats.TotalMessages)
	assert.Equal(t, int64(1), stats.Stats.ByProvider["claude"])
}

func TestDispatchGetSessionMessagesValidation(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	resp := d.Dispatch(ctx, Request{Op: OpGetSessionMessages,
		Payload: payload(t, SessionMessagesPayload{})})
	assert.False(t, resp.Success)

	resp = d.Dispatch(ctx, Request{Op: OpGetSessionMessages,
		Payload: payload(t, SessionMessagesPayload{SessionID: "missing"})})
	assert.False(t, resp.Success)
}

func TestDispatchSearchRequiresQuery(t *testing.T) {
	d, _ := testDispatcher(t)

	resp := d.Dispatch(context.Background(), Request{Op: OpSearch,
		Payload: payload(t, SearchPayload{Query: "  "})})
	assert.False(t, resp.Success)
}

func TestDispatchSearchEmptyResultIsSuccess(t *testing.T) {
	d, _ := testDispatcher(t)

	resp := d.Dispatch(context.Background(), Request{Op: OpSearch,
		Payload: payload(t, SearchPayload{Query: "nothing matches this"})})
	require.True(t, resp.Success)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestDispatchExport(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	require.True(t, d.Dispatch(ctx, newMessageReq(t, "user", "keep this")).Success)

	resp := d.Dispatch(ctx, Request{Op: OpExport})
	require.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Len(t, resp.Data.Sessions, 1)
	assert.Len(t, resp.Data.Messages, 1)
	assert.Equal(t, "llmemo-export-"+time.Now().UTC().Format("2006-01-02")+".json", resp.Filename)
}

func TestDispatchSettingsRoundTrip(t *testing.T) {
	d, _ := testDispatcher(t)
	ctx := context.Background()

	current := d.Dispatch(ctx, Request{Op: OpGetSettings})
	require.True(t, current.Success)
	assert.True(t, current.Settings.RecordingEnabled)

	updated := d.Dispatch(ctx, Request{Op: OpSetSettings,
		Payload: payload(t, SetSettingsPayload{settings.KeyRecordingEnabled: false})})
	require.True(t, updated.Success)
	assert.False(t, updated.Settings.RecordingEnabled)

	bad := d.Dispatch(ctx, Request{Op: OpSetSettings,
		Payload: payload(t, SetSettingsPayload{"darkMode": true})})
	assert.False(t, bad.Success)
}

func TestDispatchWipe(t *testing.T) {
	d, st := testDispatcher(t)
	ctx := context.Background()

	before := d.Dispatch(ctx, newMessageReq(t, "user", "ephemeral"))
	require.True(t, before.Success)

	resp := d.Dispatch(ctx, Request{Op: OpWipe})
	require.True(t, resp.Success)

	stats, err := st.ComputeStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSessions)
	assert.Zero(t, stats.TotalMessages)

	// A new message after the wipe starts a fresh session.
	after := d.Dispatch(ctx, newMessageReq(t, "user", "fresh start"))
	require.True(t, after.Success, after.Error)
	assert.NotEqual(t, before.Session.ID, after.Session.ID)
}
