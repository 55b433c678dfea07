// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

// Package protocol defines the operation envelope clients use to talk
// to the daemon. Every request names an op and carries an op-specific
// payload; every response reports success explicitly, so transport
// errors and domain errors stay distinguishable.
package protocol

import (
	"encoding/json"

	"github.com/llmemo-dev/llmemo/internal/settings"
	"github.com/llmemo-dev/llmemo/internal/store"
)

// Operation names.
const (
	OpNewMessage         = "NEW_MESSAGE"
	OpGetSessions        = "GET_SESSIONS"
	OpGetSessionMessages = "GET_SESSION_MESSAGES"
	OpSearch             = "SEARCH"
	OpGetStats           = "GET_STATS"
	OpExport             = "EXPORT"
	OpGetSettings        = "GET_SETTINGS"
	OpSetSettings        = "SET_SETTINGS"
	OpWipe               = "WIPE"
)

// Request is one protocol envelope.
type Request struct {
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response carries either a failure message or the op's result fields.
// Result fields are top-level so clients destructure them directly.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Message  *store.Message   `json:"message,omitempty"`
	Session  *store.Session   `json:"session,omitempty"`
	Sessions []*store.Session `json:"sessions,omitempty"`
	Messages []*store.Message `json:"messages,omitempty"`
	Results  []*store.Message `json:"results,omitempty"`
	Stats    *store.Stats     `json:"stats,omitempty"`
	Data     *store.Snapshot  `json:"data,omitempty"`
	Filename string           `json:"filename,omitempty"`
	Settings *settings.Values `json:"settings,omitempty"`
}

// NewMessagePayload is the body of a NEW_MESSAGE request.
type NewMessagePayload struct {
	Provider       string            `json:"provider"`
	URL            string            `json:"url"`
	ConversationID string            `json:"conversationId,omitempty"`
	Role           string            `json:"role"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SessionMessagesPayload selects the session for GET_SESSION_MESSAGES.
type SessionMessagesPayload struct {
	SessionID string `json:"sessionId"`
}

// SearchPayload is the body of a SEARCH request.
type SearchPayload struct {
	Query string `json:"query"`
}

// SetSettingsPayload toggles capture flags by settings key.
type SetSettingsPayload map[string]bool

func ok(r Response) Response {
	r.Success = true
	return r
}

func fail(msg string) Response {
	return Response{Success: false, Error: msg}
}
