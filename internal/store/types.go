// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package store

import "time"

// Provider identifies the chat surface a session was captured from.
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
	ProviderGoogle Provider = "google"
)

// Providers lists every supported provider tag.
func Providers() []Provider {
	return []Provider{ProviderClaude, ProviderOpenAI, ProviderGoogle}
}

// Valid reports whether p is a known provider tag.
func (p Provider) Valid() bool {
	switch p {
	case ProviderClaude, ProviderOpenAI, ProviderGoogle:
		return true
	}
	return false
}

// Session is the durable identity of one logical conversation.
//
// Key is derived once at creation from provider and conversation id (or URL
// when the surface exposes no id) and is unique for the lifetime of the
// store. StartedAt and ID are immutable; MessageCount and LastMessageAt are
// aggregates maintained by AppendMessage.
type Session struct {
	ID             string    `json:"id"`
	Provider       Provider  `json:"provider"`
	URL            string    `json:"url"`
	ConversationID string    `json:"conversationId,omitempty"`
	Key            string    `json:"-"`
	StartedAt      time.Time `json:"startedAt"`
	LastMessageAt  time.Time `json:"lastMessageAt,omitempty"`
	MessageCount   int64     `json:"messageCount"`
	Title          string    `json:"title,omitempty"`
	Summary        string    `json:"summary,omitempty"`
}

// MessageRole identifies the sender of a captured message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Valid reports whether r is a known role.
func (r MessageRole) Valid() bool {
	return r == MessageRoleUser || r == MessageRoleAssistant
}

// Message is one captured conversation turn. Messages are append-only;
// they are never edited or deleted except by a full-store wipe.
type Message struct {
	ID        string            `json:"id"`
	SessionID string            `json:"sessionId"`
	Role      MessageRole       `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Stats summarises the whole store.
type Stats struct {
	TotalSessions int64            `json:"totalSessions"`
	TotalMessages int64            `json:"totalMessages"`
	ByProvider    map[string]int64 `json:"byProvider"`
	OldestSession time.Time        `json:"oldestSession,omitempty"`
	NewestSession time.Time        `json:"newestSession,omitempty"`
}

// Snapshot is the full-store export document. It round-trips losslessly
// with the stored record shapes.
type Snapshot struct {
	ExportedAt time.Time  `json:"exportedAt"`
	Sessions   []*Session `json:"sessions"`
	Messages   []*Message `json:"messages"`
}

// SessionKey builds the grouping key for a conversation: the conversation
// id when the surface exposes one, otherwise the page URL.
func SessionKey(provider Provider, url, conversationID string) string {
	if conversationID != "" {
		return string(provider) + ":" + conversationID
	}
	return string(provider) + ":" + url
}
