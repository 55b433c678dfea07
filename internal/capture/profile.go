// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

// Package capture turns live chat pages into store messages. A Profile
// describes how one provider's UI exposes conversation turns; the
// extractor and pipeline are provider-agnostic and driven entirely by
// the profile.
package capture

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/llmemo-dev/llmemo/internal/store"
)

// Profile describes one provider's page structure.
type Profile struct {
	Provider store.Provider

	// Hosts the profile claims. A page is handed to at most one profile.
	Hosts []string

	// MessageSelectors locate candidate message elements, tried in
	// order. The first selector yielding any elements wins.
	MessageSelectors []string

	// UserMarkers identify a candidate as a user turn. Each marker is
	// either a CSS selector matched against the element and its
	// descendants, a "class~=" fragment matched against class names, or
	// an "attr=" exact attribute match.
	UserMarkers []Marker

	// AssistantMarkers identify a candidate as an assistant turn. When
	// neither side matches, the turn defaults to assistant.
	AssistantMarkers []Marker

	// ConversationIDPattern extracts the conversation identifier from
	// the page URL path. Nil means the full URL stands in for the ID.
	ConversationIDPattern *regexp.Regexp

	// MinTextLen and MaxTextLen bound fallback candidates when no
	// selector matches. Zero values disable the fallback.
	MinTextLen int
	MaxTextLen int
}

// Marker is one signal used to classify a candidate's role.
type Marker struct {
	// Selector is matched against the candidate element and its subtree.
	Selector string
	// ClassFragment matches when any class name contains the fragment.
	ClassFragment string
	// Attr / AttrValue match an exact attribute on the candidate or an
	// ancestor already folded into its markup.
	Attr      string
	AttrValue string
}

var (
	claudeConvID = regexp.MustCompile(`/chat/([a-f0-9-]+)`)
	openaiConvID = regexp.MustCompile(`/c/([a-f0-9-]+)`)
	googleConvID = regexp.MustCompile(`/app/([a-f0-9-]+)`)
)

var profiles = []*Profile{
	{
		Provider: store.ProviderClaude,
		Hosts:    []string{"claude.ai"},
		MessageSelectors: []string{
			`[data-testid="conversation-turn"]`,
			`div[class*="ConversationMessage"]`,
			`[class*="message-content"]`,
			`[class*="Message"]`,
			`.prose`,
		},
		UserMarkers: []Marker{
			{Selector: `[data-testid="human-message"]`},
			{Attr: "data-is-human", AttrValue: "true"},
			{ClassFragment: "human"},
		},
		ConversationIDPattern: claudeConvID,
		MinTextLen:            50,
		MaxTextLen:            50000,
	},
	{
		Provider: store.ProviderOpenAI,
		Hosts:    []string{"chatgpt.com", "chat.openai.com"},
		MessageSelectors: []string{
			`[data-message-author-role]`,
			`[data-testid="conversation-turn"]`,
			`div[class*="ConversationItem"]`,
			`.group\/conversation-turn`,
		},
		UserMarkers: []Marker{
			{Attr: "data-message-author-role", AttrValue: "user"},
			{Selector: `[data-testid="user-avatar"]`},
			{ClassFragment: "user-message"},
		},
		AssistantMarkers: []Marker{
			{Attr: "data-message-author-role", AttrValue: "assistant"},
		},
		ConversationIDPattern: openaiConvID,
	},
	{
		Provider: store.ProviderGoogle,
		Hosts:    []string{"gemini.google.com"},
		MessageSelectors: []string{
			`message-content`,
			`[class*="conversation-turn"]`,
			`[class*="query-content"]`,
			`[class*="response-content"]`,
			`[class*="message-wrapper"]`,
		},
		UserMarkers: []Marker{
			{Attr: "data-author", AttrValue: "user"},
			{ClassFragment: "user"},
			{ClassFragment: "query-content"},
		},
		AssistantMarkers: []Marker{
			{Attr: "data-author", AttrValue: "model"},
			{ClassFragment: "model"},
			{ClassFragment: "response-content"},
		},
		ConversationIDPattern: googleConvID,
	},
}

// Profiles returns all built-in provider profiles.
func Profiles() []*Profile {
	out := make([]*Profile, len(profiles))
	copy(out, profiles)
	return out
}

// ProfileForURL returns the profile claiming the URL's host, or nil when
// no provider handles it.
func ProfileForURL(rawURL string) *Profile {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range profiles {
		for _, h := range p.Hosts {
			if host == h {
				return p
			}
		}
	}
	return nil
}

// ConversationID extracts the conversation identifier from a page URL.
// Empty when the pattern does not match; session keying then falls back
// to the URL (store.SessionKey).
func (p *Profile) ConversationID(rawURL string) string {
	if p.ConversationIDPattern == nil {
		return ""
	}
	if m := p.ConversationIDPattern.FindStringSubmatch(rawURL); len(m) == 2 {
		return m[1]
	}
	return ""
}
