// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package capture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmemo-dev/llmemo/internal/store"
)

func TestExtractTextPlain(t *testing.T) {
	got := ExtractText(`<div class="prose"><p>Hello there</p></div>`)
	assert.Equal(t, "Hello there", got)
}

func TestExtractTextStripsChrome(t *testing.T) {
	html := `<div>
		<button>Copy</button>
		<svg><path d="m0 0"/></svg>
		<span role="button">Regenerate</span>
		<div aria-label="Copy code">copy</div>
		<mat-icon>thumb_up</mat-icon>
		<p>The actual answer.</p>
	</div>`
	assert.Equal(t, "The actual answer.", ExtractText(html))
}

func TestExtractTextFencesCode(t *testing.T) {
	html := `<div><p>Use this:</p><pre><code class="language-go">fmt.Println("hi")</code></pre></div>`
	got := ExtractText(html)
	assert.Contains(t, got, "Use this:")
	assert.Contains(t, got, "```go\nfmt.Println(\"hi\")\n```")
}

func TestExtractTextFencesCodeWithoutLanguage(t *testing.T) {
	got := ExtractText(`<div><pre><code>ls -la</code></pre></div>`)
	assert.Contains(t, got, "```\nls -la\n```")
}

func TestExtractTextDropsTinyFragments(t *testing.T) {
	assert.Empty(t, ExtractText(`<div>x</div>`))
	assert.Empty(t, ExtractText(`<div>  </div>`))
	assert.Empty(t, ExtractText(``))
}

func TestExtractTextNormalizesWhitespace(t *testing.T) {
	got := ExtractText("<div><p>line   one</p>\n\n\n<p>line two</p></div>")
	assert.Equal(t, "line one\nline two", got)
	assert.False(t, strings.Contains(got, "  "))
}

func TestExtractTextKeepsListStructure(t *testing.T) {
	got := ExtractText(`<div><ul><li>first</li><li>second</li></ul></div>`)
	assert.Equal(t, "first\nsecond", got)
}

func claudeProfile(t *testing.T) *Profile {
	t.Helper()
	p := ProfileForURL("https://claude.ai/chat/abc123")
	require.NotNil(t, p)
	return p
}

func openaiProfile(t *testing.T) *Profile {
	t.Helper()
	p := ProfileForURL("https://chatgpt.com/c/def456")
	require.NotNil(t, p)
	return p
}

func TestClassifyRoleUserMarkers(t *testing.T) {
	p := claudeProfile(t)

	assert.Equal(t, store.MessageRoleUser,
		ClassifyRole(`<div data-testid="human-message"><p>my prompt</p></div>`, p))
	assert.Equal(t, store.MessageRoleUser,
		ClassifyRole(`<div data-is-human="true"><p>my prompt</p></div>`, p))
	assert.Equal(t, store.MessageRoleUser,
		ClassifyRole(`<div class="flex human-turn"><p>my prompt</p></div>`, p))
}

func TestClassifyRoleDefaultsToAssistant(t *testing.T) {
	p := claudeProfile(t)
	assert.Equal(t, store.MessageRoleAssistant,
		ClassifyRole(`<div class="prose"><p>an answer</p></div>`, p))
}

func TestClassifyRoleAuthorAttribute(t *testing.T) {
	p := openaiProfile(t)

	assert.Equal(t, store.MessageRoleUser,
		ClassifyRole(`<div data-message-author-role="user"><p>question</p></div>`, p))
	assert.Equal(t, store.MessageRoleAssistant,
		ClassifyRole(`<div data-message-author-role="assistant"><p>answer</p></div>`, p))
}

func TestClassifyRoleMarkerOnDescendant(t *testing.T) {
	p := openaiProfile(t)
	html := `<div class="turn"><div data-testid="user-avatar"></div><p>question</p></div>`
	assert.Equal(t, store.MessageRoleUser, ClassifyRole(html, p))
}
