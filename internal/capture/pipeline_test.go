// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmemo-dev/llmemo/internal/settings"
	"github.com/llmemo-dev/llmemo/internal/store"
)

type emitted struct {
	provider       store.Provider
	url            string
	conversationID string
	role           store.MessageRole
	content        string
	metadata       map[string]string
}

type fakeEmitter struct {
	mu   sync.Mutex
	msgs []emitted
	fail error
}

func (f *fakeEmitter) Emit(_ context.Context, provider store.Provider, url, conversationID string, role store.MessageRole, content string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.msgs = append(f.msgs, emitted{provider, url, conversationID, role, content, metadata})
	return nil
}

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func allEnabled() settings.Values {
	return settings.Values{RecordingEnabled: true, ProviderClaude: true, ProviderOpenAI: true, ProviderGoogle: true}
}

func testPipeline(t *testing.T, em Emitter, current func() settings.Values) *Pipeline {
	t.Helper()
	p := ProfileForURL("https://claude.ai/chat/abc123")
	require.NotNil(t, p)
	return NewPipeline(p, em, current, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func claudeScan(candidates ...Candidate) Scan {
	return Scan{
		URL:        "https://claude.ai/chat/abc123",
		PageTitle:  "Claude",
		Candidates: candidates,
	}
}

func TestProcessEmitsNewMessages(t *testing.T) {
	em := &fakeEmitter{}
	pl := testPipeline(t, em, allEnabled)

	n := pl.Process(context.Background(), claudeScan(
		Candidate{OuterHTML: `<div data-testid="human-message"><p>Hello</p></div>`},
		Candidate{OuterHTML: `<div class="prose"><p>Hi there</p></div>`},
	))

	require.Equal(t, 2, n)
	require.Len(t, em.msgs, 2)

	assert.Equal(t, store.ProviderClaude, em.msgs[0].provider)
	assert.Equal(t, "abc123", em.msgs[0].conversationID)
	assert.Equal(t, store.MessageRoleUser, em.msgs[0].role)
	assert.Equal(t, "Hello", em.msgs[0].content)
	assert.NotEmpty(t, em.msgs[0].metadata["capturedAt"])
	assert.Equal(t, "Claude", em.msgs[0].metadata["pageTitle"])

	assert.Equal(t, store.MessageRoleAssistant, em.msgs[1].role)
	assert.Equal(t, "Hi there", em.msgs[1].content)
}

func TestProcessDeduplicatesAcrossScans(t *testing.T) {
	em := &fakeEmitter{}
	pl := testPipeline(t, em, allEnabled)

	scan := claudeScan(Candidate{OuterHTML: `<div class="prose"><p>Hi there</p></div>`})
	assert.Equal(t, 1, pl.Process(context.Background(), scan))
	assert.Equal(t, 0, pl.Process(context.Background(), scan))
	assert.Len(t, em.msgs, 1)
}

func TestProcessSkipsEmptyCandidates(t *testing.T) {
	em := &fakeEmitter{}
	pl := testPipeline(t, em, allEnabled)

	n := pl.Process(context.Background(), claudeScan(
		Candidate{OuterHTML: `<div><button>Copy</button></div>`},
		Candidate{OuterHTML: `<div>x</div>`},
	))
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, pl.SeenCount())
}

func TestProcessDisabledLeavesDedupUntouched(t *testing.T) {
	em := &fakeEmitter{}
	enabled := false
	pl := testPipeline(t, em, func() settings.Values {
		v := allEnabled()
		v.RecordingEnabled = enabled
		return v
	})

	scan := claudeScan(Candidate{OuterHTML: `<div class="prose"><p>Hi there</p></div>`})

	assert.Equal(t, 0, pl.Process(context.Background(), scan))
	assert.Equal(t, 0, pl.SeenCount())

	// Once recording resumes the paused message is still captured.
	enabled = true
	assert.Equal(t, 1, pl.Process(context.Background(), scan))
	assert.Len(t, em.msgs, 1)
}

func TestProcessDeliveryFailureConsumesFingerprint(t *testing.T) {
	em := &fakeEmitter{fail: errors.New("store down")}
	pl := testPipeline(t, em, allEnabled)

	scan := claudeScan(Candidate{OuterHTML: `<div class="prose"><p>Hi there</p></div>`})
	assert.Equal(t, 0, pl.Process(context.Background(), scan))
	assert.Equal(t, 1, pl.SeenCount())

	// Delivery is fire-and-forget; the message is not retried.
	em.fail = nil
	assert.Equal(t, 0, pl.Process(context.Background(), scan))
	assert.Empty(t, em.msgs)
}

func TestProcessEmitsWithoutConversationID(t *testing.T) {
	em := &fakeEmitter{}
	pl := testPipeline(t, em, allEnabled)

	scan := Scan{
		URL:        "https://claude.ai/new",
		Candidates: []Candidate{{OuterHTML: `<div class="prose"><p>Hi there</p></div>`}},
	}
	require.Equal(t, 1, pl.Process(context.Background(), scan))

	// The id stays absent; the URL travels separately and keys the session.
	assert.Empty(t, em.msgs[0].conversationID)
	assert.Equal(t, "https://claude.ai/new", em.msgs[0].url)
}

func TestProcessCarriesModelMetadata(t *testing.T) {
	em := &fakeEmitter{}
	p := ProfileForURL("https://chatgpt.com/c/def456")
	require.NotNil(t, p)
	pl := NewPipeline(p, em, allEnabled, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n := pl.Process(context.Background(), Scan{
		URL: "https://chatgpt.com/c/def456",
		Candidates: []Candidate{{
			OuterHTML: `<div data-message-author-role="assistant"><p>Sure thing</p></div>`,
			Model:     "GPT-5",
		}},
	})
	require.Equal(t, 1, n)
	assert.Equal(t, "GPT-5", em.msgs[0].metadata["model"])
	assert.Equal(t, "def456", em.msgs[0].conversationID)
}
