// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/llmemo-dev/llmemo/internal/settings"
	"github.com/llmemo-dev/llmemo/internal/store"
	llmemoerr "github.com/llmemo-dev/llmemo/pkg/errors"
)

// Candidate is one raw message element pulled from a page, before
// extraction and dedup.
type Candidate struct {
	OuterHTML string
	// Model is the model name detected on the page, when the provider
	// surfaces one.
	Model string
}

// Scan is one pass over a page's message elements.
type Scan struct {
	URL        string
	PageTitle  string
	Candidates []Candidate
}

// Emitter receives captured messages. Delivery is fire-and-forget from
// the pipeline's point of view: a failed emit does not resurrect the
// message's dedup entry.
type Emitter interface {
	Emit(ctx context.Context, provider store.Provider, url, conversationID string, role store.MessageRole, content string, metadata map[string]string) error
}

// Pipeline holds one page's capture state: profile, dedup set, and the
// emitter messages flow into. State is context-local; a new page (or a
// reload) gets a fresh Pipeline and re-emits nothing persisted but
// everything locally forgotten.
type Pipeline struct {
	profile  *Profile
	emitter  Emitter
	settings func() settings.Values
	log      *slog.Logger
	now      func() time.Time

	seen map[string]struct{}
}

// NewPipeline builds a pipeline for one page. current supplies the live
// settings view at scan time.
func NewPipeline(p *Profile, em Emitter, current func() settings.Values, log *slog.Logger) *Pipeline {
	return &Pipeline{
		profile:  p,
		emitter:  em,
		settings: current,
		log:      log,
		now:      time.Now,
		seen:     make(map[string]struct{}),
	}
}

// Process runs one scan through extraction, classification, dedup, and
// emission. It returns the number of newly emitted messages. When
// capture is disabled for the provider the scan is a no-op and the
// dedup set is left untouched, so messages produced while paused are
// captured once recording resumes.
func (pl *Pipeline) Process(ctx context.Context, scan Scan) int {
	if !pl.settings().ProviderEnabled(pl.profile.Provider) {
		return 0
	}

	convID := pl.profile.ConversationID(scan.URL)
	emitted := 0
	for _, cand := range scan.Candidates {
		content := ExtractText(cand.OuterHTML)
		if content == "" {
			continue
		}
		role := ClassifyRole(cand.OuterHTML, pl.profile)

		fp := Fingerprint(string(role), content)
		if _, ok := pl.seen[fp]; ok {
			continue
		}
		// Mark before emitting. A lost delivery is not retried; the
		// alternative is re-emitting the same turn on every scan.
		pl.seen[fp] = struct{}{}

		meta := map[string]string{
			"capturedAt": pl.now().UTC().Format(time.RFC3339Nano),
		}
		if scan.PageTitle != "" {
			meta["pageTitle"] = scan.PageTitle
		}
		if cand.Model != "" {
			meta["model"] = cand.Model
		}

		if err := pl.emitter.Emit(ctx, pl.profile.Provider, scan.URL, convID, role, content, meta); err != nil {
			err = llmemoerr.Wrap(err, llmemoerr.CodeCaptureDeliveryFailed, "delivering captured message",
				llmemoerr.FieldURL(scan.URL))
			pl.log.Warn("message delivery failed",
				"provider", pl.profile.Provider,
				"error", err)
			continue
		}
		emitted++
	}
	return emitted
}

// SeenCount returns the size of the dedup set, used by tests and the
// scan scheduler's change detection.
func (pl *Pipeline) SeenCount() int {
	return len(pl.seen)
}
