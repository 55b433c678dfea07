// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/llmemo-dev/llmemo/internal/settings"
	"github.com/llmemo-dev/llmemo/internal/store"
	llmemoerr "github.com/llmemo-dev/llmemo/pkg/errors"
)

// Connect attaches to a running browser over the DevTools protocol.
// With an empty control URL a local Chromium is located and launched
// visibly, since capture observes a human's chat sessions.
func Connect(controlURL string) (*rod.Browser, error) {
	if controlURL == "" {
		path, found := launcher.LookPath()
		if !found {
			return nil, llmemoerr.New(llmemoerr.CodeCaptureAttachFailure, "no chromium-based browser found on this system")
		}
		u, err := launcher.New().Bin(path).Headless(false).Launch()
		if err != nil {
			return nil, llmemoerr.Wrap(err, llmemoerr.CodeCaptureAttachFailure, "launching browser")
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, llmemoerr.Wrap(err, llmemoerr.CodeCaptureAttachFailure, "connecting to browser",
			llmemoerr.FieldURL(controlURL))
	}
	return browser, nil
}

// Observer watches the browser for chat pages and runs a capture
// pipeline per page. Pages come and go; the observer re-sweeps on an
// interval and starts or reaps runners as targets appear and vanish.
type Observer struct {
	browser  *rod.Browser
	emitter  Emitter
	settings *settings.Manager
	log      *slog.Logger

	sweepEvery time.Duration
	debounce   time.Duration
	fallback   time.Duration

	mu      sync.Mutex
	running map[proto.TargetTargetID]context.CancelFunc
}

// ObserverOptions tunes the observer's timing. Zero values use the
// defaults.
type ObserverOptions struct {
	SweepInterval time.Duration
	Debounce      time.Duration
	Fallback      time.Duration
}

func NewObserver(browser *rod.Browser, em Emitter, mgr *settings.Manager, log *slog.Logger, opts ObserverOptions) *Observer {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 3 * time.Second
	}
	return &Observer{
		browser:    browser,
		emitter:    em,
		settings:   mgr,
		log:        log,
		sweepEvery: opts.SweepInterval,
		debounce:   opts.Debounce,
		fallback:   opts.Fallback,
		running:    make(map[proto.TargetTargetID]context.CancelFunc),
	}
}

// Run sweeps for chat pages until the context is canceled, then stops
// every runner.
func (o *Observer) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.sweepEvery)
	defer ticker.Stop()

	o.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			for _, cancel := range o.running {
				cancel()
			}
			o.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			o.sweep(ctx)
		}
	}
}

func (o *Observer) sweep(ctx context.Context) {
	pages, err := o.browser.Pages()
	if err != nil {
		o.log.Warn("listing browser pages failed", "error", err)
		return
	}

	for _, page := range pages {
		info, err := page.Info()
		if err != nil {
			continue
		}
		profile := ProfileForURL(info.URL)
		if profile == nil {
			continue
		}

		o.mu.Lock()
		_, active := o.running[page.TargetID]
		o.mu.Unlock()
		if active {
			continue
		}

		o.startRunner(ctx, page, profile)
	}
}

func (o *Observer) startRunner(ctx context.Context, page *rod.Page, profile *Profile) {
	runCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	o.running[page.TargetID] = cancel
	o.mu.Unlock()

	o.log.Info("attaching to chat page", "provider", profile.Provider, "target", string(page.TargetID))

	surface := &pageSurface{page: page, profile: profile}
	runner := NewRunner(surface, NewPipeline(profile, o.emitter, o.settings.Current, o.log), o.log, o.debounce, o.fallback)

	go func() {
		defer cancel()
		runner.Run(runCtx)

		o.mu.Lock()
		delete(o.running, page.TargetID)
		o.mu.Unlock()
		o.log.Info("detached from chat page", "provider", profile.Provider, "target", string(page.TargetID))
	}()
}

// maxScanFailures is the number of consecutive surface failures after
// which a runner treats its page as gone and detaches.
const maxScanFailures = 3

// Runner drives one page: it installs the mutation hook, then lets the
// scheduler pace snapshot/extract/emit rounds.
type Runner struct {
	surface  Surface
	pipeline *Pipeline
	log      *slog.Logger
	sched    *Scheduler

	lastCount int
	failures  int
	detach    context.CancelFunc
}

func NewRunner(surface Surface, pl *Pipeline, log *slog.Logger, debounce, fallback time.Duration) *Runner {
	r := &Runner{surface: surface, pipeline: pl, log: log, lastCount: -1}
	r.sched = NewScheduler(debounce, fallback, r.scanOnce)
	return r
}

// Run blocks until the context is canceled or the page goes away.
func (r *Runner) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.detach = cancel

	if err := r.surface.InstallObserver(ctx, r.sched.Notify); err != nil {
		// The fallback ticker still scans; mutations just lose their
		// fast path.
		r.log.Warn("mutation hook install failed, relying on interval scans", "error", err)
	}
	r.sched.Notify()
	r.sched.Run(ctx)
}

// scanOnce runs a full round. A candidate count identical to the last
// round's means no turn was added or removed, so the expensive
// serialization is skipped.
func (r *Runner) scanOnce(ctx context.Context) {
	count, err := r.surface.CandidateCount(ctx)
	if err != nil {
		r.pageFailed(err)
		return
	}
	if count == r.lastCount {
		r.failures = 0
		return
	}

	scan, err := r.surface.Snapshot(ctx)
	if err != nil {
		r.pageFailed(err)
		return
	}
	r.failures = 0
	r.lastCount = count

	if n := r.pipeline.Process(ctx, scan); n > 0 {
		r.log.Debug("captured messages", "count", n, "url", scan.URL)
	}
}

// pageFailed tracks consecutive surface failures. A page that cannot be
// reached several rounds in a row is gone (tab closed, target detached);
// the runner stops itself and a reopened tab gets a fresh runner from
// the next sweep.
func (r *Runner) pageFailed(err error) {
	r.failures++
	if r.failures < maxScanFailures {
		r.log.Debug("page scan failed", "error", err, "consecutive", r.failures)
		return
	}
	r.log.Info("page unreachable, detaching", "error", err)
	if r.detach != nil {
		r.detach()
	}
}

// pageSurface implements Surface over a DevTools page session.
type pageSurface struct {
	page    *rod.Page
	profile *Profile
}

func (s *pageSurface) Snapshot(ctx context.Context) (Scan, error) {
	page := s.page.Context(ctx)

	info, err := page.Info()
	if err != nil {
		return Scan{}, llmemoerr.Wrap(err, llmemoerr.CodeCaptureScanFailure, "reading page info")
	}
	scan := Scan{URL: info.URL, PageTitle: info.Title}

	model := s.detectModel(page)

	for _, sel := range s.profile.MessageSelectors {
		els, err := page.Elements(sel)
		if err != nil || len(els) == 0 {
			continue
		}
		for _, el := range els {
			outer, err := el.HTML()
			if err != nil {
				continue
			}
			scan.Candidates = append(scan.Candidates, Candidate{OuterHTML: outer, Model: model})
		}
		return scan, nil
	}

	// No selector matched. Fall back to sizable text blocks when the
	// profile defines a band, which papers over provider markup churn.
	if s.profile.MinTextLen > 0 {
		res, err := page.Eval(`(min, max) => {
			const main = document.querySelector('main') || document.body
			const out = []
			for (const el of main.querySelectorAll('div')) {
				const len = (el.innerText || '').trim().length
				if (len >= min && len <= max && el.children.length < 20) {
					out.push(el.outerHTML)
				}
			}
			return out
		}`, s.profile.MinTextLen, s.profile.MaxTextLen)
		if err != nil {
			return scan, nil
		}
		for _, item := range res.Value.Arr() {
			scan.Candidates = append(scan.Candidates, Candidate{OuterHTML: item.Str(), Model: model})
		}
	}
	return scan, nil
}

func (s *pageSurface) CandidateCount(ctx context.Context) (int, error) {
	sels := make([]string, 0, len(s.profile.MessageSelectors))
	sels = append(sels, s.profile.MessageSelectors...)

	res, err := s.page.Context(ctx).Eval(`(sels) => {
		for (const sel of sels) {
			try {
				const n = document.querySelectorAll(sel).length
				if (n > 0) return n
			} catch (e) {}
		}
		return 0
	}`, sels)
	if err != nil {
		return 0, llmemoerr.Wrap(err, llmemoerr.CodeCaptureScanFailure, "counting message elements")
	}
	return res.Value.Int(), nil
}

func (s *pageSurface) InstallObserver(ctx context.Context, notify func()) error {
	page := s.page.Context(ctx)

	_, err := page.Expose("__llmemoNotify", func(gson.JSON) (interface{}, error) {
		notify()
		return nil, nil
	})
	if err != nil {
		return llmemoerr.Wrap(err, llmemoerr.CodeCaptureScanFailure, "exposing mutation callback")
	}

	_, err = page.Eval(`() => {
		if (window.__llmemoObserved) return
		window.__llmemoObserved = true
		const observer = new MutationObserver(() => window.__llmemoNotify())
		observer.observe(document.body, { childList: true, subtree: true, characterData: true })
	}`)
	if err != nil {
		return llmemoerr.Wrap(err, llmemoerr.CodeCaptureScanFailure, "installing mutation observer")
	}
	return nil
}

// detectModel reads the model name some providers surface in their
// header. Best effort; an empty string means unknown.
func (s *pageSurface) detectModel(page *rod.Page) string {
	if s.profile.Provider != store.ProviderOpenAI {
		return ""
	}
	res, err := page.Eval(`() => {
		const el = document.querySelector('[data-testid="model-switcher-dropdown-button"]')
		return el ? el.textContent.trim() : ''
	}`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}
