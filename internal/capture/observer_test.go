// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSurface struct {
	scan      Scan
	count     int
	err       error
	snapshots int
	installed atomic.Bool
}

func (f *fakeSurface) Snapshot(context.Context) (Scan, error) {
	if f.err != nil {
		return Scan{}, f.err
	}
	f.snapshots++
	return f.scan, nil
}

func (f *fakeSurface) CandidateCount(context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func (f *fakeSurface) InstallObserver(_ context.Context, notify func()) error {
	f.installed.Store(true)
	return nil
}

func TestRunnerSkipsUnchangedPages(t *testing.T) {
	em := &fakeEmitter{}
	pl := testPipeline(t, em, allEnabled)

	surface := &fakeSurface{
		scan: claudeScan(Candidate{OuterHTML: `<div class="prose"><p>Hi there</p></div>`}),
	}
	surface.count = 1

	r := NewRunner(surface, pl, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Millisecond, time.Minute)

	r.scanOnce(context.Background())
	require.Equal(t, 1, surface.snapshots)
	require.Len(t, em.msgs, 1)

	// Same candidate count: serialization is skipped entirely.
	r.scanOnce(context.Background())
	assert.Equal(t, 1, surface.snapshots)

	// A new turn appears.
	surface.count = 2
	surface.scan.Candidates = append(surface.scan.Candidates,
		Candidate{OuterHTML: `<div data-testid="human-message"><p>Thanks a lot</p></div>`})
	r.scanOnce(context.Background())
	assert.Equal(t, 2, surface.snapshots)
	assert.Len(t, em.msgs, 2)
}

func TestRunnerInstallsObserverAndScans(t *testing.T) {
	em := &fakeEmitter{}
	pl := testPipeline(t, em, allEnabled)

	surface := &fakeSurface{
		scan:  claudeScan(Candidate{OuterHTML: `<div class="prose"><p>Hi there</p></div>`}),
		count: 1,
	}

	r := NewRunner(surface, pl, slog.New(slog.NewTextHandler(io.Discard, nil)), 5*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	assert.Eventually(t, func() bool { return em.count() == 1 },
		time.Second, 5*time.Millisecond)
	assert.True(t, surface.installed.Load())

	cancel()
	<-done
}

func TestRunnerDetachesFromDeadPage(t *testing.T) {
	em := &fakeEmitter{}
	pl := testPipeline(t, em, allEnabled)

	// Every call fails the way a closed tab's DevTools target does.
	surface := &fakeSurface{err: errors.New("target closed")}

	r := NewRunner(surface, pl, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Millisecond, 5*time.Millisecond)

	done := make(chan struct{})
	go func() { r.Run(context.Background()); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner kept polling a dead page")
	}
	assert.Zero(t, em.count())
}

func TestRunnerSurvivesTransientFailures(t *testing.T) {
	em := &fakeEmitter{}
	pl := testPipeline(t, em, allEnabled)

	surface := &fakeSurface{
		scan:  claudeScan(Candidate{OuterHTML: `<div class="prose"><p>Hi there</p></div>`}),
		count: 1,
	}

	r := NewRunner(surface, pl, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Millisecond, time.Minute)
	r.detach = func() { t.Fatal("detached on a recoverable failure") }

	surface.err = errors.New("frame navigating")
	r.scanOnce(context.Background())
	r.scanOnce(context.Background())

	// The page comes back before the failure threshold.
	surface.err = nil
	r.scanOnce(context.Background())
	assert.Len(t, em.msgs, 1)
	assert.Zero(t, r.failures)
}
