// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package capture

import (
	"context"
	"time"
)

// Scheduler coalesces mutation bursts into scan calls. Each Notify
// resets a short debounce window; a slower fallback ticker catches
// pages whose mutations never settle or were missed entirely.
type Scheduler struct {
	debounce time.Duration
	fallback time.Duration
	scan     func(ctx context.Context)

	notify chan struct{}
}

// NewScheduler builds a scheduler around a scan callback. Zero
// durations fall back to 500ms debounce and 5s safety interval.
func NewScheduler(debounce, fallback time.Duration, scan func(ctx context.Context)) *Scheduler {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if fallback <= 0 {
		fallback = 5 * time.Second
	}
	return &Scheduler{
		debounce: debounce,
		fallback: fallback,
		scan:     scan,
		notify:   make(chan struct{}, 1),
	}
}

// Notify records page activity. It never blocks; a pending notification
// already covers the burst.
func (s *Scheduler) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run drives scans until the context is canceled. All scans execute on
// this goroutine, so the scan callback needs no locking of its own.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.fallback)
	defer ticker.Stop()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.notify:
			// Restart the window; a burst schedules one scan.
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(s.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			timer = nil
			s.scan(ctx)
			ticker.Reset(s.fallback)
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}
