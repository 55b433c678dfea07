// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package capture

import "context"

// Surface abstracts one live chat page. The production implementation
// sits on a DevTools session; tests substitute canned snapshots.
type Surface interface {
	// Snapshot serializes the page's current message elements.
	Snapshot(ctx context.Context) (Scan, error)

	// CandidateCount cheaply counts message elements without
	// serializing them, so unchanged pages skip extraction.
	CandidateCount(ctx context.Context) (int, error)

	// InstallObserver wires page mutations to the notify callback.
	InstallObserver(ctx context.Context, notify func()) error
}
