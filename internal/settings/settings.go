// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

// Package settings holds the process-wide capture toggles: the global
// recording kill switch and one flag per provider. Capture contexts load
// the current values once at attach time and react to pushed updates;
// nothing polls.
package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/llmemo-dev/llmemo/internal/store"
)

// Settings keys as persisted and as exchanged over the protocol.
const (
	KeyRecordingEnabled = "recordingEnabled"
	KeyProviderClaude   = "providerClaude"
	KeyProviderOpenAI   = "providerOpenAI"
	KeyProviderGoogle   = "providerGoogle"
)

// Values is one consistent view of all toggles. Everything defaults to
// enabled; a persisted "false" is the only way to turn a flag off.
type Values struct {
	RecordingEnabled bool `json:"recordingEnabled"`
	ProviderClaude   bool `json:"providerClaude"`
	ProviderOpenAI   bool `json:"providerOpenAI"`
	ProviderGoogle   bool `json:"providerGoogle"`
}

// ProviderEnabled reports whether capture is allowed for the provider,
// taking the global kill switch into account.
func (v Values) ProviderEnabled(p store.Provider) bool {
	if !v.RecordingEnabled {
		return false
	}
	switch p {
	case store.ProviderClaude:
		return v.ProviderClaude
	case store.ProviderOpenAI:
		return v.ProviderOpenAI
	case store.ProviderGoogle:
		return v.ProviderGoogle
	}
	return false
}

// Manager owns the current values and fans updates out to subscribers.
type Manager struct {
	store store.Store

	mu   sync.RWMutex
	v    Values
	subs []func(Values)
}

// Load reads persisted settings from the store and returns a Manager
// seeded with them. Missing keys default to enabled.
func Load(ctx context.Context, st store.Store) (*Manager, error) {
	persisted, err := st.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	enabled := func(key string) bool { return persisted[key] != "false" }

	return &Manager{
		store: st,
		v: Values{
			RecordingEnabled: enabled(KeyRecordingEnabled),
			ProviderClaude:   enabled(KeyProviderClaude),
			ProviderOpenAI:   enabled(KeyProviderOpenAI),
			ProviderGoogle:   enabled(KeyProviderGoogle),
		},
	}, nil
}

// Current returns the present settings view.
func (m *Manager) Current() Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v
}

// Subscribe registers a callback invoked with the new values after every
// update. The callback runs synchronously on the updater's goroutine.
func (m *Manager) Subscribe(fn func(Values)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Update persists the changed keys and pushes the new view to all
// subscribers.
func (m *Manager) Update(ctx context.Context, changes map[string]bool) error {
	m.mu.Lock()
	for key, val := range changes {
		switch key {
		case KeyRecordingEnabled:
			m.v.RecordingEnabled = val
		case KeyProviderClaude:
			m.v.ProviderClaude = val
		case KeyProviderOpenAI:
			m.v.ProviderOpenAI = val
		case KeyProviderGoogle:
			m.v.ProviderGoogle = val
		default:
			m.mu.Unlock()
			return fmt.Errorf("unknown settings key %q: %w", key, store.ErrInvalidInput)
		}
	}
	v := m.v
	subs := make([]func(Values), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for key, val := range changes {
		if err := m.store.SaveSetting(ctx, key, fmt.Sprintf("%t", val)); err != nil {
			return err
		}
	}

	for _, fn := range subs {
		fn(v)
	}
	return nil
}
