// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmemoerr "github.com/llmemo-dev/llmemo/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llmemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:18990", cfg.Networking.Listen)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Empty(t, cfg.Browser.ControlURL)
	assert.Equal(t, 3*time.Second, cfg.Browser.SweepInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Capture.Debounce)
	assert.Equal(t, 5*time.Second, cfg.Capture.Fallback)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
networking:
  listen: "127.0.0.1:19000"
storage:
  backend: sqlite
  path: /tmp/llmemo.db
browser:
  control_url: "ws://127.0.0.1:9222/devtools/browser/abc"
capture:
  debounce: 250ms
  fallback: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:19000", cfg.Networking.Listen)
	assert.Equal(t, "/tmp/llmemo.db", cfg.Storage.Path)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", cfg.Browser.ControlURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.Debounce)
	assert.Equal(t, 10*time.Second, cfg.Capture.Fallback)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LLMEMO_NETWORKING_LISTEN", "127.0.0.1:20000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:20000", cfg.Networking.Listen)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Networking: NetworkingConfig{Listen: "not-an-address"},
		Storage:    StorageConfig{Backend: "papyrus"},
		Browser:    BrowserConfig{SweepInterval: -time.Second},
		Capture:    CaptureConfig{Debounce: 0, Fallback: 0},
	}

	errs := cfg.Validate()
	require.GreaterOrEqual(t, len(errs), 4)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := &Config{
		Networking: NetworkingConfig{Listen: "127.0.0.1:18990"},
		Storage:    StorageConfig{Backend: "postgres"},
		Browser:    BrowserConfig{SweepInterval: time.Second},
		Capture:    CaptureConfig{Debounce: 500 * time.Millisecond, Fallback: 5 * time.Second},
	}

	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.True(t, llmemoerr.HasCode(errs[0], llmemoerr.CodeStoreBackendUnsupported))
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := &Config{
		Networking: NetworkingConfig{Listen: "127.0.0.1:99999"},
		Storage:    StorageConfig{Backend: "sqlite"},
		Browser:    BrowserConfig{SweepInterval: time.Second},
		Capture:    CaptureConfig{Debounce: 500 * time.Millisecond, Fallback: 5 * time.Second},
	}

	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "port must be between")
}

func TestValidateRejectsFallbackShorterThanDebounce(t *testing.T) {
	cfg := &Config{
		Networking: NetworkingConfig{Listen: "127.0.0.1:18990"},
		Storage:    StorageConfig{Backend: "sqlite"},
		Browser:    BrowserConfig{SweepInterval: time.Second},
		Capture:    CaptureConfig{Debounce: time.Second, Fallback: 500 * time.Millisecond},
	}

	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "fallback")
}
