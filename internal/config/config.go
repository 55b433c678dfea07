// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	llmemoerr "github.com/llmemo-dev/llmemo/pkg/errors"
)

// Config is the top-level LLMemo configuration.
type Config struct {
	Networking NetworkingConfig `mapstructure:"networking"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Capture    CaptureConfig    `mapstructure:"capture"`
}

// NetworkingConfig controls how the daemon listens for connections.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StorageConfig selects the storage backend and its location.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// BrowserConfig controls how the daemon reaches the browser.
type BrowserConfig struct {
	// ControlURL is the DevTools websocket of a running browser. Empty
	// means launch one locally.
	ControlURL string `mapstructure:"control_url"`
	// SweepInterval is how often new chat tabs are discovered.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// CaptureConfig tunes the scan cadence per page.
type CaptureConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Fallback time.Duration `mapstructure:"fallback"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix LLMEMO_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("networking.listen", "127.0.0.1:18990")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "")
	v.SetDefault("browser.control_url", "")
	v.SetDefault("browser.sweep_interval", "3s")
	v.SetDefault("capture.debounce", "500ms")
	v.SetDefault("capture.fallback", "5s")

	// Environment
	v.SetEnvPrefix("LLMEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, llmemoerr.Errorf(llmemoerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, llmemoerr.Errorf(llmemoerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, llmemoerr.Errorf(llmemoerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateCapture()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, llmemoerr.Errorf(llmemoerr.CodeConfigValidateInvalidValue, "config: networking.listen must not be empty"))
	} else {
		host, portStr, err := net.SplitHostPort(c.Networking.Listen)
		if err != nil {
			errs = append(errs, llmemoerr.Errorf(llmemoerr.CodeConfigValidateInvalidValue,
				"config: networking.listen must be a valid host:port address, got %q: %w",
				c.Networking.Listen, err,
			))
		} else {
			_ = host // host can be empty (e.g., ":8080"), which is valid
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, llmemoerr.Errorf(llmemoerr.CodeConfigValidateInvalidValue,
					"config: networking.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, llmemoerr.Errorf(llmemoerr.CodeConfigValidateInvalidValue,
					"config: networking.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, llmemoerr.Errorf(llmemoerr.CodeStoreBackendUnsupported,
			"config: storage.backend must be one of [sqlite], got %q",
			c.Storage.Backend,
		))
	}

	return errs
}

func (c *Config) validateCapture() []error {
	var errs []error

	if c.Capture.Debounce <= 0 {
		errs = append(errs, llmemoerr.Errorf(llmemoerr.CodeConfigValidateInvalidValue,
			"config: capture.debounce must be greater than 0, got %s",
			c.Capture.Debounce,
		))
	}
	if c.Capture.Fallback <= 0 {
		errs = append(errs, llmemoerr.Errorf(llmemoerr.CodeConfigValidateInvalidValue,
			"config: capture.fallback must be greater than 0, got %s",
			c.Capture.Fallback,
		))
	}
	if c.Capture.Debounce > 0 && c.Capture.Fallback > 0 && c.Capture.Fallback <= c.Capture.Debounce {
		errs = append(errs, llmemoerr.Errorf(llmemoerr.CodeConfigValidateInvalidValue,
			"config: capture.fallback (%s) must be longer than capture.debounce (%s)",
			c.Capture.Fallback, c.Capture.Debounce,
		))
	}
	if c.Browser.SweepInterval <= 0 {
		errs = append(errs, llmemoerr.Errorf(llmemoerr.CodeConfigValidateInvalidValue,
			"config: browser.sweep_interval must be greater than 0, got %s",
			c.Browser.SweepInterval,
		))
	}

	return errs
}
