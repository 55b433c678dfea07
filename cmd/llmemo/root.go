// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/llmemo-dev/llmemo/internal/config"
	"github.com/llmemo-dev/llmemo/internal/protocol"
	"github.com/llmemo-dev/llmemo/internal/session"
	"github.com/llmemo-dev/llmemo/internal/settings"
	"github.com/llmemo-dev/llmemo/internal/store"
	"github.com/llmemo-dev/llmemo/internal/store/sqlite"
	llmemoerr "github.com/llmemo-dev/llmemo/pkg/errors"
)

// NewRootCmd creates the root llmemo command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "llmemo",
		Short:         "llmemo — passive chat capture and memory",
		Long:          "llmemo watches AI chat pages in your browser, captures the conversation turns, and keeps them in a local, queryable store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags shared by every subcommand.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newStartCmd(),
		newSessionsCmd(),
		newMessagesCmd(),
		newSearchCmd(),
		newStatsCmd(),
		newExportCmd(),
		newWipeCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig resolves the config file (flag, then standard locations),
// loads it, and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = discoverConfig()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Storage.Path = filepath.Join(dataDir, "llmemo.db")
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultDBPath()
	}

	setupLogging(cmd)
	return cfg, nil
}

// discoverConfig looks for llmemo.yaml in the standard locations.
// Returns "" when none exists; defaults and env vars still apply.
func discoverConfig() string {
	candidates := []string{"llmemo.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "llmemo", "llmemo.yaml"))
	}
	candidates = append(candidates, "/etc/llmemo/llmemo.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "llmemo.db"
	}
	return filepath.Join(home, ".local", "share", "llmemo", "llmemo.db")
}

func setupLogging(cmd *cobra.Command) {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
}

// openStore opens the configured sqlite store, creating its directory
// if needed.
func openStore(cfg *config.Config) (store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return nil, llmemoerr.Errorf(llmemoerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}
	return sqlite.New(cfg.Storage.Path)
}

// withDispatcher wires the store-backed subsystems for a one-shot query
// command, runs fn, then closes the store.
func withDispatcher(cmd *cobra.Command, fn func(ctx context.Context, d *protocol.Dispatcher) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	mgr, err := settings.Load(ctx, st)
	if err != nil {
		return err
	}

	d := protocol.NewDispatcher(st, session.NewResolver(st), mgr, slog.Default())
	return fn(ctx, d)
}
