// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the llmemo daemon",
		Long:  "Load configuration, attach to the browser, and serve the capture store over HTTP until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	cmd.Flags().String("browser-url", "", "DevTools control URL of a running browser")
	cmd.Flags().Bool("no-capture", false, "serve queries only, without attaching to a browser")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Networking.Listen = listen
	}
	if browserURL, _ := cmd.Flags().GetString("browser-url"); browserURL != "" {
		cfg.Browser.ControlURL = browserURL
	}
	noCapture, _ := cmd.Flags().GetBool("no-capture")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := WireDaemon(ctx, cfg, noCapture)
	if err != nil {
		return err
	}
	defer daemon.Close()

	slog.Info("llmemo started",
		"listen", cfg.Networking.Listen,
		"db", cfg.Storage.Path,
		"capture", daemon.Observer != nil)
	fmt.Fprintf(cmd.OutOrStdout(), "llmemo listening on %s\n", cfg.Networking.Listen)

	return daemon.Start(ctx)
}
