// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/llmemo-dev/llmemo/internal/capture"
	"github.com/llmemo-dev/llmemo/internal/config"
	"github.com/llmemo-dev/llmemo/internal/protocol"
	"github.com/llmemo-dev/llmemo/internal/server"
	"github.com/llmemo-dev/llmemo/internal/session"
	"github.com/llmemo-dev/llmemo/internal/settings"
	"github.com/llmemo-dev/llmemo/internal/store"
	llmemoerr "github.com/llmemo-dev/llmemo/pkg/errors"
)

// Daemon holds all wired subsystems and manages their lifecycle.
type Daemon struct {
	Server     *server.Server
	Store      store.Store
	Dispatcher *protocol.Dispatcher
	Settings   *settings.Manager
	Observer   *capture.Observer
}

// WireDaemon creates all subsystems and wires them together. When
// noCapture is set (or the browser cannot be reached) the daemon still
// serves queries; only live capture is missing.
func WireDaemon(ctx context.Context, cfg *config.Config, noCapture bool) (*Daemon, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	mgr, err := settings.Load(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, llmemoerr.Wrap(err, llmemoerr.CodeCLISetupFailure, "loading settings")
	}

	dispatcher := protocol.NewDispatcher(st, session.NewResolver(st), mgr, slog.Default())

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: cfg.Networking.CORSOrigins,
	}, st, dispatcher)
	if err != nil {
		_ = st.Close()
		return nil, llmemoerr.Wrap(err, llmemoerr.CodeCLISetupFailure, "creating server")
	}

	d := &Daemon{
		Server:     srv,
		Store:      st,
		Dispatcher: dispatcher,
		Settings:   mgr,
	}

	if !noCapture {
		browser, err := capture.Connect(cfg.Browser.ControlURL)
		if err != nil {
			slog.Warn("browser attach failed, capture disabled for this run", "error", err)
		} else {
			d.Observer = capture.NewObserver(browser, dispatcher, mgr, slog.Default(), capture.ObserverOptions{
				SweepInterval: cfg.Browser.SweepInterval,
				Debounce:      cfg.Capture.Debounce,
				Fallback:      cfg.Capture.Fallback,
			})
		}
	}

	return d, nil
}

// Start runs the HTTP server and the capture observer until the context
// is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.Server.Start(ctx)
	})
	if d.Observer != nil {
		g.Go(func() error {
			err := d.Observer.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// Close releases all resources held by the daemon.
func (d *Daemon) Close() error {
	return d.Store.Close()
}
