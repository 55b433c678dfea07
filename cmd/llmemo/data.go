// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmemo-dev/llmemo/internal/export"
	"github.com/llmemo-dev/llmemo/internal/protocol"
	llmemoerr "github.com/llmemo-dev/llmemo/pkg/errors"
)

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search message contents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDispatcher(cmd, func(ctx context.Context, d *protocol.Dispatcher) error {
				raw, err := json.Marshal(protocol.SearchPayload{Query: strings.Join(args, " ")})
				if err != nil {
					return err
				}
				resp := d.Dispatch(ctx, protocol.Request{Op: protocol.OpSearch, Payload: raw})
				if !resp.Success {
					return fmt.Errorf("%s", resp.Error)
				}
				if len(resp.Results) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no matches")
					return nil
				}
				for _, m := range resp.Results {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s (%s): %s\n",
						m.Timestamp.Local().Format(time.DateTime), m.Role, m.SessionID, firstLine(m.Content))
				}
				return nil
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDispatcher(cmd, func(ctx context.Context, d *protocol.Dispatcher) error {
				resp := d.Dispatch(ctx, protocol.Request{Op: protocol.OpGetStats})
				if !resp.Success {
					return fmt.Errorf("%s", resp.Error)
				}
				s := resp.Stats

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "sessions: %d\n", s.TotalSessions)
				fmt.Fprintf(out, "messages: %d\n", s.TotalMessages)

				providers := make([]string, 0, len(s.ByProvider))
				for p := range s.ByProvider {
					providers = append(providers, p)
				}
				sort.Strings(providers)
				for _, p := range providers {
					fmt.Fprintf(out, "  %s: %d\n", p, s.ByProvider[p])
				}

				if !s.OldestSession.IsZero() {
					fmt.Fprintf(out, "oldest: %s\n", s.OldestSession.Local().Format(time.DateTime))
					fmt.Fprintf(out, "newest: %s\n", s.NewestSession.Local().Format(time.DateTime))
				}
				return nil
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all captured data to a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			dir, _ := cmd.Flags().GetString("out")
			path, err := export.WriteFile(cmd.Context(), st, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", path)
			return nil
		},
	}
	cmd.Flags().String("out", ".", "directory to write the export into")
	return cmd
}

func newWipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete all captured sessions, messages, and settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			confirmed, _ := cmd.Flags().GetBool("yes")
			if !confirmed {
				return llmemoerr.New(llmemoerr.CodeCLIInputInvalid,
					"wipe deletes all captured data; re-run with --yes to confirm")
			}
			return withDispatcher(cmd, func(ctx context.Context, d *protocol.Dispatcher) error {
				resp := d.Dispatch(ctx, protocol.Request{Op: protocol.OpWipe})
				if !resp.Success {
					return fmt.Errorf("%s", resp.Error)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "all captured data deleted")
				return nil
			})
		},
	}
	cmd.Flags().Bool("yes", false, "confirm deletion")
	return cmd
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
