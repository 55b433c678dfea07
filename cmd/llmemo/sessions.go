// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmemo-dev/llmemo/internal/protocol"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List captured sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDispatcher(cmd, func(ctx context.Context, d *protocol.Dispatcher) error {
				resp := d.Dispatch(ctx, protocol.Request{Op: protocol.OpGetSessions})
				if !resp.Success {
					return fmt.Errorf("%s", resp.Error)
				}
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no sessions captured yet")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPROVIDER\tSTARTED\tMESSAGES\tTITLE")
				for _, s := range resp.Sessions {
					title := s.Title
					if title == "" {
						title = s.ConversationID
					}
					if title == "" {
						title = s.URL
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
						s.ID, s.Provider, s.StartedAt.Local().Format(time.DateTime), s.MessageCount, title)
				}
				return w.Flush()
			})
		},
	}
}

func newMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <session-id>",
		Short: "Print a session's messages in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDispatcher(cmd, func(ctx context.Context, d *protocol.Dispatcher) error {
				raw, err := json.Marshal(protocol.SessionMessagesPayload{SessionID: args[0]})
				if err != nil {
					return err
				}
				resp := d.Dispatch(ctx, protocol.Request{Op: protocol.OpGetSessionMessages, Payload: raw})
				if !resp.Success {
					return fmt.Errorf("%s", resp.Error)
				}

				for _, m := range resp.Messages {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n",
						m.Timestamp.Local().Format(time.DateTime), m.Role, m.Content)
				}
				return nil
			})
		},
	}
}
