package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var since uint64

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream phase transition events",
		RunE: func(cmd *cobra.Command, args []string) error {
			watchCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client := ctx.client()
			out := cmd.OutOrStdout()
			cursor := since
			for {
				events, next, err := client.Events(watchCtx, cursor, true)
				if err != nil {
					if errors.Is(err, context.Canceled) || watchCtx.Err() != nil {
						return nil
					}
					return err
				}
				for _, evt := range events {
					fmt.Fprintf(out, "%s  %s  phase %d of %s -> %s\n",
						evt.Timestamp.Local().Format(time.RFC3339),
						evt.QueueID,
						evt.PhaseNumber,
						evt.ParentTaskID,
						evt.Status,
					)
				}
				cursor = next
			}
		},
	}

	cmd.Flags().Uint64Var(&since, "since", 0, "Start from this event sequence number")
	return cmd
}
