package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			daemonKind := statusOK
			daemonMsg := fmt.Sprintf("pid %d", status.PID)
			if !status.Running {
				daemonKind = statusError
				daemonMsg = "not running"
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, daemonMsg, colorize))

			pausedKind := statusOK
			pausedMsg := "dispatching"
			if status.Paused {
				pausedKind = statusWarn
				pausedMsg = "paused"
			}
			fmt.Fprintln(out, renderStatusLine("Queue", pausedKind, pausedMsg, colorize))

			coordKind := statusOK
			coordMsg := "idle"
			if status.LastTick != nil {
				coordMsg = fmt.Sprintf("last poll %s ago", time.Since(*status.LastTick).Round(time.Second))
			}
			if status.LastError != "" {
				coordKind = statusWarn
				coordMsg = status.LastError
			}
			fmt.Fprintln(out, renderStatusLine("Coordinator", coordKind, coordMsg, colorize))

			healthKind := statusOK
			healthMsg := fmt.Sprintf("%d phases (%d running, %d ready, %d queued)",
				status.Health.Total, status.Health.Running, status.Health.Ready, status.Health.Queued)
			if status.Health.Failed > 0 || status.Health.Blocked > 0 {
				healthKind = statusWarn
				healthMsg = fmt.Sprintf("%s, %d failed, %d blocked",
					healthMsg, status.Health.Failed, status.Health.Blocked)
			}
			fmt.Fprintln(out, renderStatusLine("Health", healthKind, healthMsg, colorize))

			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.QueueDBPath, colorize))
			return nil
		},
	}
}
