package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"conveyor/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the phase queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			phases, err := ctx.client().QueueList(cmd.Context(), listStatuses)
			if err != nil {
				return err
			}
			if len(phases) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			table := renderTable(
				[]string{"Queue ID", "Parent Task", "Phase", "Title", "Status", "Updated"},
				buildPhaseRows(phases),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <parent-task-id>",
		Short: "Show all phases of a parent task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phases, err := ctx.client().QueueByParent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(phases) == 0 {
				fmt.Fprintf(out, "No phases found for parent task %s\n", args[0])
				return nil
			}
			for _, phase := range phases {
				fmt.Fprintf(out, "Phase %d: %s\n", phase.PhaseNumber, phase.Title)
				fmt.Fprintf(out, "  Queue ID: %s\n", phase.QueueID)
				fmt.Fprintf(out, "  Status:   %s\n", phase.Status)
				if phase.ExternalJobID != "" {
					fmt.Fprintf(out, "  Job ID:   %s\n", phase.ExternalJobID)
				}
				if phase.DependsOnPhase != nil {
					fmt.Fprintf(out, "  Depends:  phase %d\n", *phase.DependsOnPhase)
				}
				if phase.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:    %s\n", phase.ErrorMessage)
				}
				fmt.Fprintf(out, "  Updated:  %s\n", phase.UpdatedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <queue-id>",
		Short: "Remove a phase that has not started running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed phase %s\n", args[0])
			return nil
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <queue-id>",
		Short: "Retry a failed phase and re-arm its blocked dependents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := ctx.client().Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Phase %d of %s is %s\n", phase.PhaseNumber, phase.ParentTaskID, phase.Status)
			return nil
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			rows := buildHealthRows(status.Health)
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			table := renderTable(
				[]string{"Status", "Count"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func buildPhaseRows(phases []api.PhaseView) [][]string {
	rows := make([][]string, 0, len(phases))
	for _, phase := range phases {
		rows = append(rows, []string{
			phase.QueueID,
			phase.ParentTaskID,
			strconv.Itoa(phase.PhaseNumber),
			phase.Title,
			phase.Status,
			phase.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func buildHealthRows(health api.HealthView) [][]string {
	if health.Total == 0 {
		return nil
	}
	entries := []struct {
		label string
		count int
	}{
		{"queued", health.Queued},
		{"ready", health.Ready},
		{"running", health.Running},
		{"completed", health.Completed},
		{"blocked", health.Blocked},
		{"failed", health.Failed},
	}
	rows := make([][]string, 0, len(entries)+1)
	for _, entry := range entries {
		if entry.count == 0 {
			continue
		}
		rows = append(rows, []string{entry.label, strconv.Itoa(entry.count)})
	}
	rows = append(rows, []string{"total", strconv.Itoa(health.Total)})
	return rows
}
