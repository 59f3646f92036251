package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"conveyor/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "submit <parent-task-id>",
		Short: "Submit a batch of phases for a parent task",
		Long: `Submit reads a JSON array of phases from --file (or stdin with --file -)
and enqueues them as one batch. Each element carries a title plus optional
body, references, phase_number, and depends_on_phase fields. When phase
numbers are omitted the phases are numbered in order as a linear chain.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			switch fromFile {
			case "":
				return fmt.Errorf("--file is required")
			case "-":
				raw, err = io.ReadAll(cmd.InOrStdin())
			default:
				raw, err = os.ReadFile(fromFile)
			}
			if err != nil {
				return fmt.Errorf("read batch file: %w", err)
			}

			var batchPhases []api.BatchPhase
			if err := json.Unmarshal(raw, &batchPhases); err != nil {
				return fmt.Errorf("parse batch file: %w", err)
			}

			phases, err := ctx.client().Submit(cmd.Context(), api.BatchRequest{
				ParentTaskID: args[0],
				Phases:       batchPhases,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted %d phases for parent task %s\n", len(phases), args[0])
			table := renderTable(
				[]string{"Queue ID", "Phase", "Title", "Status"},
				buildSubmitRows(phases),
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(out, table)
			return nil
		},
	}

	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "Path to a JSON batch file (use - for stdin)")
	return cmd
}

func buildSubmitRows(phases []api.PhaseView) [][]string {
	rows := make([][]string, 0, len(phases))
	for _, phase := range phases {
		rows = append(rows, []string{
			phase.QueueID,
			fmt.Sprintf("%d", phase.PhaseNumber),
			phase.Title,
			phase.Status,
		})
	}
	return rows
}
