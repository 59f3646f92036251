package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause dispatch of ready phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.client().SetPaused(cmd.Context(), true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queue paused: %s\n", yesNo(cfg.Paused))
			fmt.Fprintln(cmd.OutOrStdout(), "Running phases continue; completed phases still promote their successors.")
			return nil
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume dispatch of ready phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.client().SetPaused(cmd.Context(), false)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queue paused: %s\n", yesNo(cfg.Paused))
			return nil
		},
	}
}
