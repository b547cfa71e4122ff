package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"retake/internal/runstate"
)

func newStateCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the run-state ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newStateListCommand(cc))
	cmd.AddCommand(newStateClearCommand(cc))
	return cmd
}

func newStateListCommand(cc *commandContext) *cobra.Command {
	var onlyFailed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded asset outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runstate.Open(cc.cfg.Paths.StateDB)
			if err != nil {
				return err
			}
			defer store.Close()

			var outcomes []runstate.Outcome
			if onlyFailed {
				outcomes = append(outcomes, runstate.OutcomeFailed)
			}
			records, err := store.List(cmd.Context(), outcomes...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "no recorded outcomes")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					string(rec.Outcome),
					rec.Operation,
					rec.Identity,
					rec.RunID,
					rec.UpdatedAt.Local().Format(time.RFC3339),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Outcome", "Operation", "Asset", "Run", "Updated"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&onlyFailed, "failed", false, "Show only failed outcomes")
	return cmd
}

func newStateClearCommand(cc *commandContext) *cobra.Command {
	var onlyFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove recorded outcomes so the next run starts fresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := runstate.Open(cc.cfg.Paths.StateDB)
			if err != nil {
				return err
			}
			defer store.Close()

			var removed int64
			if onlyFailed {
				removed, err = store.ClearFailed(cmd.Context())
			} else {
				removed, err = store.Clear(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&onlyFailed, "failed", false, "Remove only failed outcomes")
	return cmd
}
