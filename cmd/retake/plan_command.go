package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"retake/internal/plan"
)

func newPlanCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Preview the reconciliation without touching the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			dec, err := decide(cmd.Context(), cc.cfg, cc.logger)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(dec.plan.Groups))
			for _, op := range dec.plan.Operations() {
				rows = append(rows, planRow(op))
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "nothing to do")
				return nil
			}

			fmt.Fprintln(out, renderTable(
				[]string{"Operation", "Asset", "Size", "Detail"},
				rows,
				2, // size
			))

			summary := dec.plan.Summary()
			fmt.Fprintf(out, "%d upload, %d replace, %d stack, %d skip, %d review; %d residual remote assets\n",
				summary[plan.KindUpload],
				summary[plan.KindReplace],
				summary[plan.KindStack],
				summary[plan.KindSkip],
				summary[plan.KindReview],
				len(dec.plan.Residual))
			return nil
		},
	}
}

func planRow(op plan.Operation) []string {
	if op.Kind == plan.KindStack {
		return []string{string(op.Kind), op.Stack.BaseKey, "", op.Reason}
	}
	size := ""
	if op.Local.Size > 0 {
		size = humanize.Bytes(uint64(op.Local.Size))
	}
	return []string{string(op.Kind), op.Local.Path, size, op.Reason}
}
