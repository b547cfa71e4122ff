package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"retake/internal/engine"
	"retake/internal/report"
	"retake/internal/runstate"
)

func newSyncCommand(cc *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Execute the reconciliation against the Immich server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cc.cfg
			logger := cc.logger
			simulate := dryRun || cfg.Sync.DryRun

			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			lock := runstate.NewRunLock(cfg.Paths.StateDB)
			if err := lock.Acquire(); err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()

			store, err := runstate.Open(cfg.Paths.StateDB)
			if err != nil {
				return err
			}
			defer store.Close()

			dec, err := decide(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			reporter, err := report.Open(cfg.Paths.Report)
			if err != nil {
				return err
			}
			defer reporter.Close()

			eng := engine.New(dec.client, store, reporter, logger, engine.Options{
				DryRun:        simulate,
				Workers:       cfg.Sync.ExecuteWorkers,
				RetryAttempts: cfg.Sync.RetryAttempts,
				RetryBackoff:  cfg.RetryBackoff(),
			})
			summary, execErr := eng.Execute(cmd.Context(), dec.plan)

			mode := "live"
			if simulate {
				mode = "dry-run"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s (%s): %d done, %d failed, %d skipped, %d need review\n",
				summary.RunID, mode, summary.Done, summary.Failed, summary.Skipped, summary.Review)
			if len(dec.plan.Residual) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d remote assets have no local counterpart and were left untouched\n",
					len(dec.plan.Residual))
			}

			if execErr != nil {
				return execErr
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d operations failed; rerun to retry", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute and report every decision without mutating the server")
	return cmd
}
