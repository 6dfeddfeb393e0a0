package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/import-engine/internal/pipeline"
	"github.com/sells-group/import-engine/internal/store"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Process every non-terminal job to completion",
	Long:  "Finds all jobs still in a live stage and drives each to a terminal stage, running up to work.max_concurrent_jobs jobs in parallel.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		jobs, err := st.ListJobs(ctx, store.JobFilter{})
		if err != nil {
			return err
		}

		var pending []string
		for _, job := range jobs {
			if !job.Stage.Terminal() {
				pending = append(pending, job.ID)
			}
		}
		if len(pending) == 0 {
			zap.L().Info("no pending jobs")
			return nil
		}

		zap.L().Info("worker starting",
			zap.Int("jobs", len(pending)),
			zap.Int("concurrency", cfg.Work.MaxConcurrentJobs),
		)

		o := pipeline.New(cfg, st, initGeocoder())

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Work.MaxConcurrentJobs)
		for _, jobID := range pending {
			g.Go(func() error {
				// A failed job is a recorded outcome, not a worker
				// failure; only infrastructure errors stop the group.
				if err := driveToTerminal(gctx, o, st, jobID); err != nil {
					zap.L().Error("job processing failed",
						zap.String("job_id", jobID), zap.Error(err))
				}
				return gctx.Err()
			})
		}
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(workCmd)
}
