package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/import-engine/internal/pipeline"
	"github.com/sells-group/import-engine/internal/store"
)

var processOnce bool

var processCmd = &cobra.Command{
	Use:   "process <job-id>",
	Short: "Process an import job batch by batch",
	Long:  "Runs the job's current stage one batch at a time until it reaches a terminal stage, or exactly one batch with --once.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		o := pipeline.New(cfg, st, initGeocoder())

		if processOnce {
			return o.ProcessNext(ctx, args[0])
		}
		return driveToTerminal(ctx, o, st, args[0])
	},
}

// driveToTerminal invokes the orchestrator until the job lands in a terminal
// stage. Each invocation is one persisted batch, so an interrupt here loses
// nothing: rerunning the command picks up where the job stopped.
func driveToTerminal(ctx context.Context, o *pipeline.Orchestrator, st store.Store, jobID string) error {
	for {
		if err := o.ProcessNext(ctx, jobID); err != nil {
			return err
		}

		job, err := st.GetJob(ctx, jobID)
		if err != nil {
			return eris.Wrap(err, "reload job")
		}
		if job.Stage.Terminal() {
			zap.L().Info("job finished",
				zap.String("job_id", job.ID),
				zap.String("stage", string(job.Stage)),
				zap.Int("events", job.EventsCreated),
				zap.Int("errors", len(job.Errors)),
			)
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func init() {
	processCmd.Flags().BoolVar(&processOnce, "once", false, "process a single batch and exit")
	rootCmd.AddCommand(processCmd)
}
