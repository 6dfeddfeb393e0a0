package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/import-engine/internal/pipeline"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fail jobs stuck in a live stage past the staleness threshold",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		o := pipeline.New(cfg, st, initGeocoder())

		swept, err := o.SweepStuck(ctx, cfg.Sweep.StuckThreshold())
		if err != nil {
			return err
		}

		zap.L().Info("sweep complete",
			zap.Int("swept", swept),
			zap.Duration("threshold", cfg.Sweep.StuckThreshold()),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
