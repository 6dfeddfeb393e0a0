package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/import-engine/internal/reader"
)

var createSheet int

var createCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Register a dataset file as a new import job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		handle := args[0]

		// Fail fast on unsupported file types before touching the store.
		if _, err := reader.ForFile(handle); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.CreateJob(ctx, handle, createSheet)
		if err != nil {
			return eris.Wrap(err, "create job")
		}

		zap.L().Info("job created",
			zap.String("job_id", job.ID),
			zap.String("file", handle),
			zap.Int("sheet", createSheet),
		)
		fmt.Println(job.ID)
		return nil
	},
}

func init() {
	createCmd.Flags().IntVar(&createSheet, "sheet", 0, "zero-based sheet index (xlsx only)")
	rootCmd.AddCommand(createCmd)
}
