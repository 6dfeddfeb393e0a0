package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/import-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "import-engine",
	Short: "Batch import pipeline for tabular event datasets",
	Long:  "Drives uploaded CSV/XLSX datasets through schema detection, duplicate analysis, validation, geocoding and event creation, one resumable batch at a time.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
