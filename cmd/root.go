package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/airgrid/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "airgrid",
	Short: "Gridded air-pollution lookup, journey exposure and forecasting",
	Long: "Ingests gridded air-pollution maps for a region, answers nearest-cell\n" +
		"queries, plans transit journeys annotated with exposure, and forecasts\n" +
		"future years per cell from the historical maps.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return cfg.Validate()
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
