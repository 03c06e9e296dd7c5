package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/makailabs/swellfuse/internal/config"
	"github.com/makailabs/swellfuse/internal/perfstore"
)

func newPerformanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Report recent forecast accuracy from the validation store",
		Long: `Reads the validation database and prints the rolling accuracy
report: MAE, RMSE, categorical accuracy and per-shore bias alerts.`,
		RunE: runPerformance,
	}
	cmd.Flags().Int("window-days", 0, "Override the rolling window (0 keeps config)")
	return cmd
}

func runPerformance(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if window, _ := cmd.Flags().GetInt("window-days"); window > 0 {
		cfg.Store.WindowDays = window
	}

	store, err := perfstore.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.RecentPerformance(cmd.Context(), time.Now().UTC())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
