package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/stocksync/internal/stats"
	"github.com/livinlefevreloca/stocksync/internal/stocksync"
)

func newStatsCmd(a *app) *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print success rate, throughput, failing SKUs and largest deltas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			dashboard, err := stats.NewAggregator(database, a.config.Stats).Dashboard(cmd.Context(), window)
			if errors.Is(err, stats.ErrInvalidWindow) {
				return fmt.Errorf("%w: %v", stocksync.ErrInvalidConfig, err)
			}
			if err != nil {
				return err
			}
			return a.print(dashboard)
		},
	}

	cmd.Flags().DurationVar(&window, "window", 0, "aggregation window (default from config)")
	return cmd
}
