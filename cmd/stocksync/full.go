package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/stocksync/internal/stocksync"
)

func newFullCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "full",
		Short: "Reconcile the whole local catalog against the marketplace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSession(cmd.Context(), func(ctx context.Context, engine *stocksync.Engine) (string, error) {
				result, err := engine.LaunchFull(ctx, dryRun)
				if err != nil {
					return "", err
				}
				a.logger.Info("full sync launched", "session_id", result.SessionID, "dry_run", result.DryRun)
				return result.SessionID, nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "record the changes without writing stock")
	return cmd
}
