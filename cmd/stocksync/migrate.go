package main

import (
	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/stocksync/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.OpenWithConfig(a.config.Database)
			if err != nil {
				return err
			}
			defer database.Close()

			return a.migrate(database)
		},
	}
}
