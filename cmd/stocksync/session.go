package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/stats"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect sync sessions",
	}
	cmd.AddCommand(newSessionShowCmd(a), newSessionLogsCmd(a), newSessionListCmd(a))
	return cmd
}

func newSessionShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show SESSION_ID",
		Short: "Print a session with its counters, duration and throughput",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			report, err := stats.NewAggregator(database, a.config.Stats).SessionSummary(cmd.Context(), args[0])
			if db.IsNotFound(err) {
				return fmt.Errorf("session %s not found", args[0])
			}
			if err != nil {
				return err
			}
			return a.print(report)
		},
	}
}

func newSessionLogsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs SESSION_ID",
		Short: "Print the sync log of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			if _, err := database.GetSession(cmd.Context(), args[0]); err != nil {
				if db.IsNotFound(err) {
					return fmt.Errorf("session %s not found", args[0])
				}
				return err
			}

			entries, err := database.GetSessionLogs(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return writeLogs(a.out, entries)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum number of rows")
	return cmd
}

func newSessionListCmd(a *app) *cobra.Command {
	var (
		since time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			sessions, err := database.ListSessions(cmd.Context(), time.Now().Add(-since), limit)
			if err != nil {
				return err
			}
			return writeSessions(a.out, sessions)
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to look")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions")
	return cmd
}

func writeSessions(out io.Writer, sessions []db.SyncSession) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tDRY RUN\tPROCESSED\tSUCCESS\tSKIPPED\tFAILED\tCREATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d/%d\t%d\t%d\t%d\t%s\n",
			s.ID, s.Kind, s.Status, s.DryRun,
			s.ItemsProcessed, s.TotalRequested,
			s.ItemsSuccessful, s.ItemsSkipped, s.ItemsFailed,
			s.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func writeLogs(out io.Writer, entries []db.SyncLogEntry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tBATCH\tSKU\tOLD\tNEW\tCHANGE\tSTATUS\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Type, optional(e.BatchIndex), e.SKU,
			optional(e.OldStock), optional(e.NewStock), optional(e.Change),
			e.Status, e.Message)
	}
	return w.Flush()
}

func optional(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
