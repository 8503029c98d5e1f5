package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/stats"
	"github.com/livinlefevreloca/stocksync/internal/stocksync"
)

func newDispatchCmd(a *app) *cobra.Command {
	var (
		file      string
		dryRun    bool
		chunkSize int
	)

	cmd := &cobra.Command{
		Use:   "dispatch [SKU...]",
		Short: "Sync a list of SKUs in queued batches and wait for the result",
		Example: `  stocksync dispatch SKU-1 SKU-2 SKU-3
  stocksync dispatch --file skus.txt --chunk-size 50 --dry-run
  cut -d, -f1 export.csv | stocksync dispatch --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			skus := args
			if file != "" {
				fromFile, err := readSKUs(file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				skus = append(skus, fromFile...)
			}
			return a.dispatch(cmd.Context(), skus, dryRun, chunkSize)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read SKUs from a file, one per line (- for stdin)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "record the changes without writing stock")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "SKUs per batch (default from config)")
	return cmd
}

func (a *app) dispatch(ctx context.Context, skus []string, dryRun bool, chunkSize int) error {
	return a.runSession(ctx, func(ctx context.Context, engine *stocksync.Engine) (string, error) {
		result, err := engine.Dispatch(ctx, skus, dryRun, chunkSize)
		if err != nil {
			return "", err
		}
		a.logger.Info("sync dispatched",
			"session_id", result.SessionID,
			"batches", result.Batches,
			"duplicates", result.Duplicates,
			"blank", result.Blank)
		return result.SessionID, nil
	})
}

// runSession starts an in-process pool, launches one session with start and
// prints its report once every job has finished.
func (a *app) runSession(ctx context.Context, start func(context.Context, *stocksync.Engine) (string, error)) error {
	database, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	engine, pool, err := a.newEngine(database)
	if err != nil {
		return err
	}
	pool.Start()
	defer pool.Shutdown(context.Background())

	sessionID, err := start(ctx, engine)
	if err != nil {
		return err
	}

	session, err := waitForSession(ctx, database, engine, sessionID)
	if err != nil {
		return fmt.Errorf("waiting for session %s: %w", sessionID, err)
	}

	report, err := stats.NewAggregator(database, a.config.Stats).SessionSummary(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := a.print(report); err != nil {
		return err
	}
	if session.Status == db.SessionFailed {
		return fmt.Errorf("session %s failed", sessionID)
	}
	return nil
}

// readSKUs reads one SKU per line, ignoring blank lines and # comments
func readSKUs(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open SKU file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var skus []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		skus = append(skus, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read SKUs: %w", err)
	}
	return skus, nil
}
