package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/stocksync/internal/config"
	"github.com/livinlefevreloca/stocksync/internal/logging"
)

// errInvalidConfig marks a configuration file that cannot be loaded or validated
var errInvalidConfig = errors.New("invalid configuration")

// app carries what every command needs after the config is loaded
type app struct {
	configPath string
	config     *config.Config
	logger     *slog.Logger
	logCloser  io.Closer
	out        io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "stocksync",
		Short: "Synchronise local product stock with the marketplace",
		Long: `stocksync reconciles the stock recorded in the local product catalog with the
quantities reported by the marketplace, either for a list of SKUs processed in
queued batches or for the whole catalog at once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logCloser != nil {
				a.logCloser.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to configuration file (TOML)")

	root.AddCommand(
		newServeCmd(a),
		newDispatchCmd(a),
		newFullCmd(a),
		newStatsCmd(a),
		newSessionCmd(a),
		newMigrateCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("%w: failed to load: %w", errInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", errInvalidConfig, err)
	}

	logger, closer, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(logger)

	a.config = cfg
	a.logger = logger
	a.logCloser = closer
	return nil
}

// print writes v to stdout as indented JSON
func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
