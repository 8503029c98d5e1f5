package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/stocksync/internal/api"
	"github.com/livinlefevreloca/stocksync/internal/cron"
	"github.com/livinlefevreloca/stocksync/internal/metrics"
	"github.com/livinlefevreloca/stocksync/internal/stats"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the sync workers and the scheduled full sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("starting stocksync")

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

	aggregator := stats.NewAggregator(database, a.config.Stats)
	server := api.NewServer(a.config.HTTP, engine, database, aggregator, a.logger)

	errCh := make(chan error, 3)
	go func() { errCh <- server.ListenAndServe() }()

	var metricsServer *http.Server
	if a.config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: a.config.Metrics.Address, Handler: mux}
		go func() {
			a.logger.Info("metrics server listening", "addr", a.config.Metrics.Address)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server failed: %w", err)
			}
		}()
	}

	if a.config.Cron.Enabled {
		trigger, err := cron.NewTrigger(a.config.Cron, engine, a.logger)
		if err != nil {
			return err
		}
		go func() {
			if err := trigger.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	a.logger.Info("stocksync is running")

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
	case runErr = <-errCh:
		if runErr != nil {
			a.logger.Error("component stopped", "error", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown failed", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics shutdown failed", "error", err)
		}
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("worker pool shutdown failed", "error", err, "pending", pool.Pending())
	}

	a.logger.Info("stocksync stopped")
	return runErr
}
