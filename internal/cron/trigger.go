package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/livinlefevreloca/stocksync/internal/metrics"
	"github.com/livinlefevreloca/stocksync/internal/stocksync"
)

// Config controls the scheduled full-catalog sync
type Config struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"`
	DryRun   bool   `toml:"dry_run"`
	Timezone string `toml:"timezone"`
}

// DefaultConfig returns a disabled trigger that would run nightly at 02:00 UTC
func DefaultConfig() Config {
	return Config{
		Enabled:  false,
		Schedule: "0 2 * * *",
		Timezone: "UTC",
	}
}

// Validate checks the expression and timezone. A disabled trigger is not checked.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := Parse(c.Schedule); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid cron timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Launcher starts full-catalog syncs
type Launcher interface {
	LaunchFull(ctx context.Context, dryRun bool) (*stocksync.LaunchResult, error)
}

// Trigger launches a full-catalog sync at every scheduled minute
type Trigger struct {
	schedule *Schedule
	location *time.Location
	dryRun   bool
	launcher Launcher
	logger   *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewTrigger(config Config, launcher Launcher, logger *slog.Logger) (*Trigger, error) {
	schedule, err := Parse(config.Schedule)
	if err != nil {
		return nil, err
	}
	location := time.UTC
	if config.Timezone != "" {
		if location, err = time.LoadLocation(config.Timezone); err != nil {
			return nil, fmt.Errorf("invalid cron timezone %q: %w", config.Timezone, err)
		}
	}

	return &Trigger{
		schedule: schedule,
		location: location,
		dryRun:   config.DryRun,
		launcher: launcher,
		logger:   logger.With("component", "cron"),
		now:      time.Now,
		after:    time.After,
	}, nil
}

// Run blocks until ctx is cancelled. A failed launch is logged and the
// trigger waits for the next scheduled minute.
func (t *Trigger) Run(ctx context.Context) error {
	t.logger.Info("cron trigger started", "schedule", t.schedule.String(), "dry_run", t.dryRun)

	for {
		if ctx.Err() != nil {
			t.logger.Info("cron trigger stopped")
			return nil
		}

		now := t.now().In(t.location)
		next := t.schedule.Next(now)
		if next.IsZero() {
			return fmt.Errorf("schedule %q has no upcoming run", t.schedule.String())
		}

		select {
		case <-ctx.Done():
			t.logger.Info("cron trigger stopped")
			return nil
		case <-t.after(next.Sub(now)):
		}

		t.fire(ctx, next)
	}
}

func (t *Trigger) fire(ctx context.Context, scheduled time.Time) {
	result, err := t.launcher.LaunchFull(ctx, t.dryRun)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.RecordScheduledLaunch("error")
		t.logger.Error("scheduled full sync failed to launch", "scheduled_for", scheduled, "error", err)
		return
	}

	metrics.RecordScheduledLaunch("ok")
	t.logger.Info("scheduled full sync launched",
		"session_id", result.SessionID,
		"scheduled_for", scheduled,
		"dry_run", result.DryRun)
}
