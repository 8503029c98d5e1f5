// Package api serves the operator HTTP surface: triggering syncs and reading
// sessions, logs and stats.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/metrics"
	"github.com/livinlefevreloca/stocksync/internal/stats"
	"github.com/livinlefevreloca/stocksync/internal/stocksync"
)

// Syncer starts sync sessions
type Syncer interface {
	Dispatch(ctx context.Context, skus []string, dryRun bool, chunkSize int) (*stocksync.DispatchResult, error)
	LaunchFull(ctx context.Context, dryRun bool) (*stocksync.LaunchResult, error)
}

// LogReader reads the sync log of a session
type LogReader interface {
	GetSessionLogs(ctx context.Context, sessionID string, limit int) ([]db.SyncLogEntry, error)
	PingContext(ctx context.Context) error
}

// Server is the HTTP API
type Server struct {
	config Config
	syncer Syncer
	logs   LogReader
	stats  *stats.Aggregator
	logger *slog.Logger
	router *gin.Engine
	http   *http.Server
}

// NewServer builds the router
func NewServer(config Config, syncer Syncer, logs LogReader, aggregator *stats.Aggregator, logger *slog.Logger) *Server {
	s := &Server{
		config: config,
		syncer: syncer,
		logs:   logs,
		stats:  aggregator,
		logger: logger,
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.observe())

	router.GET("/healthz", s.health)

	v1 := router.Group("/api/v1/sync")
	{
		v1.POST("/batches", s.dispatchBatches)
		v1.POST("/full", s.launchFull)
		v1.GET("/sessions/:id", s.getSession)
		v1.GET("/sessions/:id/logs", s.getSessionLogs)
		v1.GET("/stats", s.getStats)
	}

	s.router = router
	s.http = &http.Server{
		Addr:         config.Addr,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops. A shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.config.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// observe logs every request and records its metrics
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordRequest(c.Request.Method, endpoint, status, elapsed)

		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", endpoint,
			"status", status,
			"duration", elapsed)
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.logs.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
