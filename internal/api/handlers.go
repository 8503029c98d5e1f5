package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/stats"
	"github.com/livinlefevreloca/stocksync/internal/stocksync"
)

func (s *Server) dispatchBatches(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, SyncResponse{Result: ResultRejectedInvalidBody, Error: err.Error()})
		return
	}
	if len(req.SKUs) > s.config.MaxSKUs {
		c.JSON(http.StatusBadRequest, SyncResponse{
			Result: ResultRejectedInvalidConfig,
			DryRun: req.DryRun,
			Error:  fmt.Sprintf("too many SKUs: %d exceeds maximum %d", len(req.SKUs), s.config.MaxSKUs),
		})
		return
	}

	result, err := s.syncer.Dispatch(c.Request.Context(), req.SKUs, req.DryRun, req.ChunkSize)
	if err != nil {
		s.rejectSync(c, req.DryRun, err)
		return
	}

	c.JSON(http.StatusAccepted, SyncResponse{
		Result:     ResultAccepted,
		SessionID:  result.SessionID,
		Requested:  result.Requested,
		Duplicates: result.Duplicates,
		Batches:    result.Batches,
		ChunkSize:  result.ChunkSize,
		DryRun:     result.DryRun,
	})
}

func (s *Server) launchFull(c *gin.Context) {
	var req FullRequest
	// an empty body means a wet run
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, SyncResponse{Result: ResultRejectedInvalidBody, Error: err.Error()})
			return
		}
	}

	result, err := s.syncer.LaunchFull(c.Request.Context(), req.DryRun)
	if err != nil {
		s.rejectSync(c, req.DryRun, err)
		return
	}

	c.JSON(http.StatusAccepted, SyncResponse{
		Result:    ResultAccepted,
		SessionID: result.SessionID,
		DryRun:    result.DryRun,
	})
}

// rejectSync maps dispatch errors to the response contract
func (s *Server) rejectSync(c *gin.Context, dryRun bool, err error) {
	switch {
	case errors.Is(err, stocksync.ErrNoValidInput):
		c.JSON(http.StatusUnprocessableEntity, SyncResponse{Result: ResultRejectedNoInput, DryRun: dryRun, Error: err.Error()})
	case errors.Is(err, stocksync.ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, SyncResponse{Result: ResultRejectedInvalidConfig, DryRun: dryRun, Error: err.Error()})
	default:
		s.logger.Error("sync request failed", "error", err)
		c.JSON(http.StatusInternalServerError, SyncResponse{Result: ResultError, DryRun: dryRun, Error: err.Error()})
	}
}

func (s *Server) getSession(c *gin.Context) {
	report, err := s.stats.SessionSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.readError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) getSessionLogs(c *gin.Context) {
	limit := s.config.LogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, s.config.LogLimit)
	}

	id := c.Param("id")
	if _, err := s.stats.SessionSummary(c.Request.Context(), id); err != nil {
		s.readError(c, err)
		return
	}

	rows, err := s.logs.GetSessionLogs(c.Request.Context(), id, limit)
	if err != nil {
		s.readError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "logs": toLogEntries(rows)})
}

func (s *Server) getStats(c *gin.Context) {
	var window time.Duration
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window must be a positive duration such as 24h"})
			return
		}
		window = d
	}

	dashboard, err := s.stats.Dashboard(c.Request.Context(), window)
	if err != nil {
		s.readError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (s *Server) readError(c *gin.Context, err error) {
	switch {
	case db.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, stats.ErrInvalidWindow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("read request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
