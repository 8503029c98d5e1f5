// Package metrics exposes stocksync's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stocksync"

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Job attempts by queue, type and outcome.",
		},
		[]string{"queue", "type", "outcome"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of a single job attempt.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 1800},
		},
		[]string{"queue", "type"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting in each queue.",
		},
		[]string{"queue"},
	)
	itemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Reconciled SKUs by session kind, status and dry-run flag.",
		},
		[]string{"kind", "status", "dry_run"},
	)
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions that reached a terminal status.",
		},
		[]string{"kind", "status"},
	)
	logFlushRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "log_flush_rows",
			Help:      "Rows written per batched log insert.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
		},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "endpoint", "status"},
	)
	scheduledLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_launches_total",
			Help:      "Full-catalog syncs started by the cron trigger.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal)
	prometheus.MustRegister(jobDuration)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(itemsTotal)
	prometheus.MustRegister(sessionsTotal)
	prometheus.MustRegister(logFlushRows)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(scheduledLaunches)
}

// RecordJob records one job attempt. outcome is "ok", "retry", "failed" or "exhausted".
func RecordJob(queue, jobType, outcome string, duration time.Duration) {
	jobsTotal.WithLabelValues(queue, jobType, outcome).Inc()
	jobDuration.WithLabelValues(queue, jobType).Observe(duration.Seconds())
}

// SetQueueDepth reports the number of jobs waiting in a queue
func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordItems adds n reconciled items with the given status
func RecordItems(kind, status string, dryRun bool, n int) {
	if n <= 0 {
		return
	}
	itemsTotal.WithLabelValues(kind, status, strconv.FormatBool(dryRun)).Add(float64(n))
}

// RecordSession counts a session reaching a terminal status
func RecordSession(kind, status string) {
	sessionsTotal.WithLabelValues(kind, status).Inc()
}

// RecordLogFlush observes the size of one batched log write
func RecordLogFlush(rows int) {
	logFlushRows.Observe(float64(rows))
}

// RecordRequest records metrics for one HTTP request
func RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordScheduledLaunch counts one cron firing. outcome is "ok" or "error".
func RecordScheduledLaunch(outcome string) {
	scheduledLaunches.WithLabelValues(outcome).Inc()
}

func classifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	}
	return "unknown"
}

// Handler returns the HTTP handler exporting the registered collectors
func Handler() http.Handler {
	return promhttp.Handler()
}
