// Package middleware provides HTTP middleware components for the streambridge server.
// This file contains Prometheus metrics middleware and stream-level metric helpers.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// httpRequestsTotal counts the total number of HTTP requests processed.
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambridge_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDurationSeconds tracks the duration of HTTP requests, including whole streams.
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streambridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method", "path"},
	)

	// httpRequestSizeBytes tracks the size of HTTP request bodies.
	httpRequestSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streambridge_http_request_size_bytes",
			Help:    "Size of HTTP request bodies in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 7),
		},
		[]string{"method", "path"},
	)

	// activeStreams tracks translation streams currently open.
	activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streambridge_active_streams",
			Help: "Number of translation streams currently open",
		},
	)

	// streamsTotal counts finished streams by outcome.
	streamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambridge_streams_total",
			Help: "Total number of translation streams by outcome",
		},
		[]string{"outcome"},
	)

	// streamEventsTotal counts emitted UI Message Stream events by type.
	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambridge_stream_events_total",
			Help: "Total number of UI Message Stream events emitted, by event type",
		},
		[]string{"type"},
	)

	// streamLinesDropped counts upstream lines and items discarded, by reason.
	streamLinesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambridge_stream_lines_dropped_total",
			Help: "Upstream lines or payload items dropped, by reason",
		},
		[]string{"reason"},
	)

	// upstreamErrors counts upstream failures before the stream started.
	upstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streambridge_upstream_errors_total",
			Help: "Upstream failures before streaming began, by kind",
		},
		[]string{"kind"},
	)

	// timeToFirstFrame tracks latency from request start to the first upstream-derived frame.
	timeToFirstFrame = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streambridge_time_to_first_frame_seconds",
			Help:    "Seconds from request start to the first forwarded frame",
			Buckets: prometheus.DefBuckets,
		},
	)

	// metricsRegistered ensures metrics are only registered once.
	metricsRegistered atomic.Bool
	metricsEnabled    atomic.Bool
)

// SetMetricsEnabled toggles Prometheus metrics collection.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// IsMetricsEnabled reports whether metrics are enabled.
func IsMetricsEnabled() bool {
	return metricsEnabled.Load()
}

// RegisterMetrics registers all Prometheus metrics.
// It is safe to call multiple times; metrics will only be registered once.
func RegisterMetrics() {
	if !metricsRegistered.CompareAndSwap(false, true) {
		return
	}

	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		httpRequestSizeBytes,
		activeStreams,
		streamsTotal,
		streamEventsTotal,
		streamLinesDropped,
		upstreamErrors,
		timeToFirstFrame,
	)
}

// PrometheusMiddleware returns a Gin middleware that collects request count, duration and
// request size.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsMetricsEnabled() {
			c.Next()
			return
		}
		RegisterMetrics()

		// Skip metrics endpoint to avoid self-referential metrics
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		path := normalizePath(c.Request.URL.Path)
		method := c.Request.Method
		if c.Request.ContentLength > 0 {
			httpRequestSizeBytes.WithLabelValues(method, path).Observe(float64(c.Request.ContentLength))
		}

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// normalizePath normalizes URL paths to prevent high cardinality in metrics.
func normalizePath(path string) string {
	switch {
	case path == "/", path == "/healthz", path == "/metrics":
		return path
	case path == "/api/chat" || path == "/v1/chat/stream":
		return "/api/chat"
	case strings.HasPrefix(path, "/debug/"):
		return "/debug/*"
	default:
		return "other"
	}
}

// MetricsHandler returns the Prometheus HTTP handler for the /metrics endpoint.
func MetricsHandler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		if !IsMetricsEnabled() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		RegisterMetrics()
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// StreamStarted marks a translation stream as open. Call the returned func when it ends.
func StreamStarted() func() {
	ActiveStreams.Increment()
	if IsMetricsEnabled() {
		activeStreams.Inc()
	}
	return func() {
		ActiveStreams.Decrement()
		if IsMetricsEnabled() {
			activeStreams.Dec()
		}
	}
}

// StreamStats is the per-stream summary recorded when a stream ends.
type StreamStats struct {
	Outcome   string
	Events    map[string]int
	Malformed int
	Unknown   int
	Oversized int
}

// RecordStream records the outcome and counters of a finished stream.
func RecordStream(s StreamStats) {
	if !IsMetricsEnabled() {
		return
	}
	streamsTotal.WithLabelValues(s.Outcome).Inc()
	for typ, n := range s.Events {
		if n > 0 {
			streamEventsTotal.WithLabelValues(typ).Add(float64(n))
		}
	}
	if s.Malformed > 0 {
		streamLinesDropped.WithLabelValues("malformed").Add(float64(s.Malformed))
	}
	if s.Unknown > 0 {
		streamLinesDropped.WithLabelValues("unknown_code").Add(float64(s.Unknown))
	}
	if s.Oversized > 0 {
		streamLinesDropped.WithLabelValues("oversized").Add(float64(s.Oversized))
	}
}

// RecordUpstreamError records an upstream failure that happened before streaming began.
// kind is "unreachable" or "status_<code>".
func RecordUpstreamError(kind string) {
	if !IsMetricsEnabled() {
		return
	}
	upstreamErrors.WithLabelValues(kind).Inc()
}

// RecordTimeToFirstFrame records the latency until the first upstream-derived frame.
func RecordTimeToFirstFrame(d time.Duration) {
	if !IsMetricsEnabled() {
		return
	}
	timeToFirstFrame.Observe(d.Seconds())
}
