// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records HTTP, drying, chat and session metrics. It implements
// drying.Observer.
type Collector struct {
	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// drying
	dryAttemptsTotal  *prometheus.CounterVec
	dryAttemptLatency *prometheus.HistogramVec
	dryResultsTotal   *prometheus.CounterVec
	dryDuration       prometheus.Histogram
	dryBackoffSeconds prometheus.Counter

	// chat
	chatRequestsTotal   *prometheus.CounterVec
	chatRequestDuration *prometheus.HistogramVec
	chatTokensUsed      *prometheus.CounterVec

	sessionsActive prometheus.Gauge

	logger *zap.Logger
}

// NewCollector registers the metrics on reg. A nil reg uses the default
// Prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.dryAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drying_attempts_total",
			Help:      "Remote drying attempts by engine and outcome",
		},
		[]string{"variant", "outcome"},
	)

	c.dryAttemptLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drying_attempt_duration_seconds",
			Help:      "Latency of a single remote drying attempt",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"variant"},
	)

	c.dryResultsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drying_results_total",
			Help:      "Drying calls by terminal status",
		},
		[]string{"status"},
	)

	c.dryDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drying_duration_seconds",
			Help:      "Wall time of a drying call including backoff",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 240},
		},
	)

	c.dryBackoffSeconds = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drying_backoff_seconds_total",
			Help:      "Total time spent waiting between drying attempts",
		},
	)

	c.chatRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Total number of chat completion requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.chatRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_request_duration_seconds",
			Help:      "Chat completion duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.chatTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_tokens_total",
			Help:      "Total number of chat tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.sessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live conversation sessions",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// ObserveDryAttempt records one remote edit attempt.
func (c *Collector) ObserveDryAttempt(variant, outcome string, latency time.Duration) {
	c.dryAttemptsTotal.WithLabelValues(variant, outcome).Inc()
	c.dryAttemptLatency.WithLabelValues(variant).Observe(latency.Seconds())
}

// ObserveDryBackoff records a wait between attempts.
func (c *Collector) ObserveDryBackoff(delay time.Duration) {
	c.dryBackoffSeconds.Add(delay.Seconds())
}

// ObserveDryResult records the terminal status of a drying call.
func (c *Collector) ObserveDryResult(status string, duration time.Duration) {
	c.dryResultsTotal.WithLabelValues(status).Inc()
	c.dryDuration.Observe(duration.Seconds())
}

// RecordChatRequest records one chat completion.
func (c *Collector) RecordChatRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.chatRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.chatRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.chatTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.chatTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// SetActiveSessions sets the live session gauge.
func (c *Collector) SetActiveSessions(n int) {
	c.sessionsActive.Set(float64(n))
}

// statusCode buckets an HTTP status into its class.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
