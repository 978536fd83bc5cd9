package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Failure handling metrics
	FailuresTotal      *prometheus.CounterVec
	RecoveryAttempts   *prometheus.CounterVec
	BreakerTransitions *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	DegradationLevel   *prometheus.GaugeVec
	ActiveFailures     *prometheus.GaugeVec

	// Event buffer metrics
	BufferedEvents *prometheus.GaugeVec
	DroppedEvents  *prometheus.CounterVec
	FlushedEvents  *prometheus.CounterVec

	// Gate metrics
	GateRunsTotal   *prometheus.CounterVec
	GateRunDuration *prometheus.HistogramVec
	GateScore       *prometheus.GaugeVec
	GateIssuesTotal *prometheus.CounterVec
	CheckDuration   *prometheus.HistogramVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "obsguard",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		FailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "failures_total",
				Help:      "Total number of failures reported by type and severity",
			},
			[]string{"type", "severity", "component"},
		),
		RecoveryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "recovery_attempts_total",
				Help:      "Total number of recovery attempts by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		BreakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "breaker_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"dependency", "from", "to"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "breaker_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"dependency"},
		),
		DegradationLevel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "degradation_level",
				Help:      "Current degradation level (0=none through 4=critical)",
			},
			[]string{"instance"},
		),
		ActiveFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "active_failures",
				Help:      "Number of unresolved failure records",
			},
			[]string{"severity"},
		),
		BufferedEvents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "buffered_events",
				Help:      "Number of events held in the local fallback buffer",
			},
			[]string{"buffer"},
		),
		DroppedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "dropped_events_total",
				Help:      "Total number of events dropped on buffer overflow",
			},
			[]string{"buffer"},
		),
		FlushedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "flushed_events_total",
				Help:      "Total number of buffered events flushed to the sink",
			},
			[]string{"buffer", "outcome"},
		),
		GateRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "gate_runs_total",
				Help:      "Total number of gate runs by recommendation",
			},
			[]string{"recommendation", "mode"},
		),
		GateRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "gate_run_duration_seconds",
				Help:      "Gate run duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		),
		GateScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "gate_score",
				Help:      "Overall score of the most recent gate run",
			},
			[]string{"mode"},
		),
		GateIssuesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "gate_issues_total",
				Help:      "Total number of gate issues by tier and category",
			},
			[]string{"tier", "category"},
		),
		CheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "check_duration_seconds",
				Help:      "Individual health check duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"check", "outcome"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.FailuresTotal,
		m.RecoveryAttempts,
		m.BreakerTransitions,
		m.BreakerState,
		m.DegradationLevel,
		m.ActiveFailures,
		m.BufferedEvents,
		m.DroppedEvents,
		m.FlushedEvents,
		m.GateRunsTotal,
		m.GateRunDuration,
		m.GateScore,
		m.GateIssuesTotal,
		m.CheckDuration,
	)

	return m
}

// RecordFailure records a reported failure
func (m *Metrics) RecordFailure(failureType, severity, component string) {
	if m.FailuresTotal == nil {
		return
	}

	m.FailuresTotal.WithLabelValues(failureType, severity, component).Inc()
}

// RecordRecoveryAttempt records a recovery attempt outcome
func (m *Metrics) RecordRecoveryAttempt(strategy, outcome string) {
	if m.RecoveryAttempts == nil {
		return
	}

	m.RecoveryAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordBreakerTransition records a circuit breaker state change
func (m *Metrics) RecordBreakerTransition(dependency, from, to string, state int) {
	if m.BreakerTransitions == nil {
		return
	}

	m.BreakerTransitions.WithLabelValues(dependency, from, to).Inc()
	m.BreakerState.WithLabelValues(dependency).Set(float64(state))
}

// UpdateDegradationLevel updates the degradation level gauge
func (m *Metrics) UpdateDegradationLevel(level int) {
	if m.DegradationLevel == nil {
		return
	}

	m.DegradationLevel.WithLabelValues("default").Set(float64(level))
}

// UpdateActiveFailures updates the active failure gauge for a severity
func (m *Metrics) UpdateActiveFailures(severity string, count int) {
	if m.ActiveFailures == nil {
		return
	}

	m.ActiveFailures.WithLabelValues(severity).Set(float64(count))
}

// UpdateBufferedEvents updates the buffered event gauge
func (m *Metrics) UpdateBufferedEvents(buffer string, count int) {
	if m.BufferedEvents == nil {
		return
	}

	m.BufferedEvents.WithLabelValues(buffer).Set(float64(count))
}

// RecordDroppedEvent records an event dropped on overflow
func (m *Metrics) RecordDroppedEvent(buffer string) {
	if m.DroppedEvents == nil {
		return
	}

	m.DroppedEvents.WithLabelValues(buffer).Inc()
}

// RecordFlushedEvents records buffered events flushed to the sink
func (m *Metrics) RecordFlushedEvents(buffer, outcome string, count int) {
	if m.FlushedEvents == nil {
		return
	}

	m.FlushedEvents.WithLabelValues(buffer, outcome).Add(float64(count))
}

// RecordGateRun records a completed gate run
func (m *Metrics) RecordGateRun(recommendation, mode string, score int, duration time.Duration) {
	if m.GateRunsTotal == nil {
		return
	}

	m.GateRunsTotal.WithLabelValues(recommendation, mode).Inc()
	m.GateRunDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.GateScore.WithLabelValues(mode).Set(float64(score))
}

// RecordGateIssue records a gate issue by tier
func (m *Metrics) RecordGateIssue(tier, category string) {
	if m.GateIssuesTotal == nil {
		return
	}

	m.GateIssuesTotal.WithLabelValues(tier, category).Inc()
}

// RecordCheckDuration records an individual check duration
func (m *Metrics) RecordCheckDuration(check, outcome string, duration time.Duration) {
	if m.CheckDuration == nil {
		return
	}

	m.CheckDuration.WithLabelValues(check, outcome).Observe(duration.Seconds())
}

// PrometheusMiddleware returns a Gin middleware that records HTTP metrics
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m.HTTPRequestsTotal == nil {
			return
		}

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
