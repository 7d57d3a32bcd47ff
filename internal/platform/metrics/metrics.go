// Package metrics exposes Prometheus collectors for the claims engine.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the service registers.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec

	ClaimTransitionsTotal *prometheus.CounterVec
	ClaimAmountEUR        *prometheus.HistogramVec

	UploadPipelineTotal    *prometheus.CounterVec
	UploadPipelineDuration *prometheus.HistogramVec

	DatabaseQueriesTotal  *prometheus.CounterVec
	DatabaseQueryDuration *prometheus.HistogramVec

	TaskQueueDepth  *prometheus.GaugeVec
	TaskRetryTotal  *prometheus.CounterVec
	TaskDeadLetters *prometheus.CounterVec

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates and registers a Metrics instance on the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance on a custom registry, useful
// for isolated test registration.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests"},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "http_requests_in_flight", Help: "HTTP requests currently being processed"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total errors by code"},
			[]string{"service", "code", "operation"},
		),
		ClaimTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "claim_transitions_total", Help: "Claim lifecycle transitions"},
			[]string{"from", "to", "result"},
		),
		ClaimAmountEUR: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claim_compensation_amount_eur",
				Help:    "Compensation amount in EUR for approved claims",
				Buckets: []float64{250, 300, 400, 500, 600},
			},
			[]string{"tier"},
		),
		UploadPipelineTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "upload_pipeline_total", Help: "Document pipeline stage outcomes"},
			[]string{"stage", "result"},
		),
		UploadPipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upload_pipeline_duration_seconds",
				Help:    "Document pipeline stage duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		),
		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "database_queries_total", Help: "Total database queries"},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		TaskQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "task_queue_depth", Help: "Pending tasks per queue"},
			[]string{"queue"},
		),
		TaskRetryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "task_retry_total", Help: "Task retries by queue"},
			[]string{"queue", "task_name"},
		),
		TaskDeadLetters: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "task_dead_letters_total", Help: "Tasks moved to the dead-letter queue"},
			[]string{"queue", "task_name"},
		),
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "service_uptime_seconds", Help: "Service uptime in seconds"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service build information"},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal, m.RequestDuration, m.RequestsInFlight,
			m.ErrorsTotal,
			m.ClaimTransitionsTotal, m.ClaimAmountEUR,
			m.UploadPipelineTotal, m.UploadPipelineDuration,
			m.DatabaseQueriesTotal, m.DatabaseQueryDuration,
			m.TaskQueueDepth, m.TaskRetryTotal, m.TaskDeadLetters,
			m.ServiceUptime, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", environment()).Set(1)
	return m
}

func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordError(service, code, operation string) {
	m.ErrorsTotal.WithLabelValues(service, code, operation).Inc()
}

func (m *Metrics) RecordClaimTransition(from, to, result string) {
	m.ClaimTransitionsTotal.WithLabelValues(from, to, result).Inc()
}

func (m *Metrics) RecordCompensation(tier string, amountEUR float64) {
	m.ClaimAmountEUR.WithLabelValues(tier).Observe(amountEUR)
}

func (m *Metrics) RecordUploadStage(stage, result string, duration time.Duration) {
	m.UploadPipelineTotal.WithLabelValues(stage, result).Inc()
	m.UploadPipelineDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

func (m *Metrics) SetTaskQueueDepth(queue string, depth int) {
	m.TaskQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (m *Metrics) RecordTaskRetry(queue, taskName string) {
	m.TaskRetryTotal.WithLabelValues(queue, taskName).Inc()
}

func (m *Metrics) RecordDeadLetter(queue, taskName string) {
	m.TaskDeadLetters.WithLabelValues(queue, taskName).Inc()
}

func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

func environment() string {
	env := strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled reports whether the /metrics endpoint should be exposed.
// Production defaults to disabled unless explicitly turned on; every
// other environment defaults to enabled unless explicitly turned off.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return environment() != "production"
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	global   *Metrics
	globalMu sync.Mutex
)

func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(serviceName)
	}
	return global
}

func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New("claims-engine")
	}
	return global
}
