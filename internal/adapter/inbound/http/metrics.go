package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sentinel-Gate/rolegate/internal/service"
)

// Metrics holds all Prometheus metrics for rolegate. It implements
// service.Recorder so the services can record without importing
// prometheus.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ChecksTotal     *prometheus.CounterVec
	CheckDuration   prometheus.Histogram
	AdminMutations  *prometheus.CounterVec
	Executions      *prometheus.CounterVec
	RateLimitKeys   prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rolegate",
				Name:      "requests_total",
				Help:      "Total number of admin API requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rolegate",
				Name:      "request_duration_seconds",
				Help:      "Admin API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ChecksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rolegate",
				Name:      "checks_total",
				Help:      "Total authorization checks by result and rejection reason",
			},
			[]string{"result", "reason"}, // result=allowed/rejected
		),
		CheckDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rolegate",
				Name:      "check_duration_seconds",
				Help:      "Authorization check duration in seconds",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
		),
		AdminMutations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rolegate",
				Name:      "admin_mutations_total",
				Help:      "Total role and membership mutations by operation and status",
			},
			[]string{"op", "status"},
		),
		Executions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rolegate",
				Name:      "executions_total",
				Help:      "Total forwarded transactions by outcome",
			},
			[]string{"status"},
		),
		RateLimitKeys: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rolegate",
				Name:      "rate_limit_keys",
				Help:      "Number of active rate limit keys",
			},
		),
	}
}

// ObserveCheck records one authorization decision.
func (m *Metrics) ObserveCheck(reason string, d time.Duration) {
	result := "rejected"
	if reason == "allowed" {
		result = "allowed"
	}
	m.ChecksTotal.WithLabelValues(result, reason).Inc()
	if d > 0 {
		m.CheckDuration.Observe(d.Seconds())
	}
}

// AdminMutation records one mutation attempt.
func (m *Metrics) AdminMutation(op, status string) {
	m.AdminMutations.WithLabelValues(op, status).Inc()
}

// Execution records one forwarded transaction.
func (m *Metrics) Execution(status string) {
	m.Executions.WithLabelValues(status).Inc()
}

var _ service.Recorder = (*Metrics)(nil)
