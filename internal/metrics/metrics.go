// Package metrics exposes Prometheus collectors for render jobs and
// isolation units. A nil or disabled *Metrics is a no-op.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls metric collection.
type Config struct {
	Enabled   bool
	Namespace string
	Buckets   []float64
}

// DefaultConfig returns an enabled configuration in the "template_service"
// namespace.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Namespace: "template_service",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
	}
}

// Metrics holds the service collectors.
type Metrics struct {
	config Config

	// Job metrics
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	// Unit metrics
	unitsStarted *prometheus.CounterVec
	unitsFailed  *prometheus.CounterVec
	activeUnits  *prometheus.GaugeVec

	// HTTP metrics
	requestsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors in a private registry.
func New(cfg Config) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	ns := cfg.Namespace

	registry := prometheus.NewRegistry()
	m := &Metrics{
		config:   cfg,
		registry: registry,

		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "jobs_total",
				Help:      "Render jobs by task and outcome",
			},
			[]string{"task", "outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "job_duration_seconds",
				Help:      "Wall-clock duration of render jobs in seconds",
				Buckets:   buckets,
			},
			[]string{"task", "outcome"},
		),
		unitsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "units_started_total",
				Help:      "Isolation units spawned",
			},
			[]string{"mode"},
		),
		unitsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "units_failed_total",
				Help:      "Isolation units that faulted or timed out",
			},
			[]string{"mode", "reason"},
		),
		activeUnits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "active_units",
				Help:      "Isolation units currently running a job",
			},
			[]string{"mode"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "http_requests_total",
				Help:      "Worker endpoint requests by task and status code",
			},
			[]string{"task", "code"},
		),
	}

	if err := registerAll(registry,
		m.jobsTotal,
		m.jobDuration,
		m.unitsStarted,
		m.unitsFailed,
		m.activeUnits,
		m.requestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func registerAll(r *prometheus.Registry, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// RecordJob records a finished job. outcome is one of "resolved",
// "error", "timeout" or "unit_fault".
func (m *Metrics) RecordJob(task, outcome string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.jobsTotal.WithLabelValues(task, outcome).Inc()
	m.jobDuration.WithLabelValues(task, outcome).Observe(duration.Seconds())
}

// UnitStarted marks a unit as running.
func (m *Metrics) UnitStarted(mode string) {
	if !m.enabled() {
		return
	}
	m.unitsStarted.WithLabelValues(mode).Inc()
	m.activeUnits.WithLabelValues(mode).Inc()
}

// UnitFinished marks a unit as gone. A non-empty reason counts it as a
// failure.
func (m *Metrics) UnitFinished(mode, reason string) {
	if !m.enabled() {
		return
	}
	m.activeUnits.WithLabelValues(mode).Dec()
	if reason != "" {
		m.unitsFailed.WithLabelValues(mode, reason).Inc()
	}
}

// RecordRequest counts one front-end request.
func (m *Metrics) RecordRequest(task string, code int) {
	if !m.enabled() {
		return
	}
	m.requestsTotal.WithLabelValues(task, strconv.Itoa(code)).Inc()
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if !m.enabled() {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
