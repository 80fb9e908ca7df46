// Package metrics implements Prometheus instrumentation for the engine:
// job-run counters, error counters, and processing-time histograms,
// registered with prometheus/client_golang via one Registry, explicit
// promauto-free construction, and a Handler for /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the narrow interface the executor and job driver depend on,
// so callers that don't want Prometheus wiring can pass a no-op instead.
type Recorder interface {
	ObserveBatch(rows int, bytesIn int64, dir string)
	ObserveJob(state string, duration time.Duration)
	ObserveError(kind string)
	SetActiveJobs(n int)
}

// Metrics holds every collector the engine registers: the bytes_in,
// rows_in, rows_out, and bytes_out progress fields, plus the job-level
// error taxonomy.
type Metrics struct {
	BatchesProcessed *prometheus.CounterVec
	RowsProcessed    *prometheus.CounterVec
	BytesProcessed   *prometheus.CounterVec
	JobsTotal        *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	ErrorsTotal      *prometheus.CounterVec
	ActiveJobs       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers every engine metric on a fresh Registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		BatchesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamengine_batches_processed_total",
				Help: "Total batches processed by direction (in/out).",
			},
			[]string{"direction"},
		),
		RowsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamengine_rows_processed_total",
				Help: "Total rows processed by direction (in/out).",
			},
			[]string{"direction"},
		),
		BytesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamengine_bytes_processed_total",
				Help: "Total bytes processed by direction (in/out).",
			},
			[]string{"direction"},
		),
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamengine_jobs_total",
				Help: "Total job runs by terminal state.",
			},
			[]string{"state"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "streamengine_job_duration_seconds",
				Help:    "Job run duration distribution by terminal state.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"state"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamengine_errors_total",
				Help: "Total run failures by error kind taxonomy.",
			},
			[]string{"kind"},
		),
		ActiveJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "streamengine_active_jobs",
				Help: "Number of job runs currently executing.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.BatchesProcessed,
		m.RowsProcessed,
		m.BytesProcessed,
		m.JobsTotal,
		m.JobDuration,
		m.ErrorsTotal,
		m.ActiveJobs,
	)
	return m
}

// Handler serves the registry's /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBatch records one batch crossing the reader ("in") or writer
// ("out") boundary progress fields.
func (m *Metrics) ObserveBatch(rows int, bytesVal int64, dir string) {
	m.BatchesProcessed.WithLabelValues(dir).Inc()
	m.RowsProcessed.WithLabelValues(dir).Add(float64(rows))
	m.BytesProcessed.WithLabelValues(dir).Add(float64(bytesVal))
}

// ObserveJob records one job run reaching a terminal state.
func (m *Metrics) ObserveJob(state string, duration time.Duration) {
	m.JobsTotal.WithLabelValues(state).Inc()
	m.JobDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// ObserveError records one run failure by errs.Kind string.
func (m *Metrics) ObserveError(kind string) {
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// SetActiveJobs sets the current in-flight job-run gauge.
func (m *Metrics) SetActiveJobs(n int) {
	m.ActiveJobs.Set(float64(n))
}

// Noop is a Recorder that discards every observation, used where metrics
// wiring is optional (tests, or callers without a Prometheus registry).
type Noop struct{}

func (Noop) ObserveBatch(int, int64, string)    {}
func (Noop) ObserveJob(string, time.Duration)   {}
func (Noop) ObserveError(string)                {}
func (Noop) SetActiveJobs(int)                  {}

var _ Recorder = (*Metrics)(nil)
var _ Recorder = Noop{}
