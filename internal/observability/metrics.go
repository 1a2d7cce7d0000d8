package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gpu_log_summary"

// File outcome labels for FilesProcessed.
const (
	FileStatusOK    = "ok"
	FileStatusEmpty = "empty"
	FileStatusError = "error"
)

// Metrics holds all Prometheus metrics for summarizer self-monitoring.
// It uses a custom registry to avoid polluting the global default.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// Parsing metrics
	FilesProcessed    *prometheus.CounterVec
	SampleBlocks      prometheus.Counter
	ReadingsExtracted *prometheus.CounterVec
	Warnings          prometheus.Counter

	// Summary metrics
	SummaryDuration prometheus.Histogram

	// Job metrics
	JobsTotal  *prometheus.CounterVec
	ActiveJobs prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Total number of log files processed, by outcome.",
		}, []string{"status"}),
		SampleBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_blocks_total",
			Help:      "Total number of sample blocks segmented.",
		}),
		ReadingsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_extracted_total",
			Help:      "Total number of metric values extracted, by layout.",
		}, []string{"source"}),
		Warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Total number of report warnings emitted.",
		}),

		SummaryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summary_duration_seconds",
			Help:      "Duration of directory summaries in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of finished summary jobs, by status.",
		}, []string{"status"}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Number of summary jobs currently running.",
		}),
	}

	reg.MustRegister(
		m.FilesProcessed,
		m.SampleBlocks,
		m.ReadingsExtracted,
		m.Warnings,
		m.SummaryDuration,
		m.JobsTotal,
		m.ActiveJobs,
	)

	return m
}

// ObserveFile records one processed file.
func (m *Metrics) ObserveFile(status string, blocks int, extracted map[string]int) {
	if m == nil {
		return
	}
	m.FilesProcessed.WithLabelValues(status).Inc()
	m.SampleBlocks.Add(float64(blocks))
	for source, n := range extracted {
		m.ReadingsExtracted.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveWarnings records emitted report warnings.
func (m *Metrics) ObserveWarnings(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Warnings.Add(float64(n))
}

// ObserveSummary records the duration of one directory summary.
func (m *Metrics) ObserveSummary(d time.Duration) {
	if m == nil {
		return
	}
	m.SummaryDuration.Observe(d.Seconds())
}

// JobStarted marks a job as running.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

// JobFinished marks a job as done with the given status.
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
	m.JobsTotal.WithLabelValues(status).Inc()
}
