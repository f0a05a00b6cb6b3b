package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for a run.
type Metrics struct {
	DatasetsFetched *prometheus.CounterVec // labels: source={live,cache}
	DegradedAliases prometheus.Counter
	RowsProcessed   prometheus.Gauge
	RunDuration     prometheus.Histogram

	// Acquisition metrics.
	BatchRequests        prometheus.Counter
	BatchRequestDuration prometheus.Histogram
}

// NewMetrics creates and registers all run metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		DatasetsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazidx",
			Name:      "datasets_fetched_total",
			Help:      "Datasets acquired, by source (live API or cached snapshot).",
		}, []string{"source"}),
		DegradedAliases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazidx",
			Name:      "degraded_aliases_total",
			Help:      "Alias expressions that degraded to missing instead of evaluating.",
		}),
		RowsProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hazidx",
			Name:      "rows_processed",
			Help:      "Geographic rows in the merged table for the current run.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hazidx",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete acquisition-to-scores run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		BatchRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazidx",
			Name:      "batch_requests_total",
			Help:      "Variable-batch requests issued to the remote source.",
		}),
		BatchRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hazidx",
			Name:      "batch_request_duration_seconds",
			Help:      "Remote source request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	prometheus.MustRegister(
		m.DatasetsFetched,
		m.DegradedAliases,
		m.RowsProcessed,
		m.RunDuration,
		m.BatchRequests,
		m.BatchRequestDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		DatasetsFetched:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hazidx", Name: "datasets_fetched_total"}, []string{"source"}),
		DegradedAliases:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "hazidx", Name: "degraded_aliases_total"}),
		RowsProcessed:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "hazidx", Name: "rows_processed"}),
		RunDuration:          prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "hazidx", Name: "run_duration_seconds"}),
		BatchRequests:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "hazidx", Name: "batch_requests_total"}),
		BatchRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "hazidx", Name: "batch_request_duration_seconds"}),
	}
}
