package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, gauges, and histograms exposed in
// serve mode.
type Metrics struct {
	RefreshRuns      prometheus.Counter
	RefreshFailures  prometheus.Counter
	FetchFailures    *prometheus.CounterVec // labels: feed={nas,metar,stations}
	AirportsByStatus *prometheus.GaugeVec   // labels: status={OK,IMPACT,CLOSED}
	RunDuration      prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RefreshRuns,
		m.RefreshFailures,
		m.FetchFailures,
		m.AirportsByStatus,
		m.RunDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RefreshRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pa_status",
			Name:      "refresh_runs_total",
			Help:      "Total completed refresh runs.",
		}),
		RefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pa_status",
			Name:      "refresh_failures_total",
			Help:      "Total refresh runs that failed to write the snapshot.",
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pa_status",
			Name:      "fetch_failures_total",
			Help:      "Remote feed fetches that exhausted all retries, by feed.",
		}, []string{"feed"}),
		AirportsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pa_status",
			Name:      "airports_by_status",
			Help:      "Airports in the latest snapshot, by overall status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pa_status",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete refresh run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}
