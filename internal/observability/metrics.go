package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the aggregation service.
type Metrics struct {
	// Upstream feed metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: feed={telemetry,weather}, outcome={success,network_error,http_error,parse_error}
	UpstreamDuration *prometheus.HistogramVec // labels: feed={telemetry,weather}

	// Aggregation metrics.
	Aggregations        *prometheus.CounterVec // labels: outcome={success,failure}
	AggregationDuration prometheus.Histogram
	BalloonRecords      *prometheus.CounterVec // labels: snapshot={current,historical}
	MalformedPoints     prometheus.Counter
	HistoricalFailures  prometheus.Counter

	// Snapshot publishing metrics.
	SnapshotsPublished    prometheus.Counter
	SnapshotPublishErrors prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.Aggregations,
		m.AggregationDuration,
		m.BalloonRecords,
		m.MalformedPoints,
		m.HistoricalFailures,
		m.SnapshotsPublished,
		m.SnapshotPublishErrors,
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
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "balloon_weather",
			Name:      "upstream_requests_total",
			Help:      "Upstream feed requests by feed and outcome.",
		}, []string{"feed", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "balloon_weather",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}, []string{"feed"}),
		Aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "balloon_weather",
			Name:      "aggregations_total",
			Help:      "Combined /data aggregations by outcome.",
		}, []string{"outcome"}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "balloon_weather",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of a complete fetch-sanitize-transform-merge cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}),
		BalloonRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "balloon_weather",
			Name:      "balloon_records_total",
			Help:      "Balloon records emitted, by snapshot kind.",
		}, []string{"snapshot"}),
		MalformedPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "balloon_weather",
			Name:      "malformed_points_total",
			Help:      "Telemetry entries dropped because they were not [lat, lon, alt].",
		}),
		HistoricalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "balloon_weather",
			Name:      "historical_fetch_failures_total",
			Help:      "Historical snapshot fetches that contributed no records because they failed.",
		}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "balloon_weather",
			Name:      "snapshots_published_total",
			Help:      "Combined snapshots written to Kafka.",
		}),
		SnapshotPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "balloon_weather",
			Name:      "snapshot_publish_errors_total",
			Help:      "Combined snapshots that failed to publish.",
		}),
	}
}
