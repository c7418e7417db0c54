package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// download and aggregation pipeline.
type Metrics struct {
	DownloadsTotal     *prometheus.CounterVec // labels: outcome={complete,failed}
	DownloadRetries    prometheus.Counter
	DownloadsInFlight  prometheus.Gauge
	DownloadDuration   prometheus.Histogram
	ArchiveBytes       prometheus.Histogram
	RemotePollsTotal   prometheus.Counter
	BatchRunning       prometheus.Gauge
	FieldsAggregated   prometheus.Counter
	AggregationGaps    prometheus.Counter
	HazardRecords      prometheus.Counter
	HazardSinkEnabled  prometheus.Gauge
	HazardSinkMessages prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DownloadsTotal,
		m.DownloadRetries,
		m.DownloadsInFlight,
		m.DownloadDuration,
		m.ArchiveBytes,
		m.RemotePollsTotal,
		m.BatchRunning,
		m.FieldsAggregated,
		m.AggregationGaps,
		m.HazardRecords,
		m.HazardSinkEnabled,
		m.HazardSinkMessages,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DownloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "downloads_total",
			Help:      "Sub-request downloads reaching a terminal state, by outcome.",
		}, []string{"outcome"}),
		DownloadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "download_retries_total",
			Help:      "Transient sub-request failures that were re-enqueued.",
		}),
		DownloadsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climate_etl",
			Name:      "downloads_in_flight",
			Help:      "Sub-requests currently held by a retrieval worker.",
		}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climate_etl",
			Name:      "download_duration_seconds",
			Help:      "Duration of a complete sub-request attempt, submit through rename.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}),
		ArchiveBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climate_etl",
			Name:      "archive_bytes",
			Help:      "Size of downloaded raw archives in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1<<20, 4, 8),
		}),
		RemotePollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "remote_polls_total",
			Help:      "Polls of the remote job queue while waiting for archives.",
		}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climate_etl",
			Name:      "batch_running",
			Help:      "1 while a download batch is being driven, 0 otherwise.",
		}),
		FieldsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "fields_aggregated_total",
			Help:      "Grid fields reduced to per-district rows.",
		}),
		AggregationGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "aggregation_gaps_total",
			Help:      "Districts resolved via the nearest-cell fallback.",
		}),
		HazardRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "hazard_records_total",
			Help:      "Hazard records written to the output table.",
		}),
		HazardSinkEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climate_etl",
			Name:      "hazard_sink_enabled",
			Help:      "1 when the Kafka hazard sink is enabled, 0 otherwise.",
		}),
		HazardSinkMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_etl",
			Name:      "hazard_sink_messages_total",
			Help:      "Hazard records published to the Kafka sink.",
		}),
	}
}
