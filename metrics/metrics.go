// Package metrics exposes Prometheus metrics for the ingest pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calmerge_ingest_runs_total",
		Help: "Total number of ingest runs, labelled by source format and status.",
	}, []string{"format", "status"})

	EventsComposed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calmerge_events_composed_total",
		Help: "Total number of events written during compose runs.",
	})

	RecordsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calmerge_records_rejected_total",
		Help: "Total number of raw records rejected during processing.",
	})

	RecordsExcluded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calmerge_records_excluded_total",
		Help: "Total number of raw records dropped by exclusion rules.",
	})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "calmerge_ingest_duration_ms",
		Help:    "End-to-end ingest run latency in milliseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calmerge_exports_total",
		Help: "Total number of calendar exports, labelled by format.",
	}, []string{"format"})

	WSNotices = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calmerge_ws_notices_total",
		Help: "Total number of change notices broadcast to websocket clients.",
	})
)
