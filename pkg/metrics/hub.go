package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HubMessages tracks the outcome of sale deliveries at the hub.
	// status: inserted, duplicate (id already in the system of record),
	// malformed, error
	HubMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_messages_total",
		Help: "Total number of sale messages processed by the hub",
	}, []string{"status", "terminal_id"})

	// HubIngestDuration tracks reception-to-commit latency per message
	HubIngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_ingest_duration_seconds",
		Help:    "Time taken to persist a sale from reception to Postgres commit",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)
