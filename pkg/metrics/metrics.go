package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SalesRecorded tracks sales committed to the local store, the
	// terminal's primary throughput signal.
	SalesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_sales_recorded_total",
		Help: "Total number of sales committed to the local store",
	})

	// SyncDeliveries tracks per-record outcomes of drain passes.
	// status: delivered (remote acked, queue entry removed) or retry
	// (remote rejection or transport failure, entry retained)
	SyncDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_sync_deliveries_total",
		Help: "Per-record delivery outcomes of sync drain passes",
	}, []string{"status", "terminal_id"})

	// DrainDuration measures how long a full drain pass takes
	DrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kiosk_sync_drain_duration_seconds",
		Help:    "Duration of a sync drain pass in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// QueueBacklog is the number of sales awaiting remote acknowledgment.
	// This is the primary indicator of how far behind the terminal is.
	QueueBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_sync_queue_backlog",
		Help: "Current number of pending entries in the sync queue",
	})

	// ConnectivityStatus is 1 while the remote endpoint is reachable, 0
	// while the terminal is operating offline.
	ConnectivityStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_connectivity_online",
		Help: "Connectivity status (1 online, 0 offline)",
	})
)
