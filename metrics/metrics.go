package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ListingsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propsync_listings_processed_total",
			Help: "Listings processed by outcome",
		},
		[]string{"source", "outcome"}, // new, updated, unchanged, error
	)

	ImagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propsync_images_total",
			Help: "Image operations by result",
		},
		[]string{"result"}, // downloaded, deleted, error
	)

	ListingsDeactivated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propsync_listings_deactivated_total",
			Help: "Listings marked inactive because the source stopped returning them",
		},
	)

	ChangeRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propsync_change_records_total",
			Help: "Field-level change records written",
		},
	)

	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propsync_runs_total",
			Help: "Sync runs by terminal status",
		},
		[]string{"source", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "propsync_run_duration_seconds",
			Help:    "Wall time of sync runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"source"},
	)

	OrphanedRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propsync_orphaned_runs_total",
			Help: "Runs found stuck in running state and closed as error",
		},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propsync_upstream_requests_total",
			Help: "Requests to the listing API by result",
		},
		[]string{"source", "result"}, // ok, error, rejected
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "propsync_upstream_breaker_state",
			Help: "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)
)
