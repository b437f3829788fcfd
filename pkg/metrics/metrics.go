// Package metrics provides Prometheus metrics for the ghsync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks finished synchronization runs by outcome (ok, degraded, fatal)
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghsync",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of synchronization runs by outcome",
		},
		[]string{"outcome"},
	)

	// SyncRunDuration tracks run duration in seconds
	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ghsync",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of synchronization runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// SyncRunsInFlight tracks runs currently executing in this process
	SyncRunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ghsync",
			Subsystem: "sync",
			Name:      "runs_in_flight",
			Help:      "Number of synchronization runs currently executing",
		},
	)

	// SyncUnitsTotal tracks per-resource unit results
	SyncUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghsync",
			Subsystem: "sync",
			Name:      "units_total",
			Help:      "Total number of synchronization units by kind and status",
		},
		[]string{"kind", "status"},
	)

	// RecordsUpsertedTotal tracks records written per collection
	RecordsUpsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghsync",
			Subsystem: "store",
			Name:      "records_upserted_total",
			Help:      "Total number of records upserted by collection",
		},
		[]string{"collection"},
	)

	// APIPagesTotal tracks pages fetched from the GitHub API
	APIPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghsync",
			Subsystem: "github",
			Name:      "pages_total",
			Help:      "Total number of GitHub API pages fetched by resource",
		},
		[]string{"resource"},
	)

	// APIThrottleSeconds tracks time spent waiting between pages
	APIThrottleSeconds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghsync",
			Subsystem: "github",
			Name:      "throttle_seconds_total",
			Help:      "Total seconds spent waiting before continuation pages",
		},
		[]string{"reason"},
	)
)
