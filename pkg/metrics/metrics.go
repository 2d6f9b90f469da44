// Package metrics provides Prometheus metrics for the SafeSwap listing service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal tracks listing submissions by outcome
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safeswap",
			Subsystem: "ingestion",
			Name:      "submissions_total",
			Help:      "Total number of listing submissions by outcome",
		},
		[]string{"outcome"}, // created | blocked | validation_error | persistence_error
	)

	// SubmissionDuration tracks end-to-end submission handling duration
	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "safeswap",
			Subsystem: "ingestion",
			Name:      "submission_duration_seconds",
			Help:      "Duration of listing submission handling in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	// ResolutionsTotal tracks recall resolutions by verdict and source
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safeswap",
			Subsystem: "recall",
			Name:      "resolutions_total",
			Help:      "Total number of recall resolutions by verdict and source",
		},
		[]string{"verdict", "source"}, // source: cache | registry | skipped | degraded
	)

	// RegistryRequestsTotal tracks outbound recall registry lookups
	RegistryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "safeswap",
			Subsystem: "registry",
			Name:      "requests_total",
			Help:      "Total number of recall registry lookups by result",
		},
		[]string{"result"}, // hit | miss | unavailable
	)

	// RegistryRequestDuration tracks recall registry lookup duration
	RegistryRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "safeswap",
			Subsystem: "registry",
			Name:      "request_duration_seconds",
			Help:      "Duration of recall registry lookups in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// RecallCacheWrites tracks write-through inserts into the recall store
	RecallCacheWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "safeswap",
			Subsystem: "recall",
			Name:      "cache_writes_total",
			Help:      "Total number of recall records written through to the store",
		},
	)
)
