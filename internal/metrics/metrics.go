package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal tracks individual attempts of retried operations
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mograph_attempts_total",
			Help: "Total number of attempts of external calls",
		},
		[]string{"op"},
	)

	// RetriesTotal tracks scheduled retries per operation and error category
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mograph_retries_total",
			Help: "Total number of scheduled retries",
		},
		[]string{"op", "category"},
	)

	// ExhaustedTotal tracks terminal operation failures
	ExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mograph_exhausted_total",
			Help: "Total number of operations that failed terminally",
		},
		[]string{"op", "category"},
	)

	// JobsTotal tracks batch jobs by final status
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mograph_jobs_total",
			Help: "Total number of batch jobs by final status",
		},
		[]string{"status"},
	)

	// JobDuration tracks end-to-end job duration
	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mograph_job_duration_seconds",
			Help:    "End-to-end duration of one pipeline job",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	// IndexEntries tracks the size of the content-dedup index
	IndexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mograph_index_entries",
			Help: "Number of entries in the content-dedup index",
		},
	)
)
