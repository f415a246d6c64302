// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks sync runs by terminal status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by terminal status",
		},
		[]string{"status"},
	)

	// RunDuration tracks completed sync run duration in seconds
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of completed sync runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// CardsWritten tracks cards written to the store
	CardsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "cards_written_total",
			Help:      "Total number of cards written to the store",
		},
	)

	// CardsSkipped tracks cards skipped because their fingerprint was unchanged
	CardsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "cards_skipped_total",
			Help:      "Total number of cards skipped as unchanged",
		},
	)

	// BatchErrors tracks failed batches
	BatchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "batch_errors_total",
			Help:      "Total number of batches that failed and were rolled back",
		},
	)

	// EventsPublished tracks card change events published to Kafka
	EventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of card change events published",
		},
	)
)
