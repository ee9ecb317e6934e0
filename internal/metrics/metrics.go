package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Batch export metrics
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_export_batches_total",
			Help: "Total number of export batches by outcome",
		},
		[]string{"outcome"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "event_export_batch_duration_seconds",
			Help:    "Time taken to publish a whole batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_export_events_published_total",
			Help: "Total number of events published to the export topic",
		},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_export_events_rejected_total",
			Help: "Total number of events dropped before publishing",
		},
		[]string{"reason"},
	)

	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_export_publish_failures_total",
			Help: "Total number of individual publish calls that failed",
		},
	)

	// Provisioning metrics
	ProvisionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_export_provision_total",
			Help: "Topic provisioning attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Source worker metrics
	SourceDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_export_source_decode_errors_total",
			Help: "Total number of source messages that could not be decoded",
		},
	)

	BatchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_export_batch_retries_total",
			Help: "Total number of times a batch was re-submitted after a retryable failure",
		},
	)
)

// Outcome label values
const (
	OutcomeSuccess  = "success"
	OutcomeRetry    = "retry"
	OutcomeEmpty    = "empty"
	OutcomeExisting = "existing"
	OutcomeCreated  = "created"
	OutcomeRaced    = "raced"
	OutcomeFailed   = "failed"
)
