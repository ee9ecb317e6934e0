package export

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Log-Tools/commerce-events-export/internal/events"
	"github.com/Log-Tools/commerce-events-export/internal/metrics"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

// Exporter publishes batches of raw events to a provisioned topic.
// It holds no per-batch state and may be shared by concurrent callers.
type Exporter struct {
	logger logrus.FieldLogger
}

// NewExporter creates an exporter that logs through logger.
func NewExporter(logger logrus.FieldLogger) *Exporter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Exporter{logger: logger}
}

// ExportBatch transforms every event and publishes one message per event,
// all concurrently. Every publish is awaited; if any fails the whole batch
// fails with a *RetryableExportError and nothing is reported as committed.
//
// Events without a uuid, or whose message cannot be encoded, are rejected
// individually and do not fail the batch.
func (e *Exporter) ExportBatch(ctx context.Context, handle topic.Handle, batch []events.RawEvent) error {
	if handle == nil {
		return configErrorf("no topic provisioned, export called before Provision")
	}

	payloads := e.encode(batch, handle.Name())
	if len(payloads) == 0 {
		metrics.BatchesTotal.WithLabelValues(metrics.OutcomeEmpty).Inc()
		e.logger.WithField("topic", handle.Name()).Debugf("Nothing to publish for batch of %d", len(batch))
		return nil
	}

	// Once issued, a publish is always awaited to settlement; cancelling the
	// caller's context must not abandon messages the client already holds.
	publishCtx := context.WithoutCancel(ctx)

	start := time.Now()
	errs := make([]error, len(payloads))

	var wg sync.WaitGroup
	for i, payload := range payloads {
		wg.Add(1)
		go func(i int, payload []byte) {
			defer wg.Done()
			if _, err := handle.Publish(publishCtx, payload); err != nil {
				errs[i] = err
			}
		}(i, payload)
	}
	wg.Wait()

	elapsed := time.Since(start)

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}

	if failed > 0 {
		metrics.PublishFailures.Add(float64(failed))
		metrics.BatchesTotal.WithLabelValues(metrics.OutcomeRetry).Inc()

		exportErr := &RetryableExportError{
			Topic:  handle.Name(),
			Events: len(payloads),
			Failed: failed,
			Err:    errors.Join(errs...),
		}
		e.logger.WithFields(logrus.Fields{
			"topic":  handle.Name(),
			"events": len(payloads),
			"failed": failed,
		}).WithError(exportErr.Err).Errorf("❌ Error publishing %d %s to %s", len(payloads), pluralEvents(len(payloads)), handle.Name())
		return exportErr
	}

	metrics.BatchesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.BatchDuration.Observe(elapsed.Seconds())
	metrics.EventsPublished.Add(float64(len(payloads)))

	e.logger.WithFields(logrus.Fields{
		"topic":       handle.Name(),
		"events":      len(payloads),
		"duration_ms": elapsed.Milliseconds(),
	}).Infof("Published %d %s to %s. Took %.3f seconds.", len(payloads), pluralEvents(len(payloads)), handle.Name(), elapsed.Seconds())
	return nil
}

func (e *Exporter) encode(batch []events.RawEvent, topicName string) [][]byte {
	payloads := make([][]byte, 0, len(batch))
	for i, raw := range batch {
		if raw.UUID == "" {
			metrics.EventsRejected.WithLabelValues("missing_uuid").Inc()
			e.logger.WithFields(logrus.Fields{
				"topic": topicName,
				"index": i,
				"event": raw.Event,
			}).Warn("⚠️ Rejecting event without uuid")
			continue
		}

		data, err := events.Transform(raw).Marshal()
		if err != nil {
			metrics.EventsRejected.WithLabelValues("encode").Inc()
			e.logger.WithFields(logrus.Fields{
				"topic": topicName,
				"uuid":  raw.UUID,
			}).WithError(err).Warn("⚠️ Rejecting event that could not be encoded")
			continue
		}
		payloads = append(payloads, data)
	}
	return payloads
}
