package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Log-Tools/commerce-events-export/internal/events"
	"github.com/Log-Tools/commerce-events-export/internal/metrics"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

const maxLineSize = 4 * 1024 * 1024

// ReplayStats summarises a replay run
type ReplayStats struct {
	Lines   int
	Skipped int
	Batches int
}

// Replay exports newline-delimited raw events from r in batches of batchSize,
// retrying each batch with policy. Blank lines are ignored and undecodable
// lines are skipped.
func Replay(ctx context.Context, r io.Reader, batchSize int, exporter Exporter, handle topic.Handle, policy Policy, logger logrus.FieldLogger) (ReplayStats, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	var stats ReplayStats
	batch := make([]events.RawEvent, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := Retry(ctx, policy, func(ctx context.Context) error {
			return exporter.ExportBatch(ctx, handle, batch)
		})
		if err != nil {
			return fmt.Errorf("failed to export batch %d: %w", stats.Batches+1, err)
		}
		stats.Batches++
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		raw, err := events.DecodeRawEvent(line)
		if err != nil {
			stats.Skipped++
			metrics.SourceDecodeErrors.Inc()
			logger.WithField("line", stats.Lines).WithError(err).Warn("⚠️ Skipping undecodable line")
			continue
		}

		batch = append(batch, raw)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read events: %w", err)
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}
