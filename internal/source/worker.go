// Package source feeds the exporter with batches of raw events read from Kafka.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Log-Tools/commerce-events-export/internal/events"
	"github.com/Log-Tools/commerce-events-export/internal/metrics"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

// Consumer defines the Kafka consumer operations the worker uses.
// *kafka.Consumer satisfies it.
type Consumer interface {
	Subscribe(topic string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
	Close() error
}

// Exporter publishes one batch. *export.Exporter satisfies it.
type Exporter interface {
	ExportBatch(ctx context.Context, handle topic.Handle, batch []events.RawEvent) error
}

// Config contains the batching settings of a worker
type Config struct {
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Retry        Policy
}

// ConsumerConfig contains the settings of the Kafka consumer
type ConsumerConfig struct {
	Brokers         string
	ConsumerGroup   string
	AutoOffsetReset string
	Extra           map[string]interface{}
}

// NewKafkaConsumer creates a consumer with auto commit disabled; the worker
// commits offsets itself once a batch is exported.
func NewKafkaConsumer(cfg ConsumerConfig) (*kafka.Consumer, error) {
	kafkaConfig := kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.ConsumerGroup,
		"auto.offset.reset":  cfg.AutoOffsetReset,
		"enable.auto.commit": false,
	}
	for key, value := range cfg.Extra {
		kafkaConfig[key] = value
	}

	consumer, err := kafka.NewConsumer(&kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	return consumer, nil
}

// Worker reads raw events, exports them in batches and commits the consumed
// offsets only after the whole batch was published.
type Worker struct {
	cfg      Config
	consumer Consumer
	exporter Exporter
	handle   topic.Handle
	logger   logrus.FieldLogger
}

// NewWorker assembles a worker around a provisioned handle.
func NewWorker(cfg Config, consumer Consumer, exporter Exporter, handle topic.Handle, logger logrus.FieldLogger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Second
	}
	return &Worker{cfg: cfg, consumer: consumer, exporter: exporter, handle: handle, logger: logger}
}

// Run processes batches until ctx is done or a batch fails with a
// non-retryable error. A batch interrupted by shutdown is not committed and
// will be delivered again.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.consumer.Subscribe(w.cfg.Topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", w.cfg.Topic, err)
	}

	w.logger.WithFields(logrus.Fields{
		"topic":         w.cfg.Topic,
		"batch_size":    w.cfg.BatchSize,
		"batch_timeout": w.cfg.BatchTimeout,
	}).Info("🚀 Source worker started, waiting for events...")

	for {
		batch, offsets := w.collect(ctx)
		if ctx.Err() != nil {
			w.logger.Info("Context cancelled, stopping source worker")
			return nil
		}
		if len(offsets) == 0 {
			continue
		}

		if err := w.exportBatch(ctx, batch); err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Context cancelled, stopping source worker")
				return nil
			}
			return err
		}

		if _, err := w.consumer.CommitOffsets(offsets); err != nil {
			w.logger.WithError(err).Warn("⚠️ Failed to commit offsets, batch may be exported again")
		}
	}
}

func (w *Worker) exportBatch(ctx context.Context, batch []events.RawEvent) error {
	if len(batch) == 0 {
		return nil
	}

	log := w.logger.WithFields(logrus.Fields{
		"batch_id": uuid.NewString(),
		"events":   len(batch),
	})
	log.Debug("Exporting batch")

	policy := w.cfg.Retry
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		log.WithError(err).Warnf("🔄 Batch failed on attempt %d, retrying in %s", attempt, wait)
	}

	err := Retry(ctx, policy, func(ctx context.Context) error {
		return w.exporter.ExportBatch(ctx, w.handle, batch)
	})
	if err != nil {
		return fmt.Errorf("failed to export batch of %d events: %w", len(batch), err)
	}
	return nil
}

// collect reads until the batch is full or the batch timeout expires. It
// returns the decoded events and the offsets to commit for every message
// read, including the ones that could not be decoded.
func (w *Worker) collect(ctx context.Context) ([]events.RawEvent, []kafka.TopicPartition) {
	batch := make([]events.RawEvent, 0, w.cfg.BatchSize)
	next := make(map[partitionKey]kafka.TopicPartition)
	deadline := time.Now().Add(w.cfg.BatchTimeout)

	for len(batch) < w.cfg.BatchSize && ctx.Err() == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		msg, err := w.consumer.ReadMessage(min(remaining, time.Second))
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			w.logger.WithError(err).Warn("⚠️ Failed to read message")
			continue
		}

		tp := msg.TopicPartition
		key := partitionKey{partition: tp.Partition}
		if tp.Topic != nil {
			key.topic = *tp.Topic
		}
		next[key] = kafka.TopicPartition{Topic: tp.Topic, Partition: tp.Partition, Offset: tp.Offset + 1}

		raw, err := events.DecodeRawEvent(msg.Value)
		if err != nil {
			metrics.SourceDecodeErrors.Inc()
			w.logger.WithFields(logrus.Fields{
				"partition": tp.Partition,
				"offset":    tp.Offset,
			}).WithError(err).Warn("⚠️ Skipping undecodable message")
			continue
		}
		batch = append(batch, raw)
	}

	offsets := make([]kafka.TopicPartition, 0, len(next))
	for _, tp := range next {
		offsets = append(offsets, tp)
	}
	return batch, offsets
}

type partitionKey struct {
	topic     string
	partition int32
}
