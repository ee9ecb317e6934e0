// Package kafka backs export topics with Apache Kafka via confluent-kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/Log-Tools/commerce-events-export/internal/credentials"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

// Producer interface abstracts Kafka producer
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// AdminClient interface abstracts the Kafka admin operations used for provisioning
type AdminClient interface {
	DescribeTopics(ctx context.Context, topics kafka.TopicCollection, options ...kafka.DescribeTopicsAdminOption) (kafka.DescribeTopicsResult, error)
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	Close()
}

// TopicSpec describes how a missing topic is created
type TopicSpec struct {
	Partitions        int
	ReplicationFactor int
	Config            map[string]string
}

// Connector opens a producer and an admin client sharing one connection.
type Connector struct {
	Brokers          string
	Acks             string
	FlushTimeoutMs   int
	OperationTimeout time.Duration
	Spec             TopicSpec

	// ProducerConfig is merged last into the librdkafka configuration
	ProducerConfig map[string]interface{}

	Logger logrus.FieldLogger
}

func (c *Connector) Open(_ context.Context, creds credentials.Credentials, name string) (topic.Topic, error) {
	if c.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	cfg := kafka.ConfigMap{
		"bootstrap.servers": c.Brokers,
		"client.id":         creds.ProjectID,
		"acks":              c.acks(),
	}
	if creds.Username != "" {
		cfg["security.protocol"] = "SASL_SSL"
		cfg["sasl.mechanisms"] = "PLAIN"
		cfg["sasl.username"] = creds.Username
		cfg["sasl.password"] = creds.Password
	}
	for key, value := range c.ProducerConfig {
		cfg[key] = value
	}

	producer, err := kafka.NewProducer(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	admin, err := kafka.NewAdminClientFromProducer(producer)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to create Kafka admin client: %w", err)
	}

	return NewTopic(name, producer, admin, *c), nil
}

func (c *Connector) acks() string {
	if c.Acks == "" {
		return "all"
	}
	return c.Acks
}

// Topic publishes to a single Kafka topic. It owns its producer and admin client.
type Topic struct {
	name     string
	producer Producer
	admin    AdminClient
	cfg      Connector
	logger   logrus.FieldLogger
}

// NewTopic wires an existing producer and admin client into a topic handle.
func NewTopic(name string, producer Producer, admin AdminClient, cfg Connector) *Topic {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	t := &Topic{name: name, producer: producer, admin: admin, cfg: cfg, logger: logger}

	// Per-message delivery reports go to their own channels; anything left on
	// the shared channel is a client-level error worth seeing.
	go t.handleProducerEvents(producer.Events())

	return t
}

func (t *Topic) Name() string { return t.name }

// Probe describes the topic; an unknown topic maps to topic.ErrNotFound.
func (t *Topic) Probe(ctx context.Context) error {
	result, err := t.admin.DescribeTopics(ctx, kafka.NewTopicCollectionOfTopicNames([]string{t.name}),
		kafka.SetAdminRequestTimeout(t.operationTimeout()))
	if err != nil {
		return classify(err)
	}
	for _, desc := range result.TopicDescriptions {
		if desc.Name != t.name {
			continue
		}
		if desc.Error.Code() == kafka.ErrNoError {
			return nil
		}
		return classify(desc.Error)
	}
	return fmt.Errorf("%w: no description returned for %s", topic.ErrNotFound, t.name)
}

// Create creates the topic with the configured partitions and settings.
func (t *Topic) Create(ctx context.Context) error {
	spec := kafka.TopicSpecification{
		Topic:             t.name,
		NumPartitions:     t.cfg.Spec.Partitions,
		ReplicationFactor: t.cfg.Spec.ReplicationFactor,
		Config:            t.cfg.Spec.Config,
	}
	if spec.NumPartitions <= 0 {
		spec.NumPartitions = 1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = 1
	}

	results, err := t.admin.CreateTopics(ctx, []kafka.TopicSpecification{spec},
		kafka.SetAdminOperationTimeout(t.operationTimeout()))
	if err != nil {
		return classify(err)
	}
	for _, res := range results {
		if res.Topic != t.name {
			continue
		}
		if res.Error.Code() == kafka.ErrNoError {
			return nil
		}
		return classify(res.Error)
	}
	return fmt.Errorf("CreateTopics returned no result for %s", t.name)
}

// Publish produces one message and waits for its delivery report.
func (t *Topic) Publish(ctx context.Context, data []byte) (string, error) {
	deliveryChan := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &t.name, Partition: kafka.PartitionAny},
		Value:          data,
	}
	if err := t.producer.Produce(msg, deliveryChan); err != nil {
		return "", fmt.Errorf("failed to enqueue message to %s: %w", t.name, err)
	}

	select {
	case e := <-deliveryChan:
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				return "", fmt.Errorf("delivery to %s failed: %w", t.name, ev.TopicPartition.Error)
			}
			return fmt.Sprintf("%s[%d]@%v", t.name, ev.TopicPartition.Partition, ev.TopicPartition.Offset), nil
		case kafka.Error:
			return "", fmt.Errorf("delivery to %s failed: %w", t.name, ev)
		default:
			return "", fmt.Errorf("unexpected delivery event for %s: %v", t.name, e)
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close flushes outstanding messages, then closes the admin client and producer.
func (t *Topic) Close() error {
	var err error
	if remaining := t.producer.Flush(t.flushTimeoutMs()); remaining > 0 {
		err = fmt.Errorf("%d messages not delivered to %s before close", remaining, t.name)
	}
	t.admin.Close()
	t.producer.Close()
	return err
}

func (t *Topic) handleProducerEvents(events chan kafka.Event) {
	for e := range events {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				t.logger.WithField("topic", t.name).WithError(ev.TopicPartition.Error).Error("❌ Delivery failed")
			}
		case kafka.Error:
			t.logger.WithField("topic", t.name).WithError(ev).Error("❌ Kafka producer error")
		}
	}
}

func (t *Topic) operationTimeout() time.Duration {
	if t.cfg.OperationTimeout <= 0 {
		return 30 * time.Second
	}
	return t.cfg.OperationTimeout
}

func (t *Topic) flushTimeoutMs() int {
	if t.cfg.FlushTimeoutMs <= 0 {
		return 30000
	}
	return t.cfg.FlushTimeoutMs
}

func classify(err error) error {
	var kerr kafka.Error
	if !errors.As(err, &kerr) {
		return err
	}
	switch kerr.Code() {
	case kafka.ErrUnknownTopicOrPart, kafka.ErrUnknownTopic:
		return fmt.Errorf("%w: %w", topic.ErrNotFound, err)
	case kafka.ErrTopicAlreadyExists:
		return fmt.Errorf("%w: %w", topic.ErrAlreadyExists, err)
	default:
		return err
	}
}
