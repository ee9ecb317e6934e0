package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Log-Tools/commerce-events-export/internal/config"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
	jstopic "github.com/Log-Tools/commerce-events-export/internal/topic/jetstream"
	kafkatopic "github.com/Log-Tools/commerce-events-export/internal/topic/kafka"
	ostopic "github.com/Log-Tools/commerce-events-export/internal/topic/opensearch"
	pubsubtopic "github.com/Log-Tools/commerce-events-export/internal/topic/pubsub"
)

func connectorFor(cfg *config.Config, logger logrus.FieldLogger) (topic.Connector, error) {
	switch cfg.Transport {
	case config.TransportPubSub:
		return &pubsubtopic.Connector{EmulatorHost: cfg.PubSub.EmulatorHost}, nil
	case config.TransportKafka:
		return &kafkatopic.Connector{
			Brokers:          cfg.Kafka.Brokers,
			Acks:             cfg.Kafka.Acks,
			FlushTimeoutMs:   cfg.Kafka.FlushTimeoutMs,
			OperationTimeout: cfg.Kafka.OperationTimeout,
			Spec: kafkatopic.TopicSpec{
				Partitions:        cfg.Topic.Partitions,
				ReplicationFactor: cfg.Topic.ReplicationFactor,
				Config:            cfg.Topic.Config,
			},
			Logger: logger,
		}, nil
	case config.TransportJetStream:
		return &jstopic.Connector{
			URL:     cfg.JetStream.URL,
			Timeout: cfg.JetStream.Timeout,
			Spec: jstopic.StreamSpec{
				MaxAge:   cfg.JetStream.MaxAge,
				Storage:  cfg.JetStream.Storage,
				Replicas: cfg.JetStream.Replicas,
			},
		}, nil
	case config.TransportOpenSearch:
		return &ostopic.Connector{
			Addresses: cfg.OpenSearch.Addresses,
			Spec: ostopic.IndexSpec{
				Shards:   cfg.Topic.Partitions,
				Replicas: cfg.Topic.ReplicationFactor - 1,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
