package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Log-Tools/commerce-events-export/internal/credentials"
)

var overrideVars = []string{
	"EXPORT_TRANSPORT", "GCP_TOPIC_ID", "GCP_KEY_JSON", "PUBSUB_EMULATOR_HOST",
	"KAFKA_BROKERS", "NATS_URL", "OPENSEARCH_URL", "SOURCE_BROKERS", "SOURCE_TOPIC",
	"SOURCE_CONSUMER_GROUP", "SOURCE_BATCH_SIZE", "LOG_LEVEL", "HTTP_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range overrideVars {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, TransportPubSub, cfg.Transport)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.Source.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Source.BatchTimeout)
	assert.Equal(t, time.Second, cfg.Source.Retry.Initial)
	assert.Equal(t, time.Minute, cfg.Source.Retry.Max)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "event-export", cfg.Source.ConsumerGroup)
	assert.Empty(t, cfg.Topic.ID)
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
transport: kafka
topic:
  id: ZXhwb3J0LWV2ZW50cw==
  partitions: 6
  replication_factor: 3
  config:
    cleanup.policy: delete
    retention.ms: "604800000"
credentials:
  file: /etc/event-export/key.json
kafka:
  brokers: kafka-1:9092,kafka-2:9092
  operation_timeout: 10s
source:
  topic: Ingestion.Events
  batch_size: 250
  batch_timeout: 2s
  retry:
    initial: 500ms
    max: 30s
    max_attempts: 8
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, TransportKafka, cfg.Transport)
	assert.Equal(t, "ZXhwb3J0LWV2ZW50cw==", cfg.Topic.ID)
	assert.Equal(t, 6, cfg.Topic.Partitions)
	assert.Equal(t, 3, cfg.Topic.ReplicationFactor)
	assert.Equal(t, "delete", cfg.Topic.Config["cleanup.policy"])
	assert.Equal(t, "kafka-1:9092,kafka-2:9092", cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Second, cfg.Kafka.OperationTimeout)
	assert.Equal(t, 250, cfg.Source.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Source.BatchTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Source.Retry.Initial)
	assert.Equal(t, 30*time.Second, cfg.Source.Retry.Max)
	assert.Equal(t, 8, cfg.Source.Retry.MaxAttempts)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	// defaults still fill what the file leaves out
	assert.Equal(t, "all", cfg.Kafka.Acks)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
transport: pubsub
topic:
  id: b2xk
log_level: info
`)
	t.Setenv("GCP_TOPIC_ID", "bmV3")
	t.Setenv("GCP_KEY_JSON", `{"project_id":"p"}`)
	t.Setenv("EXPORT_TRANSPORT", "jetstream")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("OPENSEARCH_URL", "http://os-1:9200, http://os-2:9200")
	t.Setenv("SOURCE_BATCH_SIZE", "42")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bmV3", cfg.Topic.ID)
	assert.Equal(t, `{"project_id":"p"}`, cfg.Credentials.JSON)
	assert.Equal(t, TransportJetStream, cfg.Transport)
	assert.Equal(t, "nats://nats:4222", cfg.JetStream.URL)
	assert.Equal(t, []string{"http://os-1:9200", "http://os-2:9200"}, cfg.OpenSearch.Addresses)
	assert.Equal(t, 42, cfg.Source.BatchSize)
	assert.Equal(t, logrus.WarnLevel, cfg.Level())
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "transport: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = Load(writeConfig(t, "transport: smoke-signals"))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "kafka transport", mutate: func(c *Config) { c.Transport = TransportKafka }},
		{name: "jetstream memory storage", mutate: func(c *Config) {
			c.Transport = TransportJetStream
			c.JetStream.Storage = "memory"
		}},
		{name: "opensearch transport", mutate: func(c *Config) { c.Transport = TransportOpenSearch }},
		{name: "opensearch without addresses", mutate: func(c *Config) {
			c.Transport = TransportOpenSearch
			c.OpenSearch.Addresses = nil
		}, expectError: true},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "sqs" }, expectError: true},
		{name: "kafka without brokers", mutate: func(c *Config) {
			c.Transport = TransportKafka
			c.Kafka.Brokers = ""
		}, expectError: true},
		{name: "kafka with zero partitions", mutate: func(c *Config) {
			c.Transport = TransportKafka
			c.Topic.Partitions = 0
		}, expectError: true},
		{name: "jetstream bad storage", mutate: func(c *Config) {
			c.Transport = TransportJetStream
			c.JetStream.Storage = "tape"
		}, expectError: true},
		{name: "zero batch size", mutate: func(c *Config) { c.Source.BatchSize = 0 }, expectError: true},
		{name: "zero batch timeout", mutate: func(c *Config) { c.Source.BatchTimeout = 0 }, expectError: true},
		{name: "max backoff below initial", mutate: func(c *Config) {
			c.Source.Retry.Initial = time.Minute
			c.Source.Retry.Max = time.Second
		}, expectError: true},
		{name: "negative max attempts", mutate: func(c *Config) { c.Source.Retry.MaxAttempts = -1 }, expectError: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "chatty" }, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateSource(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.ValidateSource())

	cfg.Source.Topic = ""
	assert.ErrorContains(t, cfg.ValidateSource(), "source topic")
}

func TestConfig_CredentialSource(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		src, err := validConfig().CredentialSource()
		require.NoError(t, err)
		assert.Nil(t, src)
	})

	t.Run("inline json wins over file", func(t *testing.T) {
		cfg := validConfig()
		cfg.Credentials.JSON = `{"project_id":"p"}`
		cfg.Credentials.File = "/nope"

		src, err := cfg.CredentialSource()
		require.NoError(t, err)
		assert.Equal(t, credentials.StaticSource(`{"project_id":"p"}`), src)
	})

	t.Run("file", func(t *testing.T) {
		cfg := validConfig()
		cfg.Credentials.File = "/etc/key.json"

		src, err := cfg.CredentialSource()
		require.NoError(t, err)
		assert.Equal(t, credentials.FileSource{Path: "/etc/key.json"}, src)
	})

	t.Run("blob", func(t *testing.T) {
		cfg := validConfig()
		cfg.Credentials.Blob = &BlobConfig{
			AccountName: "commerce",
			AccessKey:   "c2VjcmV0LWtleQ==",
			Container:   "attachments",
			Blob:        "pubsub-key.json",
		}

		src, err := cfg.CredentialSource()
		require.NoError(t, err)
		assert.Equal(t, "blob commerce/attachments/pubsub-key.json", src.Describe())
	})

	t.Run("incomplete blob", func(t *testing.T) {
		cfg := validConfig()
		cfg.Credentials.Blob = &BlobConfig{AccountName: "commerce"}

		_, err := cfg.CredentialSource()
		assert.Error(t, err)
	})
}
