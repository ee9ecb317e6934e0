package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Log-Tools/commerce-events-export/internal/credentials"
)

// Supported export transports
const (
	TransportPubSub     = "pubsub"
	TransportKafka      = "kafka"
	TransportJetStream  = "jetstream"
	TransportOpenSearch = "opensearch"
)

// Config represents the event export configuration
type Config struct {
	// Transport backing the export topic: "pubsub", "kafka", "jetstream" or "opensearch"
	Transport string `yaml:"transport" env:"EXPORT_TRANSPORT" default:"pubsub"`

	// Export topic
	Topic TopicConfig `yaml:"topic"`

	// Where the credential blob comes from
	Credentials CredentialsConfig `yaml:"credentials"`

	PubSub     PubSubConfig     `yaml:"pubsub"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	JetStream  JetStreamConfig  `yaml:"jetstream"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`

	// Upstream batch source
	Source SourceConfig `yaml:"source"`

	// Ops HTTP server
	Server ServerConfig `yaml:"server"`

	// Logging configuration
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" default:"info"`
}

// TopicConfig identifies the export topic and how it is created when missing
type TopicConfig struct {
	// Base64 encoded topic name, as handed over by the plugin host
	ID string `yaml:"id" env:"GCP_TOPIC_ID"`

	// Creation settings. Partitions is the shard count for opensearch and
	// replication_factor counts the primary, as in Kafka.
	Partitions        int               `yaml:"partitions" default:"1"`
	ReplicationFactor int               `yaml:"replication_factor" default:"1"`
	Config            map[string]string `yaml:"config"`
}

// CredentialsConfig selects the credential blob source. The first one set wins,
// in the order json, file, blob.
type CredentialsConfig struct {
	// Raw blob contents
	JSON string `yaml:"json" env:"GCP_KEY_JSON"`

	// Path to a file holding the blob
	File string `yaml:"file"`

	// Azure Blob attachment holding the blob
	Blob *BlobConfig `yaml:"blob"`
}

// BlobConfig locates a credential attachment in Azure Blob Storage
type BlobConfig struct {
	AccountName string `yaml:"account_name"`
	AccessKey   string `yaml:"access_key"`
	Container   string `yaml:"container"`
	Blob        string `yaml:"blob"`
	ServiceURL  string `yaml:"service_url"`
}

// PubSubConfig contains Google Cloud Pub/Sub settings
type PubSubConfig struct {
	EmulatorHost string `yaml:"emulator_host" env:"PUBSUB_EMULATOR_HOST"`
}

// KafkaConfig contains Kafka producer settings for the kafka transport
type KafkaConfig struct {
	Brokers          string        `yaml:"brokers" env:"KAFKA_BROKERS" default:"localhost:9092"`
	Acks             string        `yaml:"acks" default:"all"`
	FlushTimeoutMs   int           `yaml:"flush_timeout_ms" default:"30000"`
	OperationTimeout time.Duration `yaml:"operation_timeout" default:"30s"`
}

// JetStreamConfig contains NATS JetStream settings for the jetstream transport
type JetStreamConfig struct {
	URL      string        `yaml:"url" env:"NATS_URL" default:"nats://127.0.0.1:4222"`
	Timeout  time.Duration `yaml:"timeout" default:"5s"`
	MaxAge   time.Duration `yaml:"max_age"`
	Storage  string        `yaml:"storage" default:"file"`
	Replicas int           `yaml:"replicas" default:"1"`
}

// OpenSearchConfig contains the cluster settings for the opensearch transport
type OpenSearchConfig struct {
	Addresses []string `yaml:"addresses" env:"OPENSEARCH_URL" default:"http://localhost:9200"`
}

// SourceConfig contains the settings of the Kafka consumer feeding batches
type SourceConfig struct {
	Brokers         string        `yaml:"brokers" env:"SOURCE_BROKERS" default:"localhost:9092"`
	Topic           string        `yaml:"topic" env:"SOURCE_TOPIC" default:"Ingestion.Events"`
	ConsumerGroup   string        `yaml:"consumer_group" env:"SOURCE_CONSUMER_GROUP" default:"event-export"`
	AutoOffsetReset string        `yaml:"auto_offset_reset" default:"earliest"`
	BatchSize       int           `yaml:"batch_size" default:"100"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" default:"5s"`
	Retry           RetryConfig   `yaml:"retry"`
}

// RetryConfig contains the backoff used when a batch fails with a retryable error
type RetryConfig struct {
	Initial time.Duration `yaml:"initial" default:"1s"`
	Max     time.Duration `yaml:"max" default:"1m"`

	// Zero retries forever
	MaxAttempts int `yaml:"max_attempts"`
}

// ServerConfig contains the ops HTTP server settings
type ServerConfig struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR" default:":8080"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportPubSub:
	case TransportKafka:
		if c.Kafka.Brokers == "" {
			return fmt.Errorf("kafka transport requires brokers")
		}
		if c.Topic.Partitions <= 0 {
			return fmt.Errorf("partitions must be positive")
		}
		if c.Topic.ReplicationFactor <= 0 {
			return fmt.Errorf("replication_factor must be positive")
		}
	case TransportJetStream:
		if c.JetStream.URL == "" {
			return fmt.Errorf("jetstream transport requires url")
		}
		if s := strings.ToLower(c.JetStream.Storage); s != "file" && s != "memory" {
			return fmt.Errorf("invalid jetstream storage %q, must be 'file' or 'memory'", c.JetStream.Storage)
		}
	case TransportOpenSearch:
		if len(c.OpenSearch.Addresses) == 0 {
			return fmt.Errorf("opensearch transport requires addresses")
		}
		if c.Topic.Partitions <= 0 {
			return fmt.Errorf("partitions must be positive")
		}
	default:
		return fmt.Errorf("invalid transport %q, must be 'pubsub', 'kafka', 'jetstream' or 'opensearch'", c.Transport)
	}

	if c.Source.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.Source.BatchTimeout <= 0 {
		return fmt.Errorf("batch_timeout must be positive")
	}
	if c.Source.Retry.Initial <= 0 {
		return fmt.Errorf("retry initial backoff must be positive")
	}
	if c.Source.Retry.Max < c.Source.Retry.Initial {
		return fmt.Errorf("retry max backoff cannot be less than initial")
	}
	if c.Source.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max_attempts cannot be negative")
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ValidateSource checks the settings needed to consume from the source topic
func (c *Config) ValidateSource() error {
	if c.Source.Brokers == "" {
		return fmt.Errorf("source brokers are required")
	}
	if c.Source.Topic == "" {
		return fmt.Errorf("source topic is required")
	}
	if c.Source.ConsumerGroup == "" {
		return fmt.Errorf("source consumer_group is required")
	}
	return nil
}

// CredentialSource returns the configured credential blob source, or nil when
// none is configured. A missing blob is reported by provisioning, not here.
func (c *Config) CredentialSource() (credentials.Source, error) {
	switch {
	case c.Credentials.JSON != "":
		return credentials.StaticSource(c.Credentials.JSON), nil
	case c.Credentials.File != "":
		return credentials.FileSource{Path: c.Credentials.File}, nil
	case c.Credentials.Blob != nil:
		b := c.Credentials.Blob
		src, err := credentials.NewBlobSource(credentials.BlobAttachment{
			AccountName: b.AccountName,
			AccessKey:   b.AccessKey,
			Container:   b.Container,
			Blob:        b.Blob,
			ServiceURL:  b.ServiceURL,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, nil
	}
}

// Level returns the parsed log level
func (c *Config) Level() logrus.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func parseLevel(value string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(value)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log_level %q: %w", value, err)
	}
	return level, nil
}

// Load reads the YAML file at path, when given, then applies environment
// overrides and defaults and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Transport = getEnv("EXPORT_TRANSPORT", cfg.Transport)
	cfg.Topic.ID = getEnv("GCP_TOPIC_ID", cfg.Topic.ID)
	cfg.Credentials.JSON = getEnv("GCP_KEY_JSON", cfg.Credentials.JSON)
	cfg.PubSub.EmulatorHost = getEnv("PUBSUB_EMULATOR_HOST", cfg.PubSub.EmulatorHost)
	cfg.Kafka.Brokers = getEnv("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.JetStream.URL = getEnv("NATS_URL", cfg.JetStream.URL)
	if addrs := parseStringSliceEnv("OPENSEARCH_URL"); len(addrs) > 0 {
		cfg.OpenSearch.Addresses = addrs
	}
	cfg.Source.Brokers = getEnv("SOURCE_BROKERS", cfg.Source.Brokers)
	cfg.Source.Topic = getEnv("SOURCE_TOPIC", cfg.Source.Topic)
	cfg.Source.ConsumerGroup = getEnv("SOURCE_CONSUMER_GROUP", cfg.Source.ConsumerGroup)
	cfg.Source.BatchSize = parseIntEnv("SOURCE_BATCH_SIZE", cfg.Source.BatchSize)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Server.Addr = getEnv("HTTP_ADDR", cfg.Server.Addr)
}

// Helper functions for parsing environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseStringSliceEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return defaultValue
}

func applyDefaults(cfg *Config) {
	if cfg.Transport == "" {
		cfg.Transport = TransportPubSub
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Topic.Partitions == 0 {
		cfg.Topic.Partitions = 1
	}
	if cfg.Topic.ReplicationFactor == 0 {
		cfg.Topic.ReplicationFactor = 1
	}
	if cfg.Kafka.Brokers == "" {
		cfg.Kafka.Brokers = "localhost:9092"
	}
	if cfg.Kafka.Acks == "" {
		cfg.Kafka.Acks = "all"
	}
	if cfg.Kafka.FlushTimeoutMs == 0 {
		cfg.Kafka.FlushTimeoutMs = 30000
	}
	if cfg.Kafka.OperationTimeout == 0 {
		cfg.Kafka.OperationTimeout = 30 * time.Second
	}
	if cfg.JetStream.URL == "" {
		cfg.JetStream.URL = "nats://127.0.0.1:4222"
	}
	if cfg.JetStream.Timeout == 0 {
		cfg.JetStream.Timeout = 5 * time.Second
	}
	if cfg.JetStream.Storage == "" {
		cfg.JetStream.Storage = "file"
	}
	if cfg.JetStream.Replicas == 0 {
		cfg.JetStream.Replicas = 1
	}
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{"http://localhost:9200"}
	}
	if cfg.Source.Brokers == "" {
		cfg.Source.Brokers = "localhost:9092"
	}
	if cfg.Source.Topic == "" {
		cfg.Source.Topic = "Ingestion.Events"
	}
	if cfg.Source.ConsumerGroup == "" {
		cfg.Source.ConsumerGroup = "event-export"
	}
	if cfg.Source.AutoOffsetReset == "" {
		cfg.Source.AutoOffsetReset = "earliest"
	}
	if cfg.Source.BatchSize == 0 {
		cfg.Source.BatchSize = 100
	}
	if cfg.Source.BatchTimeout == 0 {
		cfg.Source.BatchTimeout = 5 * time.Second
	}
	if cfg.Source.Retry.Initial == 0 {
		cfg.Source.Retry.Initial = time.Second
	}
	if cfg.Source.Retry.Max == 0 {
		cfg.Source.Retry.Max = time.Minute
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
}
