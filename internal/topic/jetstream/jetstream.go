// Package jetstream backs export topics with NATS JetStream streams.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Log-Tools/commerce-events-export/internal/credentials"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

// StreamAPI is the part of jetstream.JetStream a topic needs.
type StreamAPI interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// StreamSpec describes how a missing stream is created.
type StreamSpec struct {
	// MaxAge is the maximum age of messages in the stream. Zero keeps them forever.
	MaxAge time.Duration

	// Storage is "file" or "memory".
	Storage string

	Replicas int
}

// Connector dials NATS for every opened topic.
type Connector struct {
	URL     string
	Timeout time.Duration
	Spec    StreamSpec
}

func (c *Connector) Open(_ context.Context, creds credentials.Credentials, name string) (topic.Topic, error) {
	url := c.URL
	if url == "" {
		url = nats.DefaultURL
	}

	opts := []nats.Option{nats.Name(creds.ProjectID)}
	if c.Timeout > 0 {
		opts = append(opts, nats.Timeout(c.Timeout))
	}
	if creds.Username != "" && creds.Password != "" {
		opts = append(opts, nats.UserInfo(creds.Username, creds.Password))
	}
	if creds.Token != "" {
		opts = append(opts, nats.Token(creds.Token))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return NewTopic(name, js, c.Spec, conn.Drain), nil
}

// Topic publishes to a subject captured by a stream of its own.
type Topic struct {
	name   string
	stream string
	js     StreamAPI
	spec   StreamSpec
	close  func() error
}

// NewTopic wraps a JetStream context. closeFn may be nil.
func NewTopic(name string, js StreamAPI, spec StreamSpec, closeFn func() error) *Topic {
	return &Topic{
		name:   name,
		stream: StreamName(name),
		js:     js,
		spec:   spec,
		close:  closeFn,
	}
}

func (t *Topic) Name() string { return t.name }

// Probe looks up the topic's stream.
func (t *Topic) Probe(ctx context.Context) error {
	_, err := t.js.Stream(ctx, t.stream)
	return classify(err)
}

// Create creates the stream capturing the topic subject.
func (t *Topic) Create(ctx context.Context) error {
	_, err := t.js.CreateStream(ctx, t.streamConfig())
	return classify(err)
}

// Publish waits for the stream acknowledgement and returns "stream:sequence".
func (t *Topic) Publish(ctx context.Context, data []byte) (string, error) {
	ack, err := t.js.Publish(ctx, t.name, data)
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", t.name, err)
	}
	return fmt.Sprintf("%s:%d", ack.Stream, ack.Sequence), nil
}

func (t *Topic) Close() error {
	if t.close == nil {
		return nil
	}
	return t.close()
}

func (t *Topic) streamConfig() jetstream.StreamConfig {
	storage := jetstream.FileStorage
	if strings.EqualFold(t.spec.Storage, "memory") {
		storage = jetstream.MemoryStorage
	}
	replicas := t.spec.Replicas
	if replicas <= 0 {
		replicas = 1
	}
	return jetstream.StreamConfig{
		Name:      t.stream,
		Subjects:  []string{t.name},
		MaxAge:    t.spec.MaxAge,
		Retention: jetstream.LimitsPolicy,
		Storage:   storage,
		Replicas:  replicas,
	}
}

// StreamName derives a valid stream name from a topic name.
func StreamName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.', r == '*', r == '>', unicode.IsSpace(r):
			return '_'
		default:
			return r
		}
	}, name)
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jetstream.ErrStreamNotFound):
		return fmt.Errorf("%w: %w", topic.ErrNotFound, err)
	case errors.Is(err, jetstream.ErrStreamNameAlreadyInUse):
		return fmt.Errorf("%w: %w", topic.ErrAlreadyExists, err)
	default:
		return err
	}
}
