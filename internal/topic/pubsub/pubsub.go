// Package pubsub backs export topics with Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/Log-Tools/commerce-events-export/internal/credentials"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

// Connector opens Pub/Sub clients bound to the credentials' project.
type Connector struct {
	// EmulatorHost points the client at a local emulator instead of Google.
	EmulatorHost string

	// Options are appended after the connector's own client options.
	Options []option.ClientOption
}

func (c *Connector) Open(ctx context.Context, creds credentials.Credentials, name string) (topic.Topic, error) {
	var opts []option.ClientOption
	switch {
	case c.EmulatorHost != "":
		opts = append(opts,
			option.WithEndpoint(c.EmulatorHost),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	case len(creds.JSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(creds.JSON))
	}
	opts = append(opts, c.Options...)

	client, err := pubsub.NewClient(ctx, creds.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client for project %s: %w", creds.ProjectID, err)
	}

	return &Topic{client: client, topic: client.Topic(name), name: name}, nil
}

// Topic is a Pub/Sub topic handle. It owns its client.
type Topic struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	name   string
}

func (t *Topic) Name() string { return t.name }

// Probe fetches the topic's metadata.
func (t *Topic) Probe(ctx context.Context) error {
	_, err := t.topic.Config(ctx)
	return classify(err)
}

func (t *Topic) Create(ctx context.Context) error {
	_, err := t.client.CreateTopic(ctx, t.name)
	return classify(err)
}

// Publish sends one message and waits for the server-assigned message id.
func (t *Topic) Publish(ctx context.Context, data []byte) (string, error) {
	result := t.topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", t.name, err)
	}
	return id, nil
}

// Close flushes pending publishes and releases the client.
func (t *Topic) Close() error {
	t.topic.Stop()
	return t.client.Close()
}

// classify maps gRPC status codes onto the transport-neutral sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %w", topic.ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %w", topic.ErrAlreadyExists, err)
	default:
		return err
	}
}
