// Package opensearch backs export topics with OpenSearch indices: the topic
// name is the index and every message becomes one document.
package opensearch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/segmentio/encoding/json"

	"github.com/Log-Tools/commerce-events-export/internal/credentials"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

// IndexSpec describes how a missing index is created.
type IndexSpec struct {
	Shards   int
	Replicas int
}

// Connector creates an OpenSearch client for every opened topic.
type Connector struct {
	Addresses []string
	Spec      IndexSpec

	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

func (c *Connector) Open(_ context.Context, creds credentials.Credentials, name string) (topic.Topic, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: c.Addresses,
		Username:  creds.Username,
		Password:  creds.Password,
		Transport: c.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
	}
	return &Topic{client: client, name: name, spec: c.Spec}, nil
}

// Topic indexes messages into a single index.
type Topic struct {
	client *opensearch.Client
	name   string
	spec   IndexSpec
}

func (t *Topic) Name() string { return t.name }

// Probe checks that the index exists.
func (t *Topic) Probe(ctx context.Context) error {
	res, err := t.client.Indices.Exists([]string{t.name}, t.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", t.name, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: index %s", topic.ErrNotFound, t.name)
	default:
		return responseError(res)
	}
}

// Create creates the index with the configured shard and replica counts.
func (t *Topic) Create(ctx context.Context) error {
	shards, replicas := t.spec.Shards, t.spec.Replicas
	if shards <= 0 {
		shards = 1
	}
	if replicas < 0 {
		replicas = 0
	}
	body, err := json.Marshal(map[string]any{
		"settings": map[string]any{
			"number_of_shards":   shards,
			"number_of_replicas": replicas,
		},
	})
	if err != nil {
		return err
	}

	res, err := t.client.Indices.Create(t.name,
		t.client.Indices.Create.WithContext(ctx),
		t.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", t.name, err)
	}
	defer res.Body.Close()

	if !res.IsError() {
		return nil
	}
	return responseError(res)
}

// Publish indexes one document. When the message carries a uuid it is used
// as the document id, so a re-exported batch overwrites instead of duplicating.
func (t *Topic) Publish(ctx context.Context, data []byte) (string, error) {
	opts := []func(*opensearchapi.IndexRequest){t.client.Index.WithContext(ctx)}
	var doc struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(data, &doc); err == nil && doc.UUID != "" {
		opts = append(opts, t.client.Index.WithDocumentID(doc.UUID))
	}

	res, err := t.client.Index(t.name, bytes.NewReader(data), opts...)
	if err != nil {
		return "", fmt.Errorf("failed to index into %s: %w", t.name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", responseError(res)
	}

	var indexed struct {
		ID string `json:"_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&indexed); err != nil {
		return "", fmt.Errorf("failed to decode index response: %w", err)
	}
	return indexed.ID, nil
}

// Close is a no-op; the client holds no long-lived resources beyond idle HTTP connections.
func (t *Topic) Close() error { return nil }

type errorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// responseError turns an error response into an error, mapping
// resource_already_exists_exception onto topic.ErrAlreadyExists.
func responseError(res *opensearchapi.Response) error {
	data, _ := io.ReadAll(res.Body)

	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Type == "" {
		return fmt.Errorf("OpenSearch error: %s", res.Status())
	}

	err := fmt.Errorf("OpenSearch error [%d] %s: %s", res.StatusCode, body.Error.Type, body.Error.Reason)
	switch body.Error.Type {
	case "resource_already_exists_exception":
		return fmt.Errorf("%w: %w", topic.ErrAlreadyExists, err)
	case "index_not_found_exception":
		return fmt.Errorf("%w: %w", topic.ErrNotFound, err)
	default:
		return err
	}
}
