package jetstream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Log-Tools/commerce-events-export/internal/credentials"
	"github.com/Log-Tools/commerce-events-export/internal/events"
	"github.com/Log-Tools/commerce-events-export/internal/export"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

// fakeJetStream keeps streams in memory and answers like a JetStream server.
type fakeJetStream struct {
	mu       sync.Mutex
	streams  map[string]jetstream.StreamConfig
	messages map[string][][]byte
	probeErr error
}

func newFakeJetStream() *fakeJetStream {
	return &fakeJetStream{
		streams:  make(map[string]jetstream.StreamConfig),
		messages: make(map[string][][]byte),
	}
}

func (f *fakeJetStream) Stream(_ context.Context, name string) (jetstream.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	if _, ok := f.streams[name]; !ok {
		return nil, jetstream.ErrStreamNotFound
	}
	return nil, nil
}

func (f *fakeJetStream) CreateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.streams[cfg.Name]; ok {
		return nil, jetstream.ErrStreamNameAlreadyInUse
	}
	f.streams[cfg.Name] = cfg
	return nil, nil
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, cfg := range f.streams {
		for _, s := range cfg.Subjects {
			if s == subject {
				f.messages[name] = append(f.messages[name], payload)
				return &jetstream.PubAck{Stream: name, Sequence: uint64(len(f.messages[name]))}, nil
			}
		}
	}
	return nil, jetstream.ErrNoStreamResponse
}

func (f *fakeJetStream) count(stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[stream])
}

func TestStreamName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"export-events", "export-events"},
		{"commerce.events.export", "commerce_events_export"},
		{"events.*", "events__"},
		{"events.>", "events__"},
		{"my events\tnow", "my_events_now"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StreamName(tt.in))
		})
	}
}

func TestTopic_ProbeAndCreate(t *testing.T) {
	js := newFakeJetStream()
	tp := NewTopic("commerce.events", js, StreamSpec{MaxAge: 24 * time.Hour, Storage: "memory"}, nil)

	assert.ErrorIs(t, tp.Probe(context.Background()), topic.ErrNotFound)
	require.NoError(t, tp.Create(context.Background()))
	assert.NoError(t, tp.Probe(context.Background()))
	assert.ErrorIs(t, tp.Create(context.Background()), topic.ErrAlreadyExists)

	cfg := js.streams["commerce_events"]
	assert.Equal(t, []string{"commerce.events"}, cfg.Subjects)
	assert.Equal(t, jetstream.MemoryStorage, cfg.Storage)
	assert.Equal(t, 24*time.Hour, cfg.MaxAge)
	assert.Equal(t, 1, cfg.Replicas)
}

func TestTopic_ProbeOtherErrorsStayFatal(t *testing.T) {
	js := newFakeJetStream()
	js.probeErr = jetstream.ErrJetStreamNotEnabled
	tp := NewTopic("commerce.events", js, StreamSpec{}, nil)

	err := tp.Probe(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, topic.ErrNotFound)
	assert.ErrorIs(t, err, jetstream.ErrJetStreamNotEnabled)
}

func TestTopic_Publish(t *testing.T) {
	js := newFakeJetStream()
	tp := NewTopic("commerce.events", js, StreamSpec{}, nil)
	require.NoError(t, tp.Create(context.Background()))

	id, err := tp.Publish(context.Background(), []byte(`{"event":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, "commerce_events:1", id)

	id, err = tp.Publish(context.Background(), []byte(`{"event":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, "commerce_events:2", id)
}

func TestTopic_Close(t *testing.T) {
	closed := false
	tp := NewTopic("x", newFakeJetStream(), StreamSpec{}, func() error {
		closed = true
		return errors.New("drain failed")
	})

	assert.EqualError(t, tp.Close(), "drain failed")
	assert.True(t, closed)
	assert.NoError(t, NewTopic("x", newFakeJetStream(), StreamSpec{}, nil).Close())
}

type fakeConnector struct {
	js *fakeJetStream
}

func (c fakeConnector) Open(_ context.Context, _ credentials.Credentials, name string) (topic.Topic, error) {
	return NewTopic(name, c.js, StreamSpec{}, nil), nil
}

func TestProvisionAndExport(t *testing.T) {
	logger, _ := test.NewNullLogger()
	js := newFakeJetStream()
	creds := credentials.Credentials{ProjectID: "commerce-prod", JSON: []byte(`{"project_id":"commerce-prod"}`)}

	handle, err := export.NewProvisioner(fakeConnector{js: js}, logger).
		Provision(context.Background(), creds, topic.EncodeID("commerce.events"))
	require.NoError(t, err)

	batch := []events.RawEvent{
		{Event: "pageview", DistinctID: "u1", UUID: "0190a1b2-0000-7000-8000-000000000001"},
		{Event: "pageview", DistinctID: "u2", UUID: "0190a1b2-0000-7000-8000-000000000002"},
	}
	require.NoError(t, export.NewExporter(logger).ExportBatch(context.Background(), handle, batch))

	assert.Equal(t, 2, js.count("commerce_events"))
}
