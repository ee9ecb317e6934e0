package export

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/Log-Tools/commerce-events-export/internal/credentials"
	"github.com/Log-Tools/commerce-events-export/internal/topic"
)

// Mock implementations for testing
type MockTopic struct {
	mock.Mock
}

func (m *MockTopic) Name() string {
	return m.Called().String(0)
}

func (m *MockTopic) Publish(ctx context.Context, data []byte) (string, error) {
	args := m.Called(ctx, data)
	return args.String(0), args.Error(1)
}

func (m *MockTopic) Close() error {
	return m.Called().Error(0)
}

func (m *MockTopic) Probe(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockTopic) Create(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockConnector struct {
	mock.Mock
}

func (m *MockConnector) Open(ctx context.Context, creds credentials.Credentials, name string) (topic.Topic, error) {
	args := m.Called(ctx, creds, name)
	t, _ := args.Get(0).(topic.Topic)
	return t, args.Error(1)
}

// registry is an in-memory transport shared by several provisioners.
type registry struct {
	mu      sync.Mutex
	topics  map[string]bool
	creates int

	// probes, when set, holds every prober until all of them have probed
	probes *sync.WaitGroup
}

func newRegistry() *registry {
	return &registry{topics: make(map[string]bool)}
}

func (r *registry) Open(_ context.Context, _ credentials.Credentials, name string) (topic.Topic, error) {
	return &registryTopic{registry: r, name: name}, nil
}

type registryTopic struct {
	registry *registry
	name     string
}

func (t *registryTopic) Name() string { return t.name }

func (t *registryTopic) Publish(context.Context, []byte) (string, error) { return "1", nil }

func (t *registryTopic) Close() error { return nil }

func (t *registryTopic) Probe(context.Context) error {
	t.registry.mu.Lock()
	exists := t.registry.topics[t.name]
	t.registry.mu.Unlock()

	if wg := t.registry.probes; wg != nil {
		wg.Done()
		wg.Wait()
	}
	if !exists {
		return topic.ErrNotFound
	}
	return nil
}

func (t *registryTopic) Create(context.Context) error {
	t.registry.mu.Lock()
	defer t.registry.mu.Unlock()
	if t.registry.topics[t.name] {
		return topic.ErrAlreadyExists
	}
	t.registry.topics[t.name] = true
	t.registry.creates++
	return nil
}
