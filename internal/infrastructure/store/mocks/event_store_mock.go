package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-audit-core/internal/infrastructure/store"
)

// MockEventStore wraps the in-memory store with call tracking and failure
// injection for tests
type MockEventStore struct {
	mu    sync.Mutex
	inner *store.EventStore

	AppendCalls []AppendCall
	AppendErr   error
	ReadErr     error
	PingErr     error
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	AggregateID     string
	AggregateType   string
	ExpectedVersion int
	Events          []store.NewEvent
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		inner: store.NewEventStore(nil),
	}
}

func (m *MockEventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, events []store.NewEvent) ([]store.Event, error) {
	m.mu.Lock()
	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:     aggregateID,
		AggregateType:   aggregateType,
		ExpectedVersion: expectedVersion,
		Events:          events,
	})
	err := m.AppendErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.inner.Append(ctx, aggregateID, aggregateType, expectedVersion, events)
}

func (m *MockEventStore) ReadEvents(ctx context.Context, aggregateID string, fromVersion int) ([]store.Event, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.inner.ReadEvents(ctx, aggregateID, fromVersion)
}

func (m *MockEventStore) ReadRange(ctx context.Context, aggregateID string, from, to int) ([]store.Event, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.inner.ReadRange(ctx, aggregateID, from, to)
}

func (m *MockEventStore) ReadAllEvents(ctx context.Context, afterPosition int64, limit int) ([]store.Event, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.inner.ReadAllEvents(ctx, afterPosition, limit)
}

func (m *MockEventStore) CurrentVersion(ctx context.Context, aggregateID string) (int, error) {
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	return m.inner.CurrentVersion(ctx, aggregateID)
}

func (m *MockEventStore) Ping(ctx context.Context) error {
	if m.PingErr != nil {
		return m.PingErr
	}
	return m.inner.Ping(ctx)
}

func (m *MockEventStore) RedactEvent(ctx context.Context, aggregateID string, sequenceNumber int) error {
	return m.inner.RedactEvent(ctx, aggregateID, sequenceNumber)
}
