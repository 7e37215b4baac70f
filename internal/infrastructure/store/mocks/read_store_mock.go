package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/example/ec-audit-core/internal/infrastructure/store"
)

// MockReadStore wraps the in-memory read store with failure injection.
// FailSets makes that many Set/Update calls fail before recovering, which is
// how the poison-event tests drive the retry and dead-letter paths.
type MockReadStore struct {
	mu    sync.Mutex
	inner *store.ReadStore

	FailSets int
	SetCalls int
}

func NewMockReadStore() *MockReadStore {
	return &MockReadStore{inner: store.NewReadStore()}
}

func (m *MockReadStore) failNext() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCalls++
	if m.FailSets > 0 {
		m.FailSets--
		return errors.New("injected write failure")
	}
	return nil
}

func (m *MockReadStore) Set(ctx context.Context, collection, id string, data any) error {
	if err := m.failNext(); err != nil {
		return err
	}
	return m.inner.Set(ctx, collection, id, data)
}

func (m *MockReadStore) Get(ctx context.Context, collection, id string) (any, bool, error) {
	return m.inner.Get(ctx, collection, id)
}

func (m *MockReadStore) GetAll(ctx context.Context, collection string) ([]any, error) {
	return m.inner.GetAll(ctx, collection)
}

func (m *MockReadStore) Delete(ctx context.Context, collection, id string) error {
	return m.inner.Delete(ctx, collection, id)
}

func (m *MockReadStore) Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error) {
	if err := m.failNext(); err != nil {
		return false, err
	}
	return m.inner.Update(ctx, collection, id, updateFn)
}

func (m *MockReadStore) SeenEvent(ctx context.Context, projection, eventID string) (bool, error) {
	return m.inner.SeenEvent(ctx, projection, eventID)
}

// SetData seeds a read model directly, bypassing failure injection
func (m *MockReadStore) SetData(collection, id string, data any) {
	_ = m.inner.Set(context.Background(), collection, id, data)
}

// GetData reads a read model directly
func (m *MockReadStore) GetData(collection, id string) (any, bool) {
	data, ok, _ := m.inner.Get(context.Background(), collection, id)
	return data, ok
}
