package store

import (
	"context"
	"sync"
)

// ReadStore is an in-memory read model store
type ReadStore struct {
	mu      sync.RWMutex
	data    map[string]map[string]any // collection -> id -> data
	applied map[string]map[string]bool // projection -> event id
}

func NewReadStore() *ReadStore {
	return &ReadStore{
		data:    make(map[string]map[string]any),
		applied: make(map[string]map[string]bool),
	}
}

// Set stores a read model
func (rs *ReadStore) Set(ctx context.Context, collection, id string, data any) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.data[collection] == nil {
		rs.data[collection] = make(map[string]any)
	}
	rs.data[collection][id] = data
	return nil
}

// Get retrieves a read model by id
func (rs *ReadStore) Get(ctx context.Context, collection, id string) (any, bool, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if rs.data[collection] == nil {
		return nil, false, nil
	}
	data, ok := rs.data[collection][id]
	return data, ok, nil
}

// GetAll retrieves all items in a collection
func (rs *ReadStore) GetAll(ctx context.Context, collection string) ([]any, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	var items []any
	for _, item := range rs.data[collection] {
		items = append(items, item)
	}
	return items, nil
}

// Delete removes a read model
func (rs *ReadStore) Delete(ctx context.Context, collection, id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.data[collection] != nil {
		delete(rs.data[collection], id)
	}
	return nil
}

// Update modifies a read model using an update function
func (rs *ReadStore) Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.data[collection] == nil {
		return false, nil
	}
	current, ok := rs.data[collection][id]
	if !ok {
		return false, nil
	}
	rs.data[collection][id] = updateFn(current)
	return true, nil
}

// SeenEvent records an event id for a projection and reports whether it was
// already recorded
func (rs *ReadStore) SeenEvent(ctx context.Context, projection, eventID string) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.applied[projection] == nil {
		rs.applied[projection] = make(map[string]bool)
	}
	if rs.applied[projection][eventID] {
		return true, nil
	}
	rs.applied[projection][eventID] = true
	return false, nil
}
