package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// SnapshotThreshold is the number of events an aggregate accumulates past
// its latest snapshot before a new snapshot is taken.
const SnapshotThreshold = 50

// SnapshotKeep is how many snapshots per aggregate survive pruning.
const SnapshotKeep = 3

// Snapshot represents a point-in-time state of an aggregate
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"` // Event sequence at snapshot time
	State         json.RawMessage `json:"state"`   // Serialized aggregate state
	CreatedAt     time.Time       `json:"created_at"`
}

// SnapshotStore is an in-memory snapshot store
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string][]Snapshot // aggregateID -> snapshots, ascending by version
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string][]Snapshot)}
}

// GetLatest returns the highest-version snapshot for an aggregate
func (ss *SnapshotStore) GetLatest(ctx context.Context, aggregateID string) (*Snapshot, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	snaps := ss.snapshots[aggregateID]
	if len(snaps) == 0 {
		return nil, nil
	}
	latest := snaps[len(snaps)-1]
	return &latest, nil
}

// Save stores a snapshot, replacing any existing snapshot at the same version
func (ss *SnapshotStore) Save(ctx context.Context, snapshot *Snapshot) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	snaps := ss.snapshots[snapshot.AggregateID]
	for i, s := range snaps {
		if s.Version == snapshot.Version {
			snaps[i] = *snapshot
			return nil
		}
	}
	snaps = append(snaps, *snapshot)
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Version < snaps[j].Version })
	ss.snapshots[snapshot.AggregateID] = snaps
	return nil
}

// Prune keeps the newest keep snapshots. The last snapshot is never removed.
func (ss *SnapshotStore) Prune(ctx context.Context, aggregateID string, keep int) error {
	if keep < 1 {
		keep = 1
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	snaps := ss.snapshots[aggregateID]
	if len(snaps) > keep {
		ss.snapshots[aggregateID] = append([]Snapshot(nil), snaps[len(snaps)-keep:]...)
	}
	return nil
}
