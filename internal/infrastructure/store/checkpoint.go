package store

import (
	"context"
	"sync"
	"time"
)

// Checkpoint is the durable position of a projection in the log. Resuming a
// projection always starts from its checkpoint; applied-event dedup makes
// re-delivery across the checkpoint boundary harmless.
type Checkpoint struct {
	Projection  string    `json:"projection"`
	Position    int64     `json:"position"` // last applied global position
	LastEventID string    `json:"last_event_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeadLetter is an event a projection permanently failed to apply. The
// projector advances past it; operators replay dead letters by hand.
type DeadLetter struct {
	Projection string    `json:"projection"`
	EventID    string    `json:"event_id"`
	Event      Event     `json:"event"`
	Reason     string    `json:"reason"`
	Attempts   int       `json:"attempts"`
	FailedAt   time.Time `json:"failed_at"`
}

// CheckpointStore is an in-memory checkpoint store
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{checkpoints: make(map[string]Checkpoint)}
}

func (cs *CheckpointStore) Get(ctx context.Context, projection string) (Checkpoint, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	cp, ok := cs.checkpoints[projection]
	if !ok {
		return Checkpoint{Projection: projection}, nil
	}
	return cp, nil
}

func (cs *CheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cp.UpdatedAt = time.Now()
	cs.checkpoints[cp.Projection] = cp
	return nil
}

// DeadLetterStore is an in-memory dead-letter log
type DeadLetterStore struct {
	mu      sync.RWMutex
	letters map[string][]DeadLetter // projection -> dead letters
}

func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{letters: make(map[string][]DeadLetter)}
}

func (ds *DeadLetterStore) Add(ctx context.Context, dl DeadLetter) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now()
	}
	ds.letters[dl.Projection] = append(ds.letters[dl.Projection], dl)
	return nil
}

func (ds *DeadLetterStore) List(ctx context.Context, projection string) ([]DeadLetter, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return append([]DeadLetter(nil), ds.letters[projection]...), nil
}
