package store

import "context"

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	// Append atomically checks expectedVersion against the aggregate's
	// current version and commits the batch with consecutive sequence
	// numbers. See ErrConcurrencyConflict and ErrDuplicateEvent.
	Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, events []NewEvent) ([]Event, error)

	// ReadEvents returns all events for an aggregate with sequence number
	// greater than fromVersion, in sequence order.
	ReadEvents(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error)

	// ReadRange returns events with from <= sequence_number <= to, in order.
	ReadRange(ctx context.Context, aggregateID string, from, to int) ([]Event, error)

	// ReadAllEvents returns up to limit events across all aggregates with
	// global position greater than afterPosition, in commit order. A limit
	// <= 0 means no limit.
	ReadAllEvents(ctx context.Context, afterPosition int64, limit int) ([]Event, error)

	// CurrentVersion returns the highest committed sequence number for the
	// aggregate, 0 if it has no events.
	CurrentVersion(ctx context.Context, aggregateID string) (int, error)

	// Ping reports whether the append and read paths are reachable.
	Ping(ctx context.Context) error
}

// SnapshotStoreInterface defines the interface for snapshot stores
type SnapshotStoreInterface interface {
	// GetLatest returns the most recent snapshot, or nil if none exists.
	GetLatest(ctx context.Context, aggregateID string) (*Snapshot, error)

	// Save persists a snapshot. Saving is best effort relative to the
	// command path; callers tolerate failure.
	Save(ctx context.Context, snapshot *Snapshot) error

	// Prune removes old snapshots keeping the newest keep. The sole
	// remaining snapshot for an aggregate is never removed.
	Prune(ctx context.Context, aggregateID string, keep int) error
}

// EventRedactor is an optional capability of event stores that support
// payload redaction for privacy erasure. Only Data is blanked; the envelope
// and the sequence are preserved so replay and ordering invariants hold.
type EventRedactor interface {
	RedactEvent(ctx context.Context, aggregateID string, sequenceNumber int) error
}

// ReadStoreInterface defines the interface for read model storage
type ReadStoreInterface interface {
	// Set stores a read model
	Set(ctx context.Context, collection, id string, data any) error

	// Get retrieves a read model by id
	Get(ctx context.Context, collection, id string) (any, bool, error)

	// GetAll retrieves all items in a collection
	GetAll(ctx context.Context, collection string) ([]any, error)

	// Delete removes a read model
	Delete(ctx context.Context, collection, id string) error

	// Update modifies a read model using an update function
	Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error)

	// SeenEvent records an event id for a projection and reports whether it
	// was already recorded. The first call for an id returns false, every
	// later call returns true; this is the idempotent-upsert key behind the
	// at-least-once delivery contract.
	SeenEvent(ctx context.Context, projection, eventID string) (bool, error)
}

// CheckpointStoreInterface persists per-projection consumer positions
type CheckpointStoreInterface interface {
	// Get returns the checkpoint for a projection, or a zero checkpoint if
	// none has been saved yet.
	Get(ctx context.Context, projection string) (Checkpoint, error)

	// Save persists the checkpoint for a projection.
	Save(ctx context.Context, cp Checkpoint) error
}

// DeadLetterStoreInterface records events a projection gave up on
type DeadLetterStoreInterface interface {
	Add(ctx context.Context, dl DeadLetter) error
	List(ctx context.Context, projection string) ([]DeadLetter, error)
}
