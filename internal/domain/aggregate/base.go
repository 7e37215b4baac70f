package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/ec-audit-core/internal/infrastructure/store"
)

// Aggregate defines the interface for event-sourced aggregates. ApplyEvent
// must be a pure transition function: same event list, same state, whether
// it runs during command handling or historical replay.
type Aggregate interface {
	GetID() string
	GetVersion() int
	ApplyEvent(store.Event) error
}

// ConflictRetries bounds the reload-and-retry loop on a concurrency
// conflict before the command is surfaced as failed.
const ConflictRetries = 4

// conflictBackoff is the initial sleep between conflict retries; it doubles
// per attempt.
const conflictBackoff = 20 * time.Millisecond

// Load rebuilds an aggregate from the latest snapshot plus the events after
// it. Returns the aggregate, whether any committed data was found, and any
// error. A snapshot-store failure degrades to a full replay; an apply
// failure is an ErrReplayViolation and is never skipped.
func Load[T Aggregate](
	ctx context.Context,
	events store.EventStoreInterface,
	snapshots store.SnapshotStoreInterface,
	id string,
	newAggregate func() T,
) (T, bool, error) {
	var zero T
	agg := newAggregate()

	fromVersion := 0
	if snapshots != nil {
		snapshot, err := snapshots.GetLatest(ctx, id)
		if err != nil {
			log.Printf("[Repository] Snapshot load failed for %s, replaying from scratch: %v", id, err)
		} else if snapshot != nil {
			if err := json.Unmarshal(snapshot.State, agg); err != nil {
				return zero, false, fmt.Errorf("failed to unmarshal snapshot for %s: %w", id, err)
			}
			fromVersion = snapshot.Version
		}
	}

	stream, err := events.ReadEvents(ctx, id, fromVersion)
	if err != nil {
		return zero, false, fmt.Errorf("failed to read events for %s: %w", id, err)
	}

	hasData := fromVersion > 0 || len(stream) > 0

	for _, event := range stream {
		if err := agg.ApplyEvent(event); err != nil {
			// A committed event must always apply; this is corruption or a
			// non-deterministic apply function.
			err = fmt.Errorf("%w: aggregate %s event %s (seq %d): %v",
				store.ErrReplayViolation, id, event.ID, event.SequenceNumber, err)
			log.Printf("[Repository] %v", err)
			return zero, false, err
		}
	}

	return agg, hasData, nil
}

// Save appends new events under the optimistic concurrency check. It does
// not retry; wrap command logic in RetryOnConflict for that.
func Save(
	ctx context.Context,
	events store.EventStoreInterface,
	aggregateID, aggregateType string,
	expectedVersion int,
	newEvents []store.NewEvent,
) ([]store.Event, error) {
	return events.Append(ctx, aggregateID, aggregateType, expectedVersion, newEvents)
}

// RetryOnConflict runs fn, retrying with doubling backoff while it fails
// with ErrConcurrencyConflict. fn must reload the aggregate and rebuild its
// events on every attempt. Any other error aborts immediately; exhausting
// the attempts surfaces the last conflict.
func RetryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	backoff := conflictBackoff
	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, store.ErrConcurrencyConflict) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("command failed after %d attempts: %w", attempts, err)
}

// MaybeCreateSnapshot snapshots the aggregate when it has accumulated
// SnapshotThreshold events past the latest snapshot, then prunes to
// SnapshotKeep. Errors are returned for logging only; callers must never
// fail a command on them.
func MaybeCreateSnapshot(
	ctx context.Context,
	snapshots store.SnapshotStoreInterface,
	agg Aggregate,
	aggregateType string,
) error {
	version := agg.GetVersion()
	if version == 0 {
		return nil
	}

	latest, err := snapshots.GetLatest(ctx, agg.GetID())
	if err != nil {
		return fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	last := 0
	if latest != nil {
		last = latest.Version
	}
	if version-last < store.SnapshotThreshold {
		return nil
	}

	state, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregate state: %w", err)
	}

	snapshot := &store.Snapshot{
		AggregateID:   agg.GetID(),
		AggregateType: aggregateType,
		Version:       version,
		State:         state,
		CreatedAt:     time.Now(),
	}

	if err := snapshots.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	if err := snapshots.Prune(ctx, agg.GetID(), store.SnapshotKeep); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}

	return nil
}

// SnapshotAsync runs the snapshot check off the command path. Failures are
// logged and retried at the next threshold crossing.
func SnapshotAsync(snapshots store.SnapshotStoreInterface, agg Aggregate, aggregateType string) {
	if snapshots == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := MaybeCreateSnapshot(ctx, snapshots, agg, aggregateType); err != nil {
			log.Printf("[Snapshot] Failed to snapshot %s %s: %v", aggregateType, agg.GetID(), err)
		}
	}()
}
