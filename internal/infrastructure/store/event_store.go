package store

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/example/ec-audit-core/internal/infrastructure/kafka"
)

// EventStore is an in-memory event store with optimistic concurrency.
// Committed events are published to Kafka after the commit; a failed publish
// is logged and never fails the append, projections recover by replay.
type EventStore struct {
	mu       sync.RWMutex
	events   map[string][]Event // aggregateID -> events, ascending by sequence
	byID     map[string]Event   // eventID -> committed event
	global   []Event            // commit order
	producer *kafka.Producer
}

func NewEventStore(producer *kafka.Producer) *EventStore {
	return &EventStore{
		events:   make(map[string][]Event),
		byID:     make(map[string]Event),
		producer: producer,
	}
}

// Append commits a batch under the version check. The check and the insert
// happen under one lock, so two writers racing on the same expectedVersion
// cannot both succeed.
func (es *EventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, events []NewEvent) ([]Event, error) {
	if len(events) == 0 {
		return nil, ErrEmptyAppend
	}

	es.mu.Lock()
	committed, published, err := es.appendLocked(aggregateID, aggregateType, expectedVersion, events)
	es.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if published && es.producer != nil {
		for _, event := range committed {
			if perr := es.producer.Publish(ctx, aggregateID, event); perr != nil {
				log.Printf("[EventStore] Failed to publish event %s: %v", event.ID, perr)
			}
		}
	}

	return committed, nil
}

// appendLocked returns the committed range and whether it is newly committed
// (a duplicate batch is returned as-is and must not be re-published).
func (es *EventStore) appendLocked(aggregateID, aggregateType string, expectedVersion int, events []NewEvent) ([]Event, bool, error) {
	// Idempotent retry: every id already committed means the batch already
	// went through; a partial overlap is a corrupt retry.
	existing := 0
	for _, ne := range events {
		if _, ok := es.byID[ne.ID]; ok {
			existing++
		}
	}
	if existing == len(events) {
		committed := make([]Event, 0, len(events))
		for _, ne := range events {
			committed = append(committed, es.byID[ne.ID])
		}
		return committed, false, nil
	}
	if existing > 0 {
		return nil, false, fmt.Errorf("%w: %d of %d events already committed", ErrDuplicateEvent, existing, len(events))
	}

	current := len(es.events[aggregateID])
	if current != expectedVersion {
		return nil, false, fmt.Errorf("%w: aggregate %s expected %d, current %d",
			ErrConcurrencyConflict, aggregateID, expectedVersion, current)
	}

	committed := make([]Event, 0, len(events))
	for i, ne := range events {
		event := ne.seal(aggregateID, aggregateType, current+i+1)
		event.GlobalPosition = int64(len(es.global) + 1)
		es.events[aggregateID] = append(es.events[aggregateID], event)
		es.byID[event.ID] = event
		es.global = append(es.global, event)
		committed = append(committed, event)
	}
	return committed, true, nil
}

// ReadEvents returns events after fromVersion for an aggregate
func (es *EventStore) ReadEvents(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	all := es.events[aggregateID]
	if fromVersion >= len(all) {
		return nil, nil
	}
	return append([]Event(nil), all[fromVersion:]...), nil
}

// ReadRange returns events with from <= sequence <= to
func (es *EventStore) ReadRange(ctx context.Context, aggregateID string, from, to int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var events []Event
	for _, e := range es.events[aggregateID] {
		if e.SequenceNumber >= from && (to <= 0 || e.SequenceNumber <= to) {
			events = append(events, e)
		}
	}
	return events, nil
}

// ReadAllEvents returns events across aggregates in commit order
func (es *EventStore) ReadAllEvents(ctx context.Context, afterPosition int64, limit int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var events []Event
	for _, e := range es.global {
		if e.GlobalPosition <= afterPosition {
			continue
		}
		events = append(events, e)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

// CurrentVersion returns the highest committed sequence number
func (es *EventStore) CurrentVersion(ctx context.Context, aggregateID string) (int, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.events[aggregateID]), nil
}

func (es *EventStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// RedactEvent blanks the payload of a committed event in place. Envelope
// fields and ordering are untouched.
func (es *EventStore) RedactEvent(ctx context.Context, aggregateID string, sequenceNumber int) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	all := es.events[aggregateID]
	if sequenceNumber < 1 || sequenceNumber > len(all) {
		return fmt.Errorf("%w: aggregate %s sequence %d", ErrEventNotFound, aggregateID, sequenceNumber)
	}

	redact := func(e *Event) {
		e.Data = nil
	}
	event := &all[sequenceNumber-1]
	redact(event)
	if indexed, ok := es.byID[event.ID]; ok {
		redact(&indexed)
		es.byID[event.ID] = indexed
	}
	for i := range es.global {
		if es.global[i].ID == event.ID {
			redact(&es.global[i])
			break
		}
	}
	return nil
}
