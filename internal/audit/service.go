package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-audit-core/internal/domain/aggregate"
	"github.com/example/ec-audit-core/internal/infrastructure/store"
)

var (
	ErrNoHistory           = errors.New("aggregate has no committed events")
	ErrSequenceOutOfRange  = errors.New("sequence number is beyond the aggregate's history")
	ErrRedactionUnsupported = errors.New("event store does not support payload redaction")
)

// Service answers compliance and audit queries straight from the event log.
// Everything here is read-only except Redact, which is the single sanctioned
// mutation of committed data (privacy erasure).
type Service struct {
	events store.EventStoreInterface
}

func NewService(events store.EventStoreInterface) *Service {
	return &Service{events: events}
}

// History returns the ordered events of an aggregate with
// from <= sequence_number <= to. from < 1 means from the start, to <= 0
// means to the end.
func (s *Service) History(ctx context.Context, aggregateID string, from, to int) ([]store.Event, error) {
	if from < 1 {
		from = 1
	}
	events, err := s.events.ReadRange(ctx, aggregateID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", aggregateID, err)
	}
	return events, nil
}

// HistoryByTime returns the ordered events with from <= occurred_at <= to.
// Zero time bounds are open.
func (s *Service) HistoryByTime(ctx context.Context, aggregateID string, from, to time.Time) ([]store.Event, error) {
	events, err := s.events.ReadEvents(ctx, aggregateID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", aggregateID, err)
	}
	var filtered []store.Event
	for _, e := range events {
		if !from.IsZero() && e.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.OccurredAt.After(to) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, nil
}

// Health reports whether the log's append and read paths are reachable
func (s *Service) Health(ctx context.Context) error {
	return s.events.Ping(ctx)
}

// ReconstructAt rebuilds aggregate state as of a version cutoff by replaying
// events with sequence_number <= version through the same apply function the
// repository uses, so live and historical views can never disagree.
func ReconstructAt[T aggregate.Aggregate](
	ctx context.Context,
	events store.EventStoreInterface,
	aggregateID string,
	version int,
	newAggregate func() T,
) (T, error) {
	return reconstruct(ctx, events, aggregateID, newAggregate, func(e store.Event) bool {
		return e.SequenceNumber <= version
	})
}

// ReconstructAtTime rebuilds aggregate state as of a timestamp cutoff
func ReconstructAtTime[T aggregate.Aggregate](
	ctx context.Context,
	events store.EventStoreInterface,
	aggregateID string,
	cutoff time.Time,
	newAggregate func() T,
) (T, error) {
	return reconstruct(ctx, events, aggregateID, newAggregate, func(e store.Event) bool {
		return !e.OccurredAt.After(cutoff)
	})
}

func reconstruct[T aggregate.Aggregate](
	ctx context.Context,
	events store.EventStoreInterface,
	aggregateID string,
	newAggregate func() T,
	include func(store.Event) bool,
) (T, error) {
	var zero T

	stream, err := events.ReadEvents(ctx, aggregateID, 0)
	if err != nil {
		return zero, fmt.Errorf("failed to read events for %s: %w", aggregateID, err)
	}
	if len(stream) == 0 {
		return zero, fmt.Errorf("%w: %s", ErrNoHistory, aggregateID)
	}

	agg := newAggregate()
	for _, event := range stream {
		if !include(event) {
			// Events are ordered, nothing past the cutoff applies.
			break
		}
		if err := agg.ApplyEvent(event); err != nil {
			return zero, fmt.Errorf("%w: aggregate %s event %s (seq %d): %v",
				store.ErrReplayViolation, aggregateID, event.ID, event.SequenceNumber, err)
		}
	}
	return agg, nil
}

// Redact erases the payload of one committed event. It appends the caller's
// tombstone under the normal concurrency check first, so the erasure itself
// is part of the audit trail, then blanks the payload in place. Sequence
// numbers, envelope fields and ordering are preserved.
func (s *Service) Redact(ctx context.Context, aggregateID, aggregateType string, sequenceNumber int, tombstone store.NewEvent) error {
	redactor, ok := s.events.(store.EventRedactor)
	if !ok {
		return ErrRedactionUnsupported
	}

	err := aggregate.RetryOnConflict(ctx, aggregate.ConflictRetries, func(ctx context.Context) error {
		current, err := s.events.CurrentVersion(ctx, aggregateID)
		if err != nil {
			return err
		}
		if current == 0 {
			return fmt.Errorf("%w: %s", ErrNoHistory, aggregateID)
		}
		if sequenceNumber < 1 || sequenceNumber > current {
			return fmt.Errorf("%w: %s sequence %d, current %d", ErrSequenceOutOfRange, aggregateID, sequenceNumber, current)
		}
		_, err = s.events.Append(ctx, aggregateID, aggregateType, current, []store.NewEvent{tombstone})
		return err
	})
	if err != nil {
		return err
	}

	return redactor.RedactEvent(ctx, aggregateID, sequenceNumber)
}
