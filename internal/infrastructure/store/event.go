package store

import (
	"encoding/json"
	"time"
)

// Event is a single committed fact in the audit log. Once committed it is
// never mutated; payload redaction (see RedactEvent) blanks Data only and
// leaves every envelope field intact.
type Event struct {
	ID             string          `json:"id"`
	AggregateID    string          `json:"aggregate_id"`
	AggregateType  string          `json:"aggregate_type"`
	EventType      string          `json:"event_type"`
	SequenceNumber int             `json:"sequence_number"`
	SchemaVersion  int             `json:"schema_version"`
	Data           json.RawMessage `json:"data"`
	OccurredAt     time.Time       `json:"occurred_at"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	CausationID    string          `json:"causation_id,omitempty"`

	// GlobalPosition is the commit-order position assigned by the backend.
	// It orders events across aggregates for replay only; per-aggregate
	// ordering is the contract, cross-aggregate ordering is best effort.
	GlobalPosition int64 `json:"global_position,omitempty"`
}

// MarshalJSON returns the JSON encoding of the event
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(&struct{ Alias }{Alias: Alias(e)})
}

// NewEvent is an event candidate handed to Append. The caller supplies the
// ID (the idempotency key); the store assigns the sequence number and the
// global position at commit time.
type NewEvent struct {
	ID            string
	EventType     string
	SchemaVersion int
	Data          json.RawMessage
	OccurredAt    time.Time
	CorrelationID string
	CausationID   string
}

// seal turns a candidate into a committed envelope.
func (ne NewEvent) seal(aggregateID, aggregateType string, sequence int) Event {
	occurredAt := ne.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return Event{
		ID:             ne.ID,
		AggregateID:    aggregateID,
		AggregateType:  aggregateType,
		EventType:      ne.EventType,
		SequenceNumber: sequence,
		SchemaVersion:  ne.SchemaVersion,
		Data:           ne.Data,
		OccurredAt:     occurredAt,
		CorrelationID:  ne.CorrelationID,
		CausationID:    ne.CausationID,
	}
}
