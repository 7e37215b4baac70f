package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-audit-core/internal/domain/aggregate"
	"github.com/example/ec-audit-core/internal/infrastructure/store"
	"github.com/google/uuid"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderExists      = errors.New("order already exists")
	ErrEmptyOrder       = errors.New("order must have at least one item")
	ErrInvalidStatus    = errors.New("invalid order status transition")
	ErrOrderAlreadyPaid = errors.New("order is already paid")
	ErrOrderNotPaid     = errors.New("order must be paid before shipping")
	ErrOrderShipped     = errors.New("cannot cancel shipped order")
	ErrOrderCancelled   = errors.New("order is already cancelled")
	ErrOrderNotPending  = errors.New("items can only be added to a pending order")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled},
	StatusShipped:   {}, // terminal state
	StatusCancelled: {}, // terminal state
}

type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id"`
	Items      []OrderItem `json:"items"`
	Total      int         `json:"total"`
	Status     Status      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Version    int         `json:"version"` // highest applied sequence number
}

// Aggregate interface implementation
func (o *Order) GetID() string   { return o.ID }
func (o *Order) GetVersion() int { return o.Version }

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	case o.Status == StatusShipped && target == StatusCancelled:
		return ErrOrderShipped
	case (o.Status == StatusPaid || o.Status == StatusShipped) && target == StatusPaid:
		return ErrOrderAlreadyPaid
	case o.Status == StatusPending && target == StatusShipped:
		return ErrOrderNotPaid
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

// decodePayload unmarshals an event payload. A redacted payload decodes to
// the zero value so replay stays deterministic after erasure.
func decodePayload(event store.Event, out any) error {
	if len(event.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(event.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", event.EventType, err)
	}
	return nil
}

// ApplyEvent applies a single event to the order state. It is pure: no
// clocks, no IO, no randomness, so live handling and historical replay
// always agree.
func (o *Order) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventOrderCreated:
		var data OrderCreated
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		o.ID = data.OrderID
		o.CustomerID = data.CustomerID
		o.Items = data.Items
		o.Total = data.Total
		o.Status = StatusPending
		o.CreatedAt = data.CreatedAt
		o.UpdatedAt = data.CreatedAt
	case EventItemAdded:
		var data ItemAdded
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		o.Items = append(o.Items, data.Item)
		o.Total += data.Item.Price * data.Item.Quantity
		o.UpdatedAt = data.AddedAt
	case EventOrderPaid:
		var data OrderPaid
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		o.Status = StatusPaid
		o.UpdatedAt = data.PaidAt
	case EventOrderShipped:
		var data OrderShipped
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		o.Status = StatusShipped
		o.UpdatedAt = data.ShippedAt
	case EventOrderCancelled:
		var data OrderCancelled
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		o.Status = StatusCancelled
		o.UpdatedAt = data.CancelledAt
	case EventOrderRedacted:
		// Audit tombstone, no state transition.
	default:
		return fmt.Errorf("unknown order event type %q", event.EventType)
	}
	o.Version = event.SequenceNumber
	return nil
}

type Service struct {
	events    store.EventStoreInterface
	snapshots store.SnapshotStoreInterface
}

func NewService(events store.EventStoreInterface, snapshots store.SnapshotStoreInterface) *Service {
	return &Service{events: events, snapshots: snapshots}
}

// Load rebuilds the order from snapshot plus replay
func (s *Service) Load(ctx context.Context, orderID string) (*Order, error) {
	o, found, err := aggregate.Load(ctx, s.events, s.snapshots, orderID, func() *Order {
		return &Order{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func newEvent(eventType string, payload any, meta aggregate.Meta) (store.NewEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return store.NewEvent{}, fmt.Errorf("failed to encode %s: %w", eventType, err)
	}
	return store.NewEvent{
		ID:            uuid.New().String(),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Data:          data,
		OccurredAt:    time.Now(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
	}, nil
}

// Create opens a new order aggregate. The empty stream has version 0, so a
// duplicate create collides on the concurrency check.
func (s *Service) Create(ctx context.Context, orderID, customerID string, items []OrderItem, meta aggregate.Meta) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	if orderID == "" {
		orderID = uuid.New().String()
	}

	var total int
	for _, item := range items {
		total += item.Price * item.Quantity
	}

	event, err := newEvent(EventOrderCreated, OrderCreated{
		OrderID:    orderID,
		CustomerID: customerID,
		Items:      items,
		Total:      total,
		CreatedAt:  time.Now(),
	}, meta)
	if err != nil {
		return nil, err
	}

	committed, err := aggregate.Save(ctx, s.events, orderID, AggregateType, 0, []store.NewEvent{event})
	if err != nil {
		if errors.Is(err, store.ErrConcurrencyConflict) {
			return nil, fmt.Errorf("%w: %s", ErrOrderExists, orderID)
		}
		return nil, err
	}

	o := &Order{}
	for _, e := range committed {
		if err := o.ApplyEvent(e); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// mutate loads the order, derives one event through fn and appends it with
// the loaded version, retrying the whole cycle on a concurrency conflict.
func (s *Service) mutate(ctx context.Context, orderID string, meta aggregate.Meta, fn func(o *Order) (string, any, error)) error {
	return aggregate.RetryOnConflict(ctx, aggregate.ConflictRetries, func(ctx context.Context) error {
		o, err := s.Load(ctx, orderID)
		if err != nil {
			return err
		}

		eventType, payload, err := fn(o)
		if err != nil {
			return err
		}

		event, err := newEvent(eventType, payload, meta)
		if err != nil {
			return err
		}

		committed, err := aggregate.Save(ctx, s.events, orderID, AggregateType, o.Version, []store.NewEvent{event})
		if err != nil {
			return err
		}

		for _, e := range committed {
			if err := o.ApplyEvent(e); err != nil {
				return err
			}
		}
		aggregate.SnapshotAsync(s.snapshots, o, AggregateType)
		return nil
	})
}

func (s *Service) AddItem(ctx context.Context, orderID string, item OrderItem, meta aggregate.Meta) error {
	return s.mutate(ctx, orderID, meta, func(o *Order) (string, any, error) {
		if o.Status != StatusPending {
			return "", nil, ErrOrderNotPending
		}
		return EventItemAdded, ItemAdded{
			OrderID: orderID,
			Item:    item,
			AddedAt: time.Now(),
		}, nil
	})
}

func (s *Service) Pay(ctx context.Context, orderID, paymentID string, amount int, meta aggregate.Meta) error {
	return s.mutate(ctx, orderID, meta, func(o *Order) (string, any, error) {
		if !o.CanTransitionTo(StatusPaid) {
			return "", nil, o.transitionError(StatusPaid)
		}
		return EventOrderPaid, OrderPaid{
			OrderID:   orderID,
			PaymentID: paymentID,
			Amount:    amount,
			PaidAt:    time.Now(),
		}, nil
	})
}

func (s *Service) Ship(ctx context.Context, orderID string, meta aggregate.Meta) error {
	return s.mutate(ctx, orderID, meta, func(o *Order) (string, any, error) {
		if !o.CanTransitionTo(StatusShipped) {
			return "", nil, o.transitionError(StatusShipped)
		}
		return EventOrderShipped, OrderShipped{
			OrderID:   orderID,
			ShippedAt: time.Now(),
		}, nil
	})
}

func (s *Service) Cancel(ctx context.Context, orderID, reason string, meta aggregate.Meta) error {
	return s.mutate(ctx, orderID, meta, func(o *Order) (string, any, error) {
		if !o.CanTransitionTo(StatusCancelled) {
			return "", nil, o.transitionError(StatusCancelled)
		}
		return EventOrderCancelled, OrderCancelled{
			OrderID:     orderID,
			Reason:      reason,
			CancelledAt: time.Now(),
		}, nil
	})
}
