package inventory

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

const AggregateType = "Inventory"

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrNegativeOnHand    = errors.New("adjustment would make on-hand stock negative")
)

// Inventory tracks stock for a single SKU; the SKU is the aggregate id.
type Inventory struct {
	SKU       string    `json:"sku"`
	OnHand    int       `json:"on_hand"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

func (inv *Inventory) GetID() string   { return inv.SKU }
func (inv *Inventory) GetVersion() int { return inv.Version }

func decodePayload(event store.Event, out any) error {
	if len(event.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(event.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", event.EventType, err)
	}
	return nil
}

// ApplyEvent folds a single event into the stock level. Pure by contract.
func (inv *Inventory) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventStockReceived:
		var data StockReceived
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		inv.SKU = data.SKU
		inv.OnHand += data.Quantity
		inv.UpdatedAt = data.ReceivedAt
	case EventStockReserved:
		var data StockReserved
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		inv.OnHand -= data.Quantity
		inv.Reserved += data.Quantity
		inv.UpdatedAt = data.ReservedAt
	case EventStockReleased:
		var data StockReleased
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		inv.OnHand += data.Quantity
		inv.Reserved -= data.Quantity
		inv.UpdatedAt = data.ReleasedAt
	case EventStockAdjusted:
		var data StockAdjusted
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		inv.OnHand += data.Delta
		inv.UpdatedAt = data.AdjustedAt
	default:
		return fmt.Errorf("unknown inventory event type %q", event.EventType)
	}
	inv.Version = event.SequenceNumber
	return nil
}

type Service struct {
	events    store.EventStoreInterface
	snapshots store.SnapshotStoreInterface
}

func NewService(events store.EventStoreInterface, snapshots store.SnapshotStoreInterface) *Service {
	return &Service{events: events, snapshots: snapshots}
}

// Load rebuilds stock for a SKU; an unknown SKU is an empty level at
// version 0, not an error, because the first receipt creates the stream.
func (s *Service) Load(ctx context.Context, sku string) (*Inventory, error) {
	inv, found, err := aggregate.Load(ctx, s.events, s.snapshots, sku, func() *Inventory {
		return &Inventory{SKU: sku}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return &Inventory{SKU: sku}, nil
	}
	return inv, nil
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

func (s *Service) mutate(ctx context.Context, sku string, meta aggregate.Meta, fn func(inv *Inventory) (string, any, error)) error {
	return aggregate.RetryOnConflict(ctx, aggregate.ConflictRetries, func(ctx context.Context) error {
		inv, err := s.Load(ctx, sku)
		if err != nil {
			return err
		}

		eventType, payload, err := fn(inv)
		if err != nil {
			return err
		}

		event, err := newEvent(eventType, payload, meta)
		if err != nil {
			return err
		}

		committed, err := aggregate.Save(ctx, s.events, sku, AggregateType, inv.Version, []store.NewEvent{event})
		if err != nil {
			return err
		}

		for _, e := range committed {
			if err := inv.ApplyEvent(e); err != nil {
				return err
			}
		}
		aggregate.SnapshotAsync(s.snapshots, inv, AggregateType)
		return nil
	})
}

func (s *Service) Receive(ctx context.Context, sku string, quantity int, meta aggregate.Meta) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return s.mutate(ctx, sku, meta, func(inv *Inventory) (string, any, error) {
		return EventStockReceived, StockReceived{
			SKU:        sku,
			Quantity:   quantity,
			ReceivedAt: time.Now(),
		}, nil
	})
}

func (s *Service) Reserve(ctx context.Context, sku, orderID string, quantity int, meta aggregate.Meta) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return s.mutate(ctx, sku, meta, func(inv *Inventory) (string, any, error) {
		if inv.OnHand < quantity {
			return "", nil, fmt.Errorf("%w: sku %s has %d on hand, need %d", ErrInsufficientStock, sku, inv.OnHand, quantity)
		}
		return EventStockReserved, StockReserved{
			SKU:        sku,
			OrderID:    orderID,
			Quantity:   quantity,
			ReservedAt: time.Now(),
		}, nil
	})
}

func (s *Service) Release(ctx context.Context, sku, orderID string, quantity int, meta aggregate.Meta) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return s.mutate(ctx, sku, meta, func(inv *Inventory) (string, any, error) {
		if inv.Reserved < quantity {
			return "", nil, fmt.Errorf("%w: sku %s has %d reserved, releasing %d", ErrInsufficientStock, sku, inv.Reserved, quantity)
		}
		return EventStockReleased, StockReleased{
			SKU:        sku,
			OrderID:    orderID,
			Quantity:   quantity,
			ReleasedAt: time.Now(),
		}, nil
	})
}

func (s *Service) Adjust(ctx context.Context, sku string, delta int, reason string, meta aggregate.Meta) error {
	if delta == 0 {
		return ErrInvalidQuantity
	}
	return s.mutate(ctx, sku, meta, func(inv *Inventory) (string, any, error) {
		if inv.OnHand+delta < 0 {
			return "", nil, fmt.Errorf("%w: sku %s on hand %d, delta %d", ErrNegativeOnHand, sku, inv.OnHand, delta)
		}
		return EventStockAdjusted, StockAdjusted{
			SKU:        sku,
			Delta:      delta,
			Reason:     reason,
			AdjustedAt: time.Now(),
		}, nil
	})
}
