package payment

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

const AggregateType = "Payment"

type Status string

const (
	StatusAuthorized Status = "authorized"
	StatusCaptured   Status = "captured"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrPaymentExists       = errors.New("payment already exists")
	ErrNotAuthorized       = errors.New("payment is not in authorized state")
	ErrNotCaptured         = errors.New("only captured payments can be refunded")
	ErrRefundExceedsAmount = errors.New("refund exceeds captured amount")
)

type Payment struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Amount    int       `json:"amount"`
	Refunded  int       `json:"refunded"`
	Method    string    `json:"method"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

func (p *Payment) GetID() string   { return p.ID }
func (p *Payment) GetVersion() int { return p.Version }

func decodePayload(event store.Event, out any) error {
	if len(event.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(event.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", event.EventType, err)
	}
	return nil
}

// ApplyEvent folds a single event into the payment state. Pure by contract.
func (p *Payment) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventPaymentAuthorized:
		var data PaymentAuthorized
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		p.ID = data.PaymentID
		p.OrderID = data.OrderID
		p.Amount = data.Amount
		p.Method = data.Method
		p.Status = StatusAuthorized
		p.CreatedAt = data.AuthorizedAt
		p.UpdatedAt = data.AuthorizedAt
	case EventPaymentCaptured:
		var data PaymentCaptured
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		p.Status = StatusCaptured
		p.UpdatedAt = data.CapturedAt
	case EventPaymentFailed:
		var data PaymentFailed
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		p.Status = StatusFailed
		p.UpdatedAt = data.FailedAt
	case EventPaymentRefunded:
		var data PaymentRefunded
		if err := decodePayload(event, &data); err != nil {
			return err
		}
		p.Refunded += data.Amount
		p.Status = StatusRefunded
		p.UpdatedAt = data.RefundedAt
	default:
		return fmt.Errorf("unknown payment event type %q", event.EventType)
	}
	p.Version = event.SequenceNumber
	return nil
}

type Service struct {
	events    store.EventStoreInterface
	snapshots store.SnapshotStoreInterface
}

func NewService(events store.EventStoreInterface, snapshots store.SnapshotStoreInterface) *Service {
	return &Service{events: events, snapshots: snapshots}
}

func (s *Service) Load(ctx context.Context, paymentID string) (*Payment, error) {
	p, found, err := aggregate.Load(ctx, s.events, s.snapshots, paymentID, func() *Payment {
		return &Payment{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPaymentNotFound
	}
	return p, nil
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

// Authorize opens a new payment aggregate at version 0
func (s *Service) Authorize(ctx context.Context, paymentID, orderID string, amount int, method string, meta aggregate.Meta) (*Payment, error) {
	if paymentID == "" {
		paymentID = uuid.New().String()
	}

	event, err := newEvent(EventPaymentAuthorized, PaymentAuthorized{
		PaymentID:    paymentID,
		OrderID:      orderID,
		Amount:       amount,
		Method:       method,
		AuthorizedAt: time.Now(),
	}, meta)
	if err != nil {
		return nil, err
	}

	committed, err := aggregate.Save(ctx, s.events, paymentID, AggregateType, 0, []store.NewEvent{event})
	if err != nil {
		if errors.Is(err, store.ErrConcurrencyConflict) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentExists, paymentID)
		}
		return nil, err
	}

	p := &Payment{}
	for _, e := range committed {
		if err := p.ApplyEvent(e); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *Service) mutate(ctx context.Context, paymentID string, meta aggregate.Meta, fn func(p *Payment) (string, any, error)) error {
	return aggregate.RetryOnConflict(ctx, aggregate.ConflictRetries, func(ctx context.Context) error {
		p, err := s.Load(ctx, paymentID)
		if err != nil {
			return err
		}

		eventType, payload, err := fn(p)
		if err != nil {
			return err
		}

		event, err := newEvent(eventType, payload, meta)
		if err != nil {
			return err
		}

		committed, err := aggregate.Save(ctx, s.events, paymentID, AggregateType, p.Version, []store.NewEvent{event})
		if err != nil {
			return err
		}

		for _, e := range committed {
			if err := p.ApplyEvent(e); err != nil {
				return err
			}
		}
		aggregate.SnapshotAsync(s.snapshots, p, AggregateType)
		return nil
	})
}

func (s *Service) Capture(ctx context.Context, paymentID string, meta aggregate.Meta) error {
	return s.mutate(ctx, paymentID, meta, func(p *Payment) (string, any, error) {
		if p.Status != StatusAuthorized {
			return "", nil, ErrNotAuthorized
		}
		return EventPaymentCaptured, PaymentCaptured{
			PaymentID:  paymentID,
			Amount:     p.Amount,
			CapturedAt: time.Now(),
		}, nil
	})
}

func (s *Service) Fail(ctx context.Context, paymentID, reason string, meta aggregate.Meta) error {
	return s.mutate(ctx, paymentID, meta, func(p *Payment) (string, any, error) {
		if p.Status != StatusAuthorized {
			return "", nil, ErrNotAuthorized
		}
		return EventPaymentFailed, PaymentFailed{
			PaymentID: paymentID,
			Reason:    reason,
			FailedAt:  time.Now(),
		}, nil
	})
}

func (s *Service) Refund(ctx context.Context, paymentID string, amount int, reason string, meta aggregate.Meta) error {
	return s.mutate(ctx, paymentID, meta, func(p *Payment) (string, any, error) {
		if p.Status != StatusCaptured && p.Status != StatusRefunded {
			return "", nil, ErrNotCaptured
		}
		if p.Refunded+amount > p.Amount {
			return "", nil, ErrRefundExceedsAmount
		}
		return EventPaymentRefunded, PaymentRefunded{
			PaymentID:  paymentID,
			Amount:     amount,
			Reason:     reason,
			RefundedAt: time.Now(),
		}, nil
	})
}
