package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/example/ec-audit-core/internal/domain/inventory"
	"github.com/example/ec-audit-core/internal/domain/order"
	"github.com/example/ec-audit-core/internal/domain/payment"
	"github.com/example/ec-audit-core/internal/infrastructure/store"
	"github.com/example/ec-audit-core/internal/readmodel"
)

// EventNotifier receives successfully projected events for side-effect
// fan-out (notification commands onto a queue). Failures are logged, never
// propagated: side-effect reliability must not affect read model progress.
type EventNotifier interface {
	EventCommitted(ctx context.Context, event store.Event) error
}

// Projector consumes committed events and maintains the read models.
// Delivery is at-least-once; every handler is an idempotent upsert guarded
// by the row's last applied sequence, and applied event ids are recorded so
// redeliveries are observable no-ops. A poison event is retried with
// doubling backoff, then dead-lettered, and the projector moves on.
type Projector struct {
	name        string
	readStore   store.ReadStoreInterface
	checkpoints store.CheckpointStoreInterface
	deadLetters store.DeadLetterStoreInterface
	notifier    EventNotifier
	maxAttempts int
	baseBackoff time.Duration
}

func NewProjector(name string, readStore store.ReadStoreInterface, checkpoints store.CheckpointStoreInterface, deadLetters store.DeadLetterStoreInterface) *Projector {
	return &Projector{
		name:        name,
		readStore:   readStore,
		checkpoints: checkpoints,
		deadLetters: deadLetters,
		maxAttempts: 3,
		baseBackoff: 50 * time.Millisecond,
	}
}

// WithNotifier attaches a side-effect fan-out
func (p *Projector) WithNotifier(n EventNotifier) *Projector {
	p.notifier = n
	return p
}

// WithRetry overrides the poison-event retry policy
func (p *Projector) WithRetry(maxAttempts int, baseBackoff time.Duration) *Projector {
	if maxAttempts > 0 {
		p.maxAttempts = maxAttempts
	}
	if baseBackoff > 0 {
		p.baseBackoff = baseBackoff
	}
	return p
}

// HandleEvent is the Kafka consumer entrypoint
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return p.Apply(ctx, event)
}

// Apply projects one committed event. Returning nil advances the consumer;
// only infrastructure failures before the retry loop surface as errors.
func (p *Projector) Apply(ctx context.Context, event store.Event) error {
	var err error
	backoff := p.baseBackoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err = p.project(ctx, event)
		if err == nil {
			break
		}
		log.Printf("[Projector] Attempt %d/%d failed for event %s (%s): %v",
			attempt, p.maxAttempts, event.ID, event.EventType, err)
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	if err != nil {
		// Dead-letter and advance: one poison event must not stall the
		// projection for every event behind it.
		dl := store.DeadLetter{
			Projection: p.name,
			EventID:    event.ID,
			Event:      event,
			Reason:     err.Error(),
			Attempts:   p.maxAttempts,
			FailedAt:   time.Now(),
		}
		if dlErr := p.deadLetters.Add(ctx, dl); dlErr != nil {
			// Could not even record the failure; keep the event in-flight.
			return fmt.Errorf("failed to dead-letter event %s: %w", event.ID, dlErr)
		}
		log.Printf("[Projector] Dead-lettered event %s (%s) after %d attempts", event.ID, event.EventType, p.maxAttempts)
	} else {
		redelivered, seenErr := p.readStore.SeenEvent(ctx, p.name, event.ID)
		if seenErr != nil {
			log.Printf("[Projector] Failed to record applied event %s: %v", event.ID, seenErr)
		} else if redelivered {
			log.Printf("[Projector] Event %s redelivered, applied as no-op", event.ID)
		}
	}

	p.saveCheckpoint(ctx, event)

	if err == nil && p.notifier != nil {
		if nerr := p.notifier.EventCommitted(ctx, event); nerr != nil {
			log.Printf("[Projector] Notification fan-out failed for event %s: %v", event.ID, nerr)
		}
	}

	return nil
}

func (p *Projector) saveCheckpoint(ctx context.Context, event store.Event) {
	cp, err := p.checkpoints.Get(ctx, p.name)
	if err != nil {
		log.Printf("[Projector] Failed to load checkpoint: %v", err)
		return
	}
	if event.GlobalPosition > 0 && event.GlobalPosition <= cp.Position {
		return
	}
	cp.Projection = p.name
	cp.Position = event.GlobalPosition
	cp.LastEventID = event.ID
	if err := p.checkpoints.Save(ctx, cp); err != nil {
		log.Printf("[Projector] Failed to save checkpoint: %v", err)
	}
}

// Rebuild replays the log in commit order from the durable checkpoint.
// Starting from a zero checkpoint rebuilds the read models from scratch.
func (p *Projector) Rebuild(ctx context.Context, events store.EventStoreInterface, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	cp, err := p.checkpoints.Get(ctx, p.name)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	applied := 0
	position := cp.Position
	for {
		batch, err := events.ReadAllEvents(ctx, position, batchSize)
		if err != nil {
			return applied, fmt.Errorf("failed to read events after position %d: %w", position, err)
		}
		if len(batch) == 0 {
			return applied, nil
		}
		for _, event := range batch {
			if err := p.Apply(ctx, event); err != nil {
				return applied, err
			}
			applied++
		}
		position = batch[len(batch)-1].GlobalPosition
	}
}

func (p *Projector) project(ctx context.Context, event store.Event) error {
	switch event.AggregateType {
	case order.AggregateType:
		return p.handleOrderEvent(ctx, event)
	case payment.AggregateType:
		return p.handlePaymentEvent(ctx, event)
	case inventory.AggregateType:
		return p.handleInventoryEvent(ctx, event)
	}
	// Unknown aggregate types are skipped, not failed: new producers may be
	// deployed before this projection learns their events.
	return nil
}

func decode(event store.Event, out any) error {
	if len(event.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(event.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", event.EventType, err)
	}
	return nil
}

func (p *Projector) handleOrderEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case order.EventOrderCreated:
		var e order.OrderCreated
		if err := decode(event, &e); err != nil {
			return err
		}
		if current, ok, err := p.readStore.Get(ctx, readmodel.CollectionOrders, event.AggregateID); err != nil {
			return err
		} else if ok && current.(*readmodel.OrderSummary).LastSequence >= event.SequenceNumber {
			return nil
		}
		items := make([]readmodel.OrderItemReadModel, len(e.Items))
		for i, item := range e.Items {
			items[i] = readmodel.OrderItemReadModel{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
		}
		return p.readStore.Set(ctx, readmodel.CollectionOrders, event.AggregateID, &readmodel.OrderSummary{
			ID:                 e.OrderID,
			CustomerID:         e.CustomerID,
			Items:              items,
			Total:              e.Total,
			Status:             string(order.StatusPending),
			CreatedAt:          e.CreatedAt,
			UpdatedAt:          e.CreatedAt,
			LastAppliedEventID: event.ID,
			LastSequence:       event.SequenceNumber,
		})

	case order.EventItemAdded:
		var e order.ItemAdded
		if err := decode(event, &e); err != nil {
			return err
		}
		return p.updateOrder(ctx, event, func(o *readmodel.OrderSummary) {
			o.Items = append(o.Items, readmodel.OrderItemReadModel{
				ProductID: e.Item.ProductID, Quantity: e.Item.Quantity, Price: e.Item.Price,
			})
			o.Total += e.Item.Price * e.Item.Quantity
			o.UpdatedAt = e.AddedAt
		})

	case order.EventOrderPaid:
		var e order.OrderPaid
		if err := decode(event, &e); err != nil {
			return err
		}
		return p.updateOrder(ctx, event, func(o *readmodel.OrderSummary) {
			o.Status = string(order.StatusPaid)
			o.UpdatedAt = e.PaidAt
		})

	case order.EventOrderShipped:
		var e order.OrderShipped
		if err := decode(event, &e); err != nil {
			return err
		}
		return p.updateOrder(ctx, event, func(o *readmodel.OrderSummary) {
			o.Status = string(order.StatusShipped)
			o.UpdatedAt = e.ShippedAt
		})

	case order.EventOrderCancelled:
		var e order.OrderCancelled
		if err := decode(event, &e); err != nil {
			return err
		}
		return p.updateOrder(ctx, event, func(o *readmodel.OrderSummary) {
			o.Status = string(order.StatusCancelled)
			o.UpdatedAt = e.CancelledAt
		})

	case order.EventOrderRedacted:
		// Tombstone only advances the row's sequence bookkeeping.
		return p.updateOrder(ctx, event, func(o *readmodel.OrderSummary) {})
	}

	return nil
}

// updateOrder applies an idempotent guarded update to an order summary
func (p *Projector) updateOrder(ctx context.Context, event store.Event, apply func(o *readmodel.OrderSummary)) error {
	updated, err := p.readStore.Update(ctx, readmodel.CollectionOrders, event.AggregateID, func(current any) any {
		o := current.(*readmodel.OrderSummary)
		if o.LastSequence >= event.SequenceNumber {
			return o // already applied
		}
		apply(o)
		o.LastAppliedEventID = event.ID
		o.LastSequence = event.SequenceNumber
		return o
	})
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("order summary %s missing for event %s", event.AggregateID, event.ID)
	}
	return nil
}

func (p *Projector) handlePaymentEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case payment.EventPaymentAuthorized:
		var e payment.PaymentAuthorized
		if err := decode(event, &e); err != nil {
			return err
		}
		if current, ok, err := p.readStore.Get(ctx, readmodel.CollectionPayments, event.AggregateID); err != nil {
			return err
		} else if ok && current.(*readmodel.PaymentStatement).LastSequence >= event.SequenceNumber {
			return nil
		}
		return p.readStore.Set(ctx, readmodel.CollectionPayments, event.AggregateID, &readmodel.PaymentStatement{
			ID:                 e.PaymentID,
			OrderID:            e.OrderID,
			Amount:             e.Amount,
			Method:             e.Method,
			Status:             string(payment.StatusAuthorized),
			UpdatedAt:          e.AuthorizedAt,
			LastAppliedEventID: event.ID,
			LastSequence:       event.SequenceNumber,
		})

	case payment.EventPaymentCaptured:
		var e payment.PaymentCaptured
		if err := decode(event, &e); err != nil {
			return err
		}
		return p.updatePayment(ctx, event, func(m *readmodel.PaymentStatement) {
			m.Status = string(payment.StatusCaptured)
			m.UpdatedAt = e.CapturedAt
		})

	case payment.EventPaymentFailed:
		var e payment.PaymentFailed
		if err := decode(event, &e); err != nil {
			return err
		}
		return p.updatePayment(ctx, event, func(m *readmodel.PaymentStatement) {
			m.Status = string(payment.StatusFailed)
			m.UpdatedAt = e.FailedAt
		})

	case payment.EventPaymentRefunded:
		var e payment.PaymentRefunded
		if err := decode(event, &e); err != nil {
			return err
		}
		return p.updatePayment(ctx, event, func(m *readmodel.PaymentStatement) {
			m.Refunded += e.Amount
			m.Status = string(payment.StatusRefunded)
			m.UpdatedAt = e.RefundedAt
		})
	}

	return nil
}

func (p *Projector) updatePayment(ctx context.Context, event store.Event, apply func(m *readmodel.PaymentStatement)) error {
	updated, err := p.readStore.Update(ctx, readmodel.CollectionPayments, event.AggregateID, func(current any) any {
		m := current.(*readmodel.PaymentStatement)
		if m.LastSequence >= event.SequenceNumber {
			return m
		}
		apply(m)
		m.LastAppliedEventID = event.ID
		m.LastSequence = event.SequenceNumber
		return m
	})
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("payment statement %s missing for event %s", event.AggregateID, event.ID)
	}
	return nil
}

func (p *Projector) handleInventoryEvent(ctx context.Context, event store.Event) error {
	apply := func(level *readmodel.InventoryLevel) error {
		switch event.EventType {
		case inventory.EventStockReceived:
			var e inventory.StockReceived
			if err := decode(event, &e); err != nil {
				return err
			}
			level.OnHand += e.Quantity
			level.UpdatedAt = e.ReceivedAt
		case inventory.EventStockReserved:
			var e inventory.StockReserved
			if err := decode(event, &e); err != nil {
				return err
			}
			level.OnHand -= e.Quantity
			level.Reserved += e.Quantity
			level.UpdatedAt = e.ReservedAt
		case inventory.EventStockReleased:
			var e inventory.StockReleased
			if err := decode(event, &e); err != nil {
				return err
			}
			level.OnHand += e.Quantity
			level.Reserved -= e.Quantity
			level.UpdatedAt = e.ReleasedAt
		case inventory.EventStockAdjusted:
			var e inventory.StockAdjusted
			if err := decode(event, &e); err != nil {
				return err
			}
			level.OnHand += e.Delta
			level.UpdatedAt = e.AdjustedAt
		}
		return nil
	}

	current, ok, err := p.readStore.Get(ctx, readmodel.CollectionInventory, event.AggregateID)
	if err != nil {
		return err
	}

	level := &readmodel.InventoryLevel{SKU: event.AggregateID}
	if ok {
		level = current.(*readmodel.InventoryLevel)
		if level.LastSequence >= event.SequenceNumber {
			return nil
		}
	}
	if err := apply(level); err != nil {
		return err
	}
	level.LastAppliedEventID = event.ID
	level.LastSequence = event.SequenceNumber
	return p.readStore.Set(ctx, readmodel.CollectionInventory, event.AggregateID, level)
}
