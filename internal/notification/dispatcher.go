package notification

import (
	"context"
	"fmt"

	"github.com/example/ec-audit-core/internal/domain/order"
	"github.com/example/ec-audit-core/internal/domain/payment"
	"github.com/example/ec-audit-core/internal/infrastructure/store"
)

// CommandType identifies an outbound notification
type CommandType string

const (
	CommandOrderConfirmation CommandType = "order_confirmation"
	CommandOrderPaid         CommandType = "order_paid"
	CommandOrderShipped      CommandType = "order_shipped"
	CommandOrderCancelled    CommandType = "order_cancelled"
	CommandPaymentRefunded   CommandType = "payment_refunded"
)

// Command is the message handed to the notification worker over the queue.
// It carries everything needed to deliver without reading the event log.
type Command struct {
	Type          CommandType `json:"type"`
	EventID       string      `json:"event_id"`
	AggregateID   string      `json:"aggregate_id"`
	CustomerID    string      `json:"customer_id,omitempty"`
	OrderID       string      `json:"order_id,omitempty"`
	Amount        int         `json:"amount,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// Publisher is the outbound queue seam (satisfied by kafka.Producer)
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// Dispatcher turns committed events into notification commands on a queue.
// Delivery runs in a separate worker, so notification reliability never
// touches the event log or the read models.
type Dispatcher struct {
	publisher Publisher
}

func NewDispatcher(publisher Publisher) *Dispatcher {
	return &Dispatcher{publisher: publisher}
}

// EventCommitted implements projection.EventNotifier
func (d *Dispatcher) EventCommitted(ctx context.Context, event store.Event) error {
	cmd, ok, err := CommandForEvent(event)
	if err != nil || !ok {
		return err
	}
	if err := d.publisher.Publish(ctx, cmd.AggregateID, cmd); err != nil {
		return fmt.Errorf("failed to publish %s command: %w", cmd.Type, err)
	}
	return nil
}

// CommandForEvent maps a committed event to its notification command, if
// the event type warrants one
func CommandForEvent(event store.Event) (Command, bool, error) {
	cmd := Command{
		EventID:       event.ID,
		AggregateID:   event.AggregateID,
		CorrelationID: event.CorrelationID,
	}

	decode := func(out any) error {
		if len(event.Data) == 0 {
			return nil
		}
		return unmarshal(event.Data, out)
	}

	switch event.EventType {
	case order.EventOrderCreated:
		var e order.OrderCreated
		if err := decode(&e); err != nil {
			return cmd, false, err
		}
		cmd.Type = CommandOrderConfirmation
		cmd.CustomerID = e.CustomerID
		cmd.OrderID = e.OrderID
		cmd.Amount = e.Total
	case order.EventOrderPaid:
		var e order.OrderPaid
		if err := decode(&e); err != nil {
			return cmd, false, err
		}
		cmd.Type = CommandOrderPaid
		cmd.OrderID = e.OrderID
		cmd.Amount = e.Amount
	case order.EventOrderShipped:
		var e order.OrderShipped
		if err := decode(&e); err != nil {
			return cmd, false, err
		}
		cmd.Type = CommandOrderShipped
		cmd.OrderID = e.OrderID
	case order.EventOrderCancelled:
		var e order.OrderCancelled
		if err := decode(&e); err != nil {
			return cmd, false, err
		}
		cmd.Type = CommandOrderCancelled
		cmd.OrderID = e.OrderID
		cmd.Reason = e.Reason
	case payment.EventPaymentRefunded:
		var e payment.PaymentRefunded
		if err := decode(&e); err != nil {
			return cmd, false, err
		}
		cmd.Type = CommandPaymentRefunded
		cmd.OrderID = event.AggregateID
		cmd.Amount = e.Amount
		cmd.Reason = e.Reason
	default:
		return cmd, false, nil
	}

	return cmd, true, nil
}
