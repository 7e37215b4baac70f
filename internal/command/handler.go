package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/ec-audit-core/internal/audit"
	"github.com/example/ec-audit-core/internal/domain/aggregate"
	"github.com/example/ec-audit-core/internal/domain/inventory"
	"github.com/example/ec-audit-core/internal/domain/order"
	"github.com/example/ec-audit-core/internal/domain/payment"
	"github.com/example/ec-audit-core/internal/infrastructure/store"
	"github.com/google/uuid"
)

// Handler is the library-level inbound seam: validated commands in, events
// out. No transport, no authentication; callers own both.
type Handler struct {
	orderSvc     *order.Service
	paymentSvc   *payment.Service
	inventorySvc *inventory.Service
	auditSvc     *audit.Service
	events       store.EventStoreInterface
}

func NewHandler(
	orderSvc *order.Service,
	paymentSvc *payment.Service,
	inventorySvc *inventory.Service,
	auditSvc *audit.Service,
	events store.EventStoreInterface,
) *Handler {
	return &Handler{
		orderSvc:     orderSvc,
		paymentSvc:   paymentSvc,
		inventorySvc: inventorySvc,
		auditSvc:     auditSvc,
		events:       events,
	}
}

func meta(correlationID, causationID string) aggregate.Meta {
	return aggregate.Meta{CorrelationID: correlationID, CausationID: causationID}
}

func (h *Handler) CreateOrder(ctx context.Context, cmd CreateOrder) (*order.Order, error) {
	return h.orderSvc.Create(ctx, cmd.OrderID, cmd.CustomerID, cmd.Items, meta(cmd.CorrelationID, ""))
}

func (h *Handler) AddOrderItem(ctx context.Context, cmd AddOrderItem) error {
	return h.orderSvc.AddItem(ctx, cmd.OrderID, cmd.Item, meta(cmd.CorrelationID, cmd.CausationID))
}

func (h *Handler) PayOrder(ctx context.Context, cmd PayOrder) error {
	return h.orderSvc.Pay(ctx, cmd.OrderID, cmd.PaymentID, cmd.Amount, meta(cmd.CorrelationID, cmd.CausationID))
}

func (h *Handler) ShipOrder(ctx context.Context, cmd ShipOrder) error {
	return h.orderSvc.Ship(ctx, cmd.OrderID, meta(cmd.CorrelationID, cmd.CausationID))
}

func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) error {
	return h.orderSvc.Cancel(ctx, cmd.OrderID, cmd.Reason, meta(cmd.CorrelationID, cmd.CausationID))
}

func (h *Handler) AuthorizePayment(ctx context.Context, cmd AuthorizePayment) (*payment.Payment, error) {
	return h.paymentSvc.Authorize(ctx, cmd.PaymentID, cmd.OrderID, cmd.Amount, cmd.Method, meta(cmd.CorrelationID, cmd.CausationID))
}

func (h *Handler) CapturePayment(ctx context.Context, cmd CapturePayment) error {
	return h.paymentSvc.Capture(ctx, cmd.PaymentID, meta(cmd.CorrelationID, cmd.CausationID))
}

func (h *Handler) FailPayment(ctx context.Context, cmd FailPayment) error {
	return h.paymentSvc.Fail(ctx, cmd.PaymentID, cmd.Reason, meta(cmd.CorrelationID, cmd.CausationID))
}

func (h *Handler) RefundPayment(ctx context.Context, cmd RefundPayment) error {
	return h.paymentSvc.Refund(ctx, cmd.PaymentID, cmd.Amount, cmd.Reason, meta(cmd.CorrelationID, cmd.CausationID))
}

func (h *Handler) ReceiveStock(ctx context.Context, cmd ReceiveStock) error {
	return h.inventorySvc.Receive(ctx, cmd.SKU, cmd.Quantity, meta(cmd.CorrelationID, ""))
}

func (h *Handler) ReserveStock(ctx context.Context, cmd ReserveStock) error {
	return h.inventorySvc.Reserve(ctx, cmd.SKU, cmd.OrderID, cmd.Quantity, meta(cmd.CorrelationID, cmd.CausationID))
}

func (h *Handler) ReleaseStock(ctx context.Context, cmd ReleaseStock) error {
	return h.inventorySvc.Release(ctx, cmd.SKU, cmd.OrderID, cmd.Quantity, meta(cmd.CorrelationID, cmd.CausationID))
}

func (h *Handler) AdjustStock(ctx context.Context, cmd AdjustStock) error {
	return h.inventorySvc.Adjust(ctx, cmd.SKU, cmd.Delta, cmd.Reason, meta(cmd.CorrelationID, ""))
}

func (h *Handler) RedactOrderEvent(ctx context.Context, cmd RedactOrderEvent) error {
	payload, err := json.Marshal(order.OrderPayloadRedacted{
		OrderID:        cmd.OrderID,
		SequenceNumber: cmd.SequenceNumber,
		Reason:         cmd.Reason,
		RedactedAt:     time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode tombstone: %w", err)
	}
	tombstone := store.NewEvent{
		ID:            uuid.New().String(),
		EventType:     order.EventOrderRedacted,
		SchemaVersion: order.SchemaVersion,
		Data:          payload,
		OccurredAt:    time.Now(),
		CorrelationID: cmd.CorrelationID,
	}
	return h.auditSvc.Redact(ctx, cmd.OrderID, order.AggregateType, cmd.SequenceNumber, tombstone)
}

// Health reports whether the append and read paths are reachable
func (h *Handler) Health(ctx context.Context) error {
	return h.events.Ping(ctx)
}
