package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-audit-core/internal/audit"
	"github.com/example/ec-audit-core/internal/domain/inventory"
	"github.com/example/ec-audit-core/internal/domain/order"
	"github.com/example/ec-audit-core/internal/domain/payment"
	"github.com/example/ec-audit-core/internal/infrastructure/store"
	"github.com/example/ec-audit-core/internal/infrastructure/store/mocks"
)

func newTestHandler() (*Handler, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	snapshots := store.NewSnapshotStore()
	return NewHandler(
		order.NewService(eventStore, snapshots),
		payment.NewService(eventStore, snapshots),
		inventory.NewService(eventStore, snapshots),
		audit.NewService(eventStore),
		eventStore,
	), eventStore
}

func TestHandler_OrderFlow(t *testing.T) {
	h, eventStore := newTestHandler()
	ctx := context.Background()

	o, err := h.CreateOrder(ctx, CreateOrder{
		OrderID:       "order-1",
		CustomerID:    "customer-1",
		Items:         []order.OrderItem{{ProductID: "prod-1", Quantity: 1, Price: 1000}},
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "order-1", o.ID)

	require.NoError(t, h.AddOrderItem(ctx, AddOrderItem{
		OrderID:       "order-1",
		Item:          order.OrderItem{ProductID: "prod-2", Quantity: 2, Price: 250},
		CorrelationID: "corr-1",
	}))
	require.NoError(t, h.PayOrder(ctx, PayOrder{
		OrderID: "order-1", PaymentID: "payment-1", Amount: 1500, CorrelationID: "corr-1",
	}))
	require.NoError(t, h.ShipOrder(ctx, ShipOrder{OrderID: "order-1", CorrelationID: "corr-1"}))

	events, err := eventStore.ReadEvents(ctx, "order-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 4)
	for _, e := range events {
		assert.Equal(t, "corr-1", e.CorrelationID)
	}
}

func TestHandler_CancelOrder(t *testing.T) {
	h, _ := newTestHandler()
	ctx := context.Background()

	_, err := h.CreateOrder(ctx, CreateOrder{
		OrderID: "order-1", CustomerID: "customer-1",
		Items: []order.OrderItem{{ProductID: "p", Quantity: 1, Price: 100}},
	})
	require.NoError(t, err)

	require.NoError(t, h.CancelOrder(ctx, CancelOrder{OrderID: "order-1", Reason: "changed mind"}))

	err = h.PayOrder(ctx, PayOrder{OrderID: "order-1", PaymentID: "payment-1", Amount: 100})
	assert.ErrorIs(t, err, order.ErrOrderCancelled)
}

func TestHandler_PaymentFlow(t *testing.T) {
	h, _ := newTestHandler()
	ctx := context.Background()

	p, err := h.AuthorizePayment(ctx, AuthorizePayment{
		PaymentID: "payment-1", OrderID: "order-1", Amount: 5000, Method: "card",
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusAuthorized, p.Status)

	require.NoError(t, h.CapturePayment(ctx, CapturePayment{PaymentID: "payment-1"}))
	require.NoError(t, h.RefundPayment(ctx, RefundPayment{PaymentID: "payment-1", Amount: 5000, Reason: "return"}))
}

func TestHandler_FailPayment(t *testing.T) {
	h, _ := newTestHandler()
	ctx := context.Background()

	_, err := h.AuthorizePayment(ctx, AuthorizePayment{PaymentID: "payment-1", OrderID: "order-1", Amount: 100, Method: "card"})
	require.NoError(t, err)

	require.NoError(t, h.FailPayment(ctx, FailPayment{PaymentID: "payment-1", Reason: "declined"}))

	err = h.CapturePayment(ctx, CapturePayment{PaymentID: "payment-1"})
	assert.ErrorIs(t, err, payment.ErrNotAuthorized)
}

func TestHandler_StockFlow(t *testing.T) {
	h, _ := newTestHandler()
	ctx := context.Background()

	require.NoError(t, h.ReceiveStock(ctx, ReceiveStock{SKU: "sku-1", Quantity: 10}))
	require.NoError(t, h.ReserveStock(ctx, ReserveStock{SKU: "sku-1", OrderID: "order-1", Quantity: 6}))
	require.NoError(t, h.ReleaseStock(ctx, ReleaseStock{SKU: "sku-1", OrderID: "order-1", Quantity: 2}))
	require.NoError(t, h.AdjustStock(ctx, AdjustStock{SKU: "sku-1", Delta: -1, Reason: "damage"}))

	err := h.ReserveStock(ctx, ReserveStock{SKU: "sku-1", OrderID: "order-2", Quantity: 100})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
}

func TestHandler_RedactOrderEvent(t *testing.T) {
	h, eventStore := newTestHandler()
	ctx := context.Background()

	_, err := h.CreateOrder(ctx, CreateOrder{
		OrderID: "order-1", CustomerID: "customer-1",
		Items: []order.OrderItem{{ProductID: "p", Quantity: 1, Price: 100}},
	})
	require.NoError(t, err)

	require.NoError(t, h.RedactOrderEvent(ctx, RedactOrderEvent{
		OrderID:        "order-1",
		SequenceNumber: 1,
		Reason:         "privacy request",
		CorrelationID:  "corr-9",
	}))

	events, err := eventStore.ReadEvents(ctx, "order-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Empty(t, events[0].Data)
	assert.Equal(t, order.EventOrderRedacted, events[1].EventType)
	assert.Equal(t, "corr-9", events[1].CorrelationID)
}

func TestHandler_Health(t *testing.T) {
	h, eventStore := newTestHandler()

	assert.NoError(t, h.Health(context.Background()))

	eventStore.PingErr = errors.New("store unreachable")
	assert.Error(t, h.Health(context.Background()))
}
