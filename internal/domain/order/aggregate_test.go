package order

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-audit-core/internal/domain/aggregate"
	"github.com/example/ec-audit-core/internal/infrastructure/store"
	"github.com/example/ec-audit-core/internal/infrastructure/store/mocks"
)

func newTestOrderService() (*Service, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	service := NewService(eventStore, store.NewSnapshotStore())
	return service, eventStore
}

var noMeta = aggregate.Meta{}

// ============================================
// Create Tests
// ============================================

func TestService_Create_Success(t *testing.T) {
	service, eventStore := newTestOrderService()
	ctx := context.Background()

	items := []OrderItem{
		{ProductID: "prod-1", Quantity: 2, Price: 1000},
		{ProductID: "prod-2", Quantity: 1, Price: 2000},
	}

	o, err := service.Create(ctx, "order-1", "customer-1", items, noMeta)

	require.NoError(t, err)
	assert.Equal(t, "order-1", o.ID)
	assert.Equal(t, "customer-1", o.CustomerID)
	assert.Equal(t, items, o.Items)
	assert.Equal(t, 4000, o.Total) // 2*1000 + 1*2000
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, 1, o.Version)

	require.Len(t, eventStore.AppendCalls, 1)
	call := eventStore.AppendCalls[0]
	assert.Equal(t, "order-1", call.AggregateID)
	assert.Equal(t, AggregateType, call.AggregateType)
	assert.Equal(t, 0, call.ExpectedVersion)
	require.Len(t, call.Events, 1)
	assert.Equal(t, EventOrderCreated, call.Events[0].EventType)
	assert.Equal(t, SchemaVersion, call.Events[0].SchemaVersion)
}

func TestService_Create_GeneratesID(t *testing.T) {
	service, _ := newTestOrderService()

	o, err := service.Create(context.Background(), "", "customer-1", []OrderItem{{ProductID: "p", Quantity: 1, Price: 100}}, noMeta)

	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
}

func TestService_Create_EmptyItems(t *testing.T) {
	service, eventStore := newTestOrderService()

	o, err := service.Create(context.Background(), "order-1", "customer-1", nil, noMeta)

	assert.ErrorIs(t, err, ErrEmptyOrder)
	assert.Nil(t, o)
	assert.Empty(t, eventStore.AppendCalls)
}

func TestService_Create_DuplicateOrder(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()
	items := []OrderItem{{ProductID: "p", Quantity: 1, Price: 100}}

	_, err := service.Create(ctx, "order-1", "customer-1", items, noMeta)
	require.NoError(t, err)

	_, err = service.Create(ctx, "order-1", "customer-1", items, noMeta)
	assert.ErrorIs(t, err, ErrOrderExists)
}

func TestService_Create_CarriesCorrelation(t *testing.T) {
	service, eventStore := newTestOrderService()

	_, err := service.Create(context.Background(), "order-1", "customer-1",
		[]OrderItem{{ProductID: "p", Quantity: 1, Price: 100}},
		aggregate.Meta{CorrelationID: "corr-1", CausationID: "cause-1"})

	require.NoError(t, err)
	event := eventStore.AppendCalls[0].Events[0]
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, "cause-1", event.CausationID)
}

// ============================================
// Lifecycle Tests
// ============================================

func createOrder(t *testing.T, service *Service, orderID string) {
	t.Helper()
	_, err := service.Create(context.Background(), orderID, "customer-1",
		[]OrderItem{{ProductID: "prod-1", Quantity: 1, Price: 1000}}, noMeta)
	require.NoError(t, err)
}

func TestService_AddItem_Success(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()
	createOrder(t, service, "order-1")

	err := service.AddItem(ctx, "order-1", OrderItem{ProductID: "prod-2", Quantity: 3, Price: 500}, noMeta)
	require.NoError(t, err)

	o, err := service.Load(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, 2500, o.Total) // 1000 + 3*500
	assert.Equal(t, 2, o.Version)
}

func TestService_AddItem_NotPending(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()
	createOrder(t, service, "order-1")
	require.NoError(t, service.Pay(ctx, "order-1", "payment-1", 1000, noMeta))

	err := service.AddItem(ctx, "order-1", OrderItem{ProductID: "prod-2", Quantity: 1, Price: 500}, noMeta)

	assert.ErrorIs(t, err, ErrOrderNotPending)
}

func TestService_Pay_Then_Ship(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()
	createOrder(t, service, "order-1")

	require.NoError(t, service.Pay(ctx, "order-1", "payment-1", 1000, noMeta))
	require.NoError(t, service.Ship(ctx, "order-1", noMeta))

	o, err := service.Load(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, o.Status)
	assert.Equal(t, 3, o.Version)
}

func TestService_Ship_BeforePay(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()
	createOrder(t, service, "order-1")

	err := service.Ship(ctx, "order-1", noMeta)

	assert.ErrorIs(t, err, ErrOrderNotPaid)
}

func TestService_Pay_Twice(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()
	createOrder(t, service, "order-1")
	require.NoError(t, service.Pay(ctx, "order-1", "payment-1", 1000, noMeta))

	err := service.Pay(ctx, "order-1", "payment-2", 1000, noMeta)

	assert.ErrorIs(t, err, ErrOrderAlreadyPaid)
}

func TestService_Cancel_PendingAndPaid(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()

	createOrder(t, service, "order-1")
	require.NoError(t, service.Cancel(ctx, "order-1", "changed my mind", noMeta))

	createOrder(t, service, "order-2")
	require.NoError(t, service.Pay(ctx, "order-2", "payment-1", 1000, noMeta))
	require.NoError(t, service.Cancel(ctx, "order-2", "refund requested", noMeta))
}

func TestService_Cancel_Shipped(t *testing.T) {
	service, _ := newTestOrderService()
	ctx := context.Background()
	createOrder(t, service, "order-1")
	require.NoError(t, service.Pay(ctx, "order-1", "payment-1", 1000, noMeta))
	require.NoError(t, service.Ship(ctx, "order-1", noMeta))

	err := service.Cancel(ctx, "order-1", "too late", noMeta)

	assert.ErrorIs(t, err, ErrOrderShipped)
}

func TestService_Mutate_UnknownOrder(t *testing.T) {
	service, _ := newTestOrderService()

	err := service.Pay(context.Background(), "missing", "payment-1", 100, noMeta)

	assert.ErrorIs(t, err, ErrOrderNotFound)
}

// ============================================
// ApplyEvent Tests
// ============================================

func sealedEvent(t *testing.T, eventType string, payload any, seq int) store.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return store.Event{
		ID:             "event-" + eventType,
		AggregateID:    "order-1",
		AggregateType:  AggregateType,
		EventType:      eventType,
		SequenceNumber: seq,
		SchemaVersion:  SchemaVersion,
		Data:           data,
		OccurredAt:     time.Now(),
	}
}

func TestOrder_ApplyEvent_IsDeterministic(t *testing.T) {
	events := []store.Event{
		sealedEvent(t, EventOrderCreated, OrderCreated{
			OrderID:    "order-1",
			CustomerID: "customer-1",
			Items:      []OrderItem{{ProductID: "prod-1", Quantity: 1, Price: 1000}},
			Total:      1000,
		}, 1),
		sealedEvent(t, EventItemAdded, ItemAdded{
			OrderID: "order-1",
			Item:    OrderItem{ProductID: "prod-2", Quantity: 2, Price: 250},
		}, 2),
		sealedEvent(t, EventOrderPaid, OrderPaid{
			OrderID: "order-1", PaymentID: "payment-1", Amount: 1500,
		}, 3),
	}

	replay := func() *Order {
		o := &Order{}
		for _, e := range events {
			require.NoError(t, o.ApplyEvent(e))
		}
		return o
	}

	first := replay()
	second := replay()

	assert.Equal(t, first, second)
	assert.Equal(t, StatusPaid, first.Status)
	assert.Equal(t, 1500, first.Total)
	assert.Equal(t, 3, first.Version)
}

func TestOrder_ApplyEvent_RedactedPayload(t *testing.T) {
	o := &Order{}
	created := sealedEvent(t, EventOrderCreated, OrderCreated{
		OrderID: "order-1", CustomerID: "customer-1", Total: 1000,
	}, 1)
	created.Data = nil // payload erased after commit

	require.NoError(t, o.ApplyEvent(created))

	// Zero-value payload, but the version still advances.
	assert.Empty(t, o.CustomerID)
	assert.Equal(t, 1, o.Version)
}

func TestOrder_ApplyEvent_Tombstone(t *testing.T) {
	o := &Order{}
	require.NoError(t, o.ApplyEvent(sealedEvent(t, EventOrderCreated, OrderCreated{
		OrderID: "order-1", CustomerID: "customer-1",
	}, 1)))

	require.NoError(t, o.ApplyEvent(sealedEvent(t, EventOrderRedacted, OrderPayloadRedacted{
		OrderID: "order-1", SequenceNumber: 1, Reason: "privacy request",
	}, 2)))

	// No state change beyond the version.
	assert.Equal(t, "customer-1", o.CustomerID)
	assert.Equal(t, 2, o.Version)
}

func TestOrder_ApplyEvent_Unknown(t *testing.T) {
	o := &Order{}

	err := o.ApplyEvent(store.Event{EventType: "Bogus", SequenceNumber: 1})

	assert.Error(t, err)
}

// ============================================
// Transition Table Tests
// ============================================

func TestOrder_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusPaid, StatusShipped, true},
		{StatusPaid, StatusCancelled, true},
		{StatusPaid, StatusPaid, false},
		{StatusShipped, StatusCancelled, false},
		{StatusCancelled, StatusPaid, false},
	}

	for _, tt := range tests {
		o := &Order{Status: tt.from}
		assert.Equal(t, tt.allowed, o.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
