package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-audit-core/internal/domain/aggregate"
	"github.com/example/ec-audit-core/internal/infrastructure/store"
	"github.com/example/ec-audit-core/internal/infrastructure/store/mocks"
)

func newTestInventoryService() (*Service, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	service := NewService(eventStore, store.NewSnapshotStore())
	return service, eventStore
}

var noMeta = aggregate.Meta{}

func TestService_Load_UnknownSKU(t *testing.T) {
	service, _ := newTestInventoryService()

	inv, err := service.Load(context.Background(), "sku-1")

	require.NoError(t, err)
	assert.Equal(t, "sku-1", inv.SKU)
	assert.Equal(t, 0, inv.OnHand)
	assert.Equal(t, 0, inv.Version)
}

func TestService_Receive_Success(t *testing.T) {
	service, eventStore := newTestInventoryService()
	ctx := context.Background()

	require.NoError(t, service.Receive(ctx, "sku-1", 10, noMeta))
	require.NoError(t, service.Receive(ctx, "sku-1", 5, noMeta))

	inv, err := service.Load(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 15, inv.OnHand)
	assert.Equal(t, 2, inv.Version)

	require.Len(t, eventStore.AppendCalls, 2)
	assert.Equal(t, EventStockReceived, eventStore.AppendCalls[0].Events[0].EventType)
	assert.Equal(t, 1, eventStore.AppendCalls[1].ExpectedVersion)
}

func TestService_Receive_InvalidQuantity(t *testing.T) {
	service, _ := newTestInventoryService()

	assert.ErrorIs(t, service.Receive(context.Background(), "sku-1", 0, noMeta), ErrInvalidQuantity)
	assert.ErrorIs(t, service.Receive(context.Background(), "sku-1", -5, noMeta), ErrInvalidQuantity)
}

func TestService_Reserve_MovesStock(t *testing.T) {
	service, _ := newTestInventoryService()
	ctx := context.Background()
	require.NoError(t, service.Receive(ctx, "sku-1", 10, noMeta))

	require.NoError(t, service.Reserve(ctx, "sku-1", "order-1", 4, noMeta))

	inv, err := service.Load(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 6, inv.OnHand)
	assert.Equal(t, 4, inv.Reserved)
}

func TestService_Reserve_InsufficientStock(t *testing.T) {
	service, _ := newTestInventoryService()
	ctx := context.Background()
	require.NoError(t, service.Receive(ctx, "sku-1", 3, noMeta))

	err := service.Reserve(ctx, "sku-1", "order-1", 5, noMeta)

	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestService_Release_ReturnsStock(t *testing.T) {
	service, _ := newTestInventoryService()
	ctx := context.Background()
	require.NoError(t, service.Receive(ctx, "sku-1", 10, noMeta))
	require.NoError(t, service.Reserve(ctx, "sku-1", "order-1", 4, noMeta))

	require.NoError(t, service.Release(ctx, "sku-1", "order-1", 4, noMeta))

	inv, err := service.Load(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 10, inv.OnHand)
	assert.Equal(t, 0, inv.Reserved)
}

func TestService_Release_MoreThanReserved(t *testing.T) {
	service, _ := newTestInventoryService()
	ctx := context.Background()
	require.NoError(t, service.Receive(ctx, "sku-1", 10, noMeta))
	require.NoError(t, service.Reserve(ctx, "sku-1", "order-1", 2, noMeta))

	err := service.Release(ctx, "sku-1", "order-1", 3, noMeta)

	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestService_Adjust_Shrinkage(t *testing.T) {
	service, _ := newTestInventoryService()
	ctx := context.Background()
	require.NoError(t, service.Receive(ctx, "sku-1", 10, noMeta))

	require.NoError(t, service.Adjust(ctx, "sku-1", -3, "stock take", noMeta))

	inv, err := service.Load(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 7, inv.OnHand)
}

func TestService_Adjust_WouldGoNegative(t *testing.T) {
	service, _ := newTestInventoryService()
	ctx := context.Background()
	require.NoError(t, service.Receive(ctx, "sku-1", 2, noMeta))

	err := service.Adjust(ctx, "sku-1", -5, "bad count", noMeta)

	assert.ErrorIs(t, err, ErrNegativeOnHand)
}

func TestService_Adjust_ZeroDelta(t *testing.T) {
	service, _ := newTestInventoryService()

	err := service.Adjust(context.Background(), "sku-1", 0, "noop", noMeta)

	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestInventory_ApplyEvent_ReplayIsDeterministic(t *testing.T) {
	service, eventStore := newTestInventoryService()
	ctx := context.Background()
	require.NoError(t, service.Receive(ctx, "sku-1", 10, noMeta))
	require.NoError(t, service.Reserve(ctx, "sku-1", "order-1", 4, noMeta))
	require.NoError(t, service.Adjust(ctx, "sku-1", -1, "damage", noMeta))

	events, err := eventStore.ReadEvents(ctx, "sku-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)

	replay := func() *Inventory {
		inv := &Inventory{SKU: "sku-1"}
		for _, e := range events {
			require.NoError(t, inv.ApplyEvent(e))
		}
		return inv
	}

	first := replay()
	second := replay()
	assert.Equal(t, first, second)
	assert.Equal(t, 5, first.OnHand)
	assert.Equal(t, 4, first.Reserved)
	assert.Equal(t, 3, first.Version)
}
