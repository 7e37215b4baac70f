package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-audit-core/internal/infrastructure/store"
	"github.com/example/ec-audit-core/internal/readmodel"
)

var ErrNotFound = errors.New("read model not found")

// Handler serves queries from the eventually consistent read models
type Handler struct {
	readStore store.ReadStoreInterface
}

func NewHandler(readStore store.ReadStoreInterface) *Handler {
	return &Handler{readStore: readStore}
}

func (h *Handler) GetOrder(ctx context.Context, orderID string) (*readmodel.OrderSummary, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionOrders, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return data.(*readmodel.OrderSummary), nil
}

func (h *Handler) ListOrders(ctx context.Context) ([]*readmodel.OrderSummary, error) {
	items, err := h.readStore.GetAll(ctx, readmodel.CollectionOrders)
	if err != nil {
		return nil, err
	}
	orders := make([]*readmodel.OrderSummary, 0, len(items))
	for _, item := range items {
		orders = append(orders, item.(*readmodel.OrderSummary))
	}
	return orders, nil
}

func (h *Handler) GetPayment(ctx context.Context, paymentID string) (*readmodel.PaymentStatement, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionPayments, paymentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	return data.(*readmodel.PaymentStatement), nil
}

func (h *Handler) GetInventory(ctx context.Context, sku string) (*readmodel.InventoryLevel, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionInventory, sku)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: sku %s", ErrNotFound, sku)
	}
	return data.(*readmodel.InventoryLevel), nil
}
