package readmodel

import "time"

// Collection names used by the projector and the query handler.
const (
	CollectionOrders    = "orders"
	CollectionPayments  = "payments"
	CollectionInventory = "inventory"
)

// OrderItemReadModel represents an item in an order
type OrderItemReadModel struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int    `json:"price"`
}

// OrderSummary is the query-optimized view of an order. Derived and
// eventually consistent; rebuildable from the log.
type OrderSummary struct {
	ID                 string               `json:"id"`
	CustomerID         string               `json:"customer_id"`
	Items              []OrderItemReadModel `json:"items"`
	Total              int                  `json:"total"`
	Status             string               `json:"status"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
	LastAppliedEventID string               `json:"last_applied_event_id"`
	LastSequence       int                  `json:"last_sequence"`
}

// PaymentStatement is the query-optimized view of a payment
type PaymentStatement struct {
	ID                 string    `json:"id"`
	OrderID            string    `json:"order_id"`
	Amount             int       `json:"amount"`
	Refunded           int       `json:"refunded"`
	Method             string    `json:"method"`
	Status             string    `json:"status"`
	UpdatedAt          time.Time `json:"updated_at"`
	LastAppliedEventID string    `json:"last_applied_event_id"`
	LastSequence       int       `json:"last_sequence"`
}

// InventoryLevel is the query-optimized view of stock for one SKU
type InventoryLevel struct {
	SKU                string    `json:"sku"`
	OnHand             int       `json:"on_hand"`
	Reserved           int       `json:"reserved"`
	UpdatedAt          time.Time `json:"updated_at"`
	LastAppliedEventID string    `json:"last_applied_event_id"`
	LastSequence       int       `json:"last_sequence"`
}
