package command

import "github.com/example/ec-audit-core/internal/domain/order"

// Commands arrive validated from the calling service; the handler only
// translates them into events. Correlation ids thread one business
// interaction through every event it produces.

type CreateOrder struct {
	OrderID       string
	CustomerID    string
	Items         []order.OrderItem
	CorrelationID string
}

type AddOrderItem struct {
	OrderID       string
	Item          order.OrderItem
	CorrelationID string
	CausationID   string
}

type PayOrder struct {
	OrderID       string
	PaymentID     string
	Amount        int
	CorrelationID string
	CausationID   string
}

type ShipOrder struct {
	OrderID       string
	CorrelationID string
	CausationID   string
}

type CancelOrder struct {
	OrderID       string
	Reason        string
	CorrelationID string
	CausationID   string
}

type AuthorizePayment struct {
	PaymentID     string
	OrderID       string
	Amount        int
	Method        string
	CorrelationID string
	CausationID   string
}

type CapturePayment struct {
	PaymentID     string
	CorrelationID string
	CausationID   string
}

type FailPayment struct {
	PaymentID     string
	Reason        string
	CorrelationID string
	CausationID   string
}

type RefundPayment struct {
	PaymentID     string
	Amount        int
	Reason        string
	CorrelationID string
	CausationID   string
}

type ReceiveStock struct {
	SKU           string
	Quantity      int
	CorrelationID string
}

type ReserveStock struct {
	SKU           string
	OrderID       string
	Quantity      int
	CorrelationID string
	CausationID   string
}

type ReleaseStock struct {
	SKU           string
	OrderID       string
	Quantity      int
	CorrelationID string
	CausationID   string
}

type AdjustStock struct {
	SKU           string
	Delta         int
	Reason        string
	CorrelationID string
}

// RedactOrderEvent erases the payload of one committed order event for a
// privacy request. The erasure is recorded as a tombstone event first.
type RedactOrderEvent struct {
	OrderID        string
	SequenceNumber int
	Reason         string
	CorrelationID  string
}
