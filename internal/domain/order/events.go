package order

import "time"

const (
	EventOrderCreated   = "OrderCreated"
	EventItemAdded      = "ItemAdded"
	EventOrderPaid      = "OrderPaid"
	EventOrderShipped   = "OrderShipped"
	EventOrderCancelled = "OrderCancelled"
	EventOrderRedacted  = "OrderPayloadRedacted"
)

// SchemaVersion is the payload schema version stamped on every order event.
// Bump it when a payload shape changes; ApplyEvent keeps decoding old
// versions so historical replays never break.
const SchemaVersion = 1

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int    `json:"price"`
}

type OrderCreated struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id"`
	Items      []OrderItem `json:"items"`
	Total      int         `json:"total"`
	CreatedAt  time.Time   `json:"created_at"`
}

type ItemAdded struct {
	OrderID string    `json:"order_id"`
	Item    OrderItem `json:"item"`
	AddedAt time.Time `json:"added_at"`
}

type OrderPaid struct {
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Amount    int       `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
}

type OrderShipped struct {
	OrderID   string    `json:"order_id"`
	ShippedAt time.Time `json:"shipped_at"`
}

type OrderCancelled struct {
	OrderID     string    `json:"order_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// OrderPayloadRedacted is the tombstone appended when a privacy erasure
// request blanks the payload of an earlier event. The tombstone itself
// carries no erased data.
type OrderPayloadRedacted struct {
	OrderID        string    `json:"order_id"`
	SequenceNumber int       `json:"sequence_number"` // sequence of the redacted event
	Reason         string    `json:"reason"`
	RedactedAt     time.Time `json:"redacted_at"`
}
