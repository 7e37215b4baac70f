package inventory

import "time"

const (
	EventStockReceived = "StockReceived"
	EventStockReserved = "StockReserved"
	EventStockReleased = "StockReleased"
	EventStockAdjusted = "StockAdjusted"
)

const SchemaVersion = 1

type StockReceived struct {
	SKU        string    `json:"sku"`
	Quantity   int       `json:"quantity"`
	ReceivedAt time.Time `json:"received_at"`
}

type StockReserved struct {
	SKU        string    `json:"sku"`
	OrderID    string    `json:"order_id"`
	Quantity   int       `json:"quantity"`
	ReservedAt time.Time `json:"reserved_at"`
}

type StockReleased struct {
	SKU        string    `json:"sku"`
	OrderID    string    `json:"order_id"`
	Quantity   int       `json:"quantity"`
	ReleasedAt time.Time `json:"released_at"`
}

// StockAdjusted records a manual correction (stock take, damage, shrinkage).
type StockAdjusted struct {
	SKU        string    `json:"sku"`
	Delta      int       `json:"delta"`
	Reason     string    `json:"reason"`
	AdjustedAt time.Time `json:"adjusted_at"`
}
