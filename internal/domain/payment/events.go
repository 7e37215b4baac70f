package payment

import "time"

const (
	EventPaymentAuthorized = "PaymentAuthorized"
	EventPaymentCaptured   = "PaymentCaptured"
	EventPaymentFailed     = "PaymentFailed"
	EventPaymentRefunded   = "PaymentRefunded"
)

const SchemaVersion = 1

type PaymentAuthorized struct {
	PaymentID    string    `json:"payment_id"`
	OrderID      string    `json:"order_id"`
	Amount       int       `json:"amount"`
	Method       string    `json:"method"`
	AuthorizedAt time.Time `json:"authorized_at"`
}

type PaymentCaptured struct {
	PaymentID  string    `json:"payment_id"`
	Amount     int       `json:"amount"`
	CapturedAt time.Time `json:"captured_at"`
}

type PaymentFailed struct {
	PaymentID string    `json:"payment_id"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

type PaymentRefunded struct {
	PaymentID  string    `json:"payment_id"`
	Amount     int       `json:"amount"`
	Reason     string    `json:"reason"`
	RefundedAt time.Time `json:"refunded_at"`
}
