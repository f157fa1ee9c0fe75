package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusFailed    PaymentStatus = "Failed"
)

// PaymentRecord is written only after the gateway's own lookup endpoint has
// confirmed the transaction. At most one settled record exists per order.
type PaymentRecord struct {
	ID          string        `json:"id"`
	OrderID     string        `json:"order_id"`
	Method      string        `json:"method"`
	Status      PaymentStatus `json:"status"`
	AmountCents int64         `json:"amount_cents"`
	PaidAt      time.Time     `json:"paid_at"`
}
