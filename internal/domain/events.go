package domain

import "time"

// OrderCompletedEvent is published after payment capture has been confirmed
// and committed locally.
type OrderCompletedEvent struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	TotalCents int64     `json:"total_cents"`
	Timestamp  time.Time `json:"timestamp"`
}
