package domain

import "time"

// CartLine is one product entry in a user's pre-checkout basket. The captured
// unit price of zero means "unset"; the catalog price of record is used
// instead when the line is snapshotted at checkout.
type CartLine struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ProductID      string    `json:"product_id"`
	Name           string    `json:"name"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Quantity       int       `json:"quantity"`
	Image          string    `json:"image"`
	AddedAt        time.Time `json:"added_at"`
}
