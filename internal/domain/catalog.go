package domain

import "time"

type Product struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Brand              string    `json:"brand"`
	Category           string    `json:"category"`
	OriginalPriceCents int64     `json:"original_price_cents"`
	DiscountPercent    int64     `json:"discount_percent"`
	PriceCents         int64     `json:"price_cents"`
	Image              string    `json:"image"`
	Description        string    `json:"description"`
	CreatedAt          time.Time `json:"created_at"`
}
