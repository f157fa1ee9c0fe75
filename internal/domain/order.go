package domain

import "time"

type OrderStatus string

const (
	OrderStatusCreated          OrderStatus = "Created"
	OrderStatusAwaitingApproval OrderStatus = "AwaitingGatewayApproval"
	OrderStatusCompleted        OrderStatus = "Completed"
	OrderStatusCancelled        OrderStatus = "Cancelled"
)

// OrderDetail is a frozen copy of a cart line taken at checkout time. It is
// never updated after creation, so later price or cart changes cannot alter a
// placed order.
type OrderDetail struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Order struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	Details        []OrderDetail `json:"details"`
	TotalCents     int64         `json:"total_cents"`
	Status         OrderStatus   `json:"status"`
	GatewayOrderID string        `json:"-"`
	OrderDate      time.Time     `json:"order_date"`
}
