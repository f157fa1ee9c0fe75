package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shopflow/backend/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order and its detail rows in one transaction. Either the
// order and every detail exist afterwards, or none do.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, order_date, total_cents, status, gateway_order_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', $3)
	`, order.ID, order.UserID, order.OrderDate, order.TotalCents, order.Status)
	if err != nil {
		return err
	}

	for i := range order.Details {
		detail := &order.Details[i]
		detail.ID = uuid.New().String()
		detail.OrderID = order.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_details (id, order_id, product_id, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4, $5)
		`, detail.ID, detail.OrderID, detail.ProductID, detail.Quantity, detail.UnitPriceCents)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, order_date, total_cents, status, gateway_order_id
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.OrderDate, &order.TotalCents, &order.Status, &order.GatewayOrderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price_cents
		FROM order_details
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var detail domain.OrderDetail
		if err := rows.Scan(&detail.ID, &detail.OrderID, &detail.ProductID, &detail.Quantity, &detail.UnitPriceCents); err != nil {
			return nil, err
		}
		order.Details = append(order.Details, detail)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

// TransitionStatus applies a conditional state change and reports whether the
// row actually moved. A false return means the order was not in the expected
// state, which callers treat as a concurrent duplicate rather than a failure.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (r *OrderRepository) SetGatewayOrderID(ctx context.Context, id, gatewayOrderID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET gateway_order_id = $1, updated_at = NOW()
		WHERE id = $2
	`, gatewayOrderID, id)
	return err
}

// Complete settles an order in one transaction: the conditional status flip to
// Completed, the payment record insert, and the user-scoped cart wipe. It
// returns false without side effects when the order has already left
// AwaitingGatewayApproval, which makes duplicate gateway callbacks harmless.
func (r *OrderRepository) Complete(ctx context.Context, orderID, userID string, payment *domain.PaymentRecord) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, domain.OrderStatusCompleted, orderID, domain.OrderStatusAwaitingApproval)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rowsAffected == 0 {
		return false, nil
	}

	payment.ID = uuid.New().String()
	payment.OrderID = orderID
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, method, status, amount_cents, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, payment.ID, payment.OrderID, payment.Method, payment.Status, payment.AmountCents, payment.PaidAt)
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

// FindStuck returns orders that have been awaiting gateway approval for longer
// than the cutoff and already carry a gateway order id to look up.
func (r *OrderRepository) FindStuck(ctx context.Context, olderThan time.Duration) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, order_date, total_cents, status, gateway_order_id
		FROM orders
		WHERE status = $1 AND gateway_order_id <> '' AND updated_at < $2
		ORDER BY updated_at
	`, domain.OrderStatusAwaitingApproval, time.Now().Add(-olderThan))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.OrderDate, &order.TotalCents, &order.Status, &order.GatewayOrderID); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// CancelAbandoned cancels awaiting orders that never reached the gateway (no
// gateway order id to reconcile against) and have aged past the cutoff.
func (r *OrderRepository) CancelAbandoned(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE status = $2 AND gateway_order_id = '' AND updated_at < $3
	`, domain.OrderStatusCancelled, domain.OrderStatusAwaitingApproval, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, order_date, total_cents, status, gateway_order_id
		FROM orders
		WHERE user_id = $1
		ORDER BY order_date DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.OrderDate, &order.TotalCents, &order.Status, &order.GatewayOrderID); err != nil {
			return nil, err
		}
		order.Details = []domain.OrderDetail{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	detailRows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price_cents
		FROM order_details
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = detailRows.Close() }()

	for detailRows.Next() {
		var detail domain.OrderDetail
		if err := detailRows.Scan(&detail.ID, &detail.OrderID, &detail.ProductID, &detail.Quantity, &detail.UnitPriceCents); err != nil {
			return nil, err
		}
		order := orderMap[detail.OrderID]
		order.Details = append(order.Details, detail)
	}

	if err := detailRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// PaymentByOrderID returns the settled payment record for an order, or nil
// when none has been captured yet.
func (r *OrderRepository) PaymentByOrderID(ctx context.Context, orderID string) (*domain.PaymentRecord, error) {
	payment := &domain.PaymentRecord{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, method, status, amount_cents, paid_at
		FROM payments
		WHERE order_id = $1
	`, orderID).Scan(&payment.ID, &payment.OrderID, &payment.Method, &payment.Status, &payment.AmountCents, &payment.PaidAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return payment, nil
}
