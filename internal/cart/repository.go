package cart

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/backend/internal/domain"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) ListByUser(ctx context.Context, userID string) ([]domain.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, product_id, name, unit_price_cents, quantity, image, added_at
		FROM carts
		WHERE user_id = $1
		ORDER BY added_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	lines := []domain.CartLine{}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ID, &line.UserID, &line.ProductID, &line.Name, &line.UnitPriceCents, &line.Quantity, &line.Image, &line.AddedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

// Add inserts a cart line, or merges the quantity into the existing line when
// the user already has the product in the basket.
func (r *CartRepository) Add(ctx context.Context, line *domain.CartLine) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE carts SET quantity = quantity + $3
		WHERE user_id = $1 AND product_id = $2
	`, line.UserID, line.ProductID, line.Quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	line.ID = uuid.New().String()
	line.AddedAt = time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, product_id, name, unit_price_cents, quantity, image, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, line.ID, line.UserID, line.ProductID, line.Name, line.UnitPriceCents, line.Quantity, line.Image, line.AddedAt)
	return err
}

// UpdateQuantity changes a line's quantity, scoped to the owning user. It
// reports whether a line was actually updated.
func (r *CartRepository) UpdateQuantity(ctx context.Context, lineID, userID string, quantity int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE carts SET quantity = $1
		WHERE id = $2 AND user_id = $3
	`, quantity, lineID, userID)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *CartRepository) Remove(ctx context.Context, lineID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM carts WHERE id = $1 AND user_id = $2
	`, lineID, userID)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	return err
}
