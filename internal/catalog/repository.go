package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/backend/internal/domain"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, name, brand, category, original_price_cents, discount_percent, price_cents, image, description, created_at`

func scanProduct(row interface{ Scan(...any) error }, p *domain.Product) error {
	return row.Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.OriginalPriceCents, &p.DiscountPercent, &p.PriceCents, &p.Image, &p.Description, &p.CreatedAt)
}

func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p := &domain.Product{}
	err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id), p)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// PriceCents returns the catalog price of record for a product. It is the
// fallback used when a cart line carries no captured price.
func (r *ProductRepository) PriceCents(ctx context.Context, id string) (int64, error) {
	var price int64
	err := r.db.QueryRowContext(ctx, `
		SELECT price_cents FROM products WHERE id = $1
	`, id).Scan(&price)
	if err != nil {
		return 0, err
	}
	return price, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, brand, category, original_price_cents, discount_percent, price_cents, image, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.Name, p.Brand, p.Category, p.OriginalPriceCents, p.DiscountPercent, p.PriceCents, p.Image, p.Description, p.CreatedAt)
	return err
}

func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1, brand = $2, category = $3, original_price_cents = $4,
		    discount_percent = $5, price_cents = $6, image = $7, description = $8
		WHERE id = $9
	`, p.Name, p.Brand, p.Category, p.OriginalPriceCents, p.DiscountPercent, p.PriceCents, p.Image, p.Description, p.ID)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}
