package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	getActiveProductSQL = `SELECT id, name, price, is_active, manage_stock, qty
		FROM products WHERE id = $1 AND is_active`

	getActiveProductsSQL = `SELECT id, name, price, is_active, manage_stock, qty
		FROM products WHERE id = ANY($1) AND is_active ORDER BY id`

	// The WHERE clause makes the decrement conditional: no row is returned
	// when a managed counter would go negative.
	decrementStockSQL = `UPDATE products
		SET qty = CASE WHEN manage_stock AND qty IS NOT NULL THEN qty - $2 ELSE qty END,
			updated_at = now()
		WHERE id = $1 AND (NOT manage_stock OR qty IS NULL OR qty >= $2)
		RETURNING qty`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DB
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetActive returns a single active product by its identifier.
func (r *ProductRepository) GetActive(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.db.Query(ctx, getActiveProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetActiveByIDs returns the active products among ids.
func (r *ProductRepository) GetActiveByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, getActiveProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// DecrementStock subtracts qty from the product counter if enough remains.
func (r *ProductRepository) DecrementStock(ctx context.Context, id int64, qty int) (*int, error) {
	var left *int
	err := r.db.QueryRow(ctx, decrementStockSQL, id, qty).Scan(&left)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrInsufficientStock
		}
		return nil, fmt.Errorf("decrementing stock of product %d: %w", id, err)
	}
	return left, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.IsActive, &p.ManageStock, &p.Qty)
	return p, err
}
