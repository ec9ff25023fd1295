package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/flashsale"
)

const listActiveFlashSaleSQL = `SELECT fsp.id, fsp.flash_sale_id, fsp.product_id, fs.end_date,
		fsp.price, fsp.qty, fsp.position
	FROM flash_sale_products fsp
	JOIN flash_sales fs ON fs.id = fsp.flash_sale_id
	WHERE fs.end_date >= $1 AND ($2::bigint[] IS NULL OR fsp.product_id = ANY($2))
	ORDER BY fsp.position, fsp.id`

var _ flashsale.Repository = (*FlashSaleRepository)(nil)

// FlashSaleRepository implements flashsale.Repository backed by PostgreSQL.
type FlashSaleRepository struct {
	db DB
}

// NewFlashSaleRepository returns a FlashSaleRepository that uses the given pool.
func NewFlashSaleRepository(db DB) *FlashSaleRepository {
	return &FlashSaleRepository{db: db}
}

// ListActive returns flash-sale entries that have not ended at now.
func (r *FlashSaleRepository) ListActive(ctx context.Context, now time.Time, productIDs []int64) ([]flashsale.Entry, error) {
	if len(productIDs) == 0 {
		productIDs = nil
	}
	rows, err := r.db.Query(ctx, listActiveFlashSaleSQL, now, productIDs)
	if err != nil {
		return nil, fmt.Errorf("listing flash sales: %w", err)
	}
	return pgx.CollectRows(rows, scanFlashSaleEntry)
}

func scanFlashSaleEntry(row pgx.CollectableRow) (flashsale.Entry, error) {
	var e flashsale.Entry
	err := row.Scan(&e.ID, &e.FlashSaleID, &e.ProductID, &e.EndDate, &e.Price, &e.Qty, &e.Position)
	return e, err
}
