package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	findCouponByCodeSQL = `SELECT id, code, value, is_percent, free_shipping,
			minimum_spend, maximum_spend, usage_limit_per_coupon, usage_limit_per_customer,
			is_active, start_date, end_date, used
		FROM coupons WHERE code = $1`

	countCustomerUsesSQL = `SELECT count(*) FROM orders
		WHERE coupon_id = $1 AND customer_id = $2`

	// Consumes one use inside the order transaction. No row is updated once
	// the global limit is reached.
	consumeCouponSQL = `UPDATE coupons SET used = used + 1
		WHERE id = $1 AND (usage_limit_per_coupon IS NULL OR used < usage_limit_per_coupon)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db DB
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(db DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// FindByCode returns the coupon with the given code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var c coupon.Coupon
	err := r.db.QueryRow(ctx, findCouponByCodeSQL, code).Scan(
		&c.ID, &c.Code, &c.Value, &c.IsPercent, &c.FreeShipping,
		&c.MinimumSpend, &c.MaximumSpend, &c.UsageLimitPerCoupon, &c.UsageLimitPerCustomer,
		&c.IsActive, &c.StartDate, &c.EndDate, &c.Used,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// CountCustomerUses returns how many orders of userID used the coupon.
func (r *CouponRepository) CountCustomerUses(ctx context.Context, couponID int64, userID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, countCustomerUsesSQL, couponID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting uses of coupon %d: %w", couponID, err)
	}
	return n, nil
}
