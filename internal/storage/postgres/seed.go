package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	upsertUserSQL = `INSERT INTO users (id, email, phone, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, phone = EXCLUDED.phone,
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name`

	upsertProductSQL = `INSERT INTO products (id, name, price, is_active, manage_stock, qty)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
			is_active = EXCLUDED.is_active, manage_stock = EXCLUDED.manage_stock,
			qty = EXCLUDED.qty, updated_at = now()`

	// Keeps the BIGSERIAL sequence ahead of explicitly seeded ids.
	syncProductSeqSQL = `SELECT setval(pg_get_serial_sequence('products', 'id'),
		GREATEST((SELECT max(id) FROM products), 1))`

	upsertCouponSQL = `INSERT INTO coupons (code, value, is_percent, free_shipping,
			minimum_spend, maximum_spend, usage_limit_per_coupon, usage_limit_per_customer,
			is_active, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (code) DO UPDATE SET value = EXCLUDED.value, is_percent = EXCLUDED.is_percent,
			free_shipping = EXCLUDED.free_shipping, minimum_spend = EXCLUDED.minimum_spend,
			maximum_spend = EXCLUDED.maximum_spend,
			usage_limit_per_coupon = EXCLUDED.usage_limit_per_coupon,
			usage_limit_per_customer = EXCLUDED.usage_limit_per_customer,
			is_active = EXCLUDED.is_active, start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date
		RETURNING id`

	insertFlashSaleSQL = `INSERT INTO flash_sales (name, end_date) VALUES ($1, $2) RETURNING id`

	insertFlashSaleProductSQL = `INSERT INTO flash_sale_products (flash_sale_id, product_id, price, qty, position)
		VALUES ($1, $2, $3, $4, $5)`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, user_id, scopes, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
			user_id = EXCLUDED.user_id, scopes = EXCLUDED.scopes, active = TRUE`
)

// SaleItem is one product of a seeded flash sale.
type SaleItem struct {
	ProductID int64
	Price     decimal.Decimal
	Qty       *int
	Position  int
}

// Seeder writes reference data. It is used by the seeding and import
// commands, never by the request path.
type Seeder struct {
	db DB
}

// NewSeeder returns a Seeder that uses the given pool.
func NewSeeder(db DB) *Seeder {
	return &Seeder{db: db}
}

// UpsertCustomer creates or updates a user.
func (s *Seeder) UpsertCustomer(ctx context.Context, c customer.Customer) error {
	if _, err := s.db.Exec(ctx, upsertUserSQL, c.ID, c.Email, c.Phone, c.FirstName, c.LastName); err != nil {
		return fmt.Errorf("upserting user %q: %w", c.ID, err)
	}
	return nil
}

// UpsertProducts creates or updates products with explicit ids.
func (s *Seeder) UpsertProducts(ctx context.Context, products []product.Product) error {
	for _, p := range products {
		if _, err := s.db.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.IsActive, p.ManageStock, p.Qty); err != nil {
			return fmt.Errorf("upserting product %d: %w", p.ID, err)
		}
	}
	if _, err := s.db.Exec(ctx, syncProductSeqSQL); err != nil {
		return fmt.Errorf("syncing product id sequence: %w", err)
	}
	return nil
}

// UpsertCoupon creates or updates a coupon by code and returns its id. The
// usage counter of an existing coupon is kept.
func (s *Seeder) UpsertCoupon(ctx context.Context, c coupon.Coupon) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, upsertCouponSQL,
		c.Code, c.Value, c.IsPercent, c.FreeShipping,
		c.MinimumSpend, c.MaximumSpend, c.UsageLimitPerCoupon, c.UsageLimitPerCustomer,
		c.IsActive, c.StartDate, c.EndDate,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return id, nil
}

// CreateFlashSale stores a flash sale ending at endDate with its items.
func (s *Seeder) CreateFlashSale(ctx context.Context, name string, endDate time.Time, items []SaleItem) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning flash sale transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	if err := tx.QueryRow(ctx, insertFlashSaleSQL, name, endDate).Scan(&id); err != nil {
		return 0, fmt.Errorf("creating flash sale %q: %w", name, err)
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx, insertFlashSaleProductSQL, id, it.ProductID, it.Price, it.Qty, it.Position); err != nil {
			return 0, fmt.Errorf("adding product %d to flash sale %q: %w", it.ProductID, name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing flash sale %q: %w", name, err)
	}
	return id, nil
}

// UpsertAPIKey stores an active API key.
func (s *Seeder) UpsertAPIKey(ctx context.Context, k auth.APIKeyInfo) error {
	scopes := k.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	if _, err := s.db.Exec(ctx, upsertAPIKeySQL, k.ID, k.KeyHash, k.Name, k.UserID, scopes); err != nil {
		return fmt.Errorf("upserting api key %q: %w", k.ID, err)
	}
	return nil
}
