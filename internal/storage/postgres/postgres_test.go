package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/notify"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func intPtr(v int) *int { return &v }

var productCols = []string{"id", "name", "price", "is_active", "manage_stock", "qty"}

func TestProductRepository_GetActive(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery(`FROM products WHERE id = \$1 AND is_active`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(productCols).
			AddRow(int64(1), "Widget", decimal.RequireFromString("10.00"), true, true, intPtr(5)))

	p, err := repo.GetActive(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Widget", p.Name)
	assert.True(t, decimal.RequireFromString("10").Equal(p.Price))
	require.NotNil(t, p.Qty)
	assert.Equal(t, 5, *p.Qty)
}

func TestProductRepository_GetActive_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery(`FROM products WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnRows(pgxmock.NewRows(productCols))

	_, err := repo.GetActive(context.Background(), 9)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestProductRepository_GetActiveByIDs(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery(`WHERE id = ANY\(\$1\) AND is_active`).
		WithArgs([]int64{1, 2, 3}).
		WillReturnRows(pgxmock.NewRows(productCols).
			AddRow(int64(1), "A", decimal.RequireFromString("1.00"), true, false, (*int)(nil)).
			AddRow(int64(3), "C", decimal.RequireFromString("3.00"), true, true, intPtr(0)))

	got, err := repo.GetActiveByIDs(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Qty)
	assert.False(t, got[1].HasStock(1))
}

func TestProductRepository_DecrementStock(t *testing.T) {
	tests := []struct {
		name    string
		rows    *pgxmock.Rows
		want    *int
		wantErr error
	}{
		{
			name: "decremented",
			rows: pgxmock.NewRows([]string{"qty"}).AddRow(intPtr(3)),
			want: intPtr(3),
		},
		{
			name: "unmanaged",
			rows: pgxmock.NewRows([]string{"qty"}).AddRow((*int)(nil)),
		},
		{
			name:    "insufficient",
			rows:    pgxmock.NewRows([]string{"qty"}),
			wantErr: product.ErrInsufficientStock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			repo := NewProductRepository(mock)

			mock.ExpectQuery(`UPDATE products`).
				WithArgs(int64(1), 2).
				WillReturnRows(tt.rows)

			got, err := repo.DecrementStock(context.Background(), 1, 2)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProductRepository_DecrementStock_DBError(t *testing.T) {
	mock := newMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery(`UPDATE products`).
		WithArgs(int64(1), 2).
		WillReturnError(errors.New("conn reset"))

	_, err := repo.DecrementStock(context.Background(), 1, 2)
	require.Error(t, err)
	assert.NotErrorIs(t, err, product.ErrInsufficientStock)
}

func TestCustomerRepository_Get(t *testing.T) {
	mock := newMock(t)
	repo := NewCustomerRepository(mock)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "phone", "first_name", "last_name"}).
			AddRow("u1", "a@b.c", "", "Ann", "Lee"))
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("nobody").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "phone", "first_name", "last_name"}))

	c, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", c.Email)

	_, err = repo.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestAPIKeyRepository_FindByHash(t *testing.T) {
	mock := newMock(t)
	repo := NewAPIKeyRepository(mock)
	cols := []string{"id", "key_hash", "name", "user_id", "scopes"}

	mock.ExpectQuery(`FROM api_keys WHERE key_hash = \$1`).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("k1", "abc", "ops", "u1", []string{"admin"}))
	mock.ExpectQuery(`FROM api_keys WHERE key_hash = \$1`).
		WithArgs("zzz").
		WillReturnRows(pgxmock.NewRows(cols))

	info, err := repo.FindByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "u1", info.UserID)
	assert.Equal(t, []string{"admin"}, info.Scopes)

	_, err = repo.FindByHash(context.Background(), "zzz")
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestCouponRepository_FindByCode(t *testing.T) {
	mock := newMock(t)
	repo := NewCouponRepository(mock)
	cols := []string{
		"id", "code", "value", "is_percent", "free_shipping",
		"minimum_spend", "maximum_spend", "usage_limit_per_coupon", "usage_limit_per_customer",
		"is_active", "start_date", "end_date", "used",
	}
	minSpend := decimal.RequireFromString("15")
	end := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM coupons WHERE code = \$1`).
		WithArgs("SAVE10").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			int64(4), "SAVE10", decimal.RequireFromString("10"), true, false,
			&minSpend, (*decimal.Decimal)(nil), intPtr(100), (*int)(nil),
			true, (*time.Time)(nil), &end, 7,
		))
	mock.ExpectQuery(`FROM coupons WHERE code = \$1`).
		WithArgs("NOPE").
		WillReturnRows(pgxmock.NewRows(cols))

	c, err := repo.FindByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.ID)
	assert.True(t, c.IsPercent)
	require.NotNil(t, c.MinimumSpend)
	assert.True(t, minSpend.Equal(*c.MinimumSpend))
	assert.Nil(t, c.MaximumSpend)
	assert.Equal(t, 100, *c.UsageLimitPerCoupon)
	assert.Nil(t, c.UsageLimitPerCustomer)
	assert.Equal(t, end, *c.EndDate)
	assert.Equal(t, 7, c.Used)

	_, err = repo.FindByCode(context.Background(), "NOPE")
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestCouponRepository_CountCustomerUses(t *testing.T) {
	mock := newMock(t)
	repo := NewCouponRepository(mock)

	mock.ExpectQuery(`SELECT count\(\*\) FROM orders`).
		WithArgs(int64(4), "u1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountCustomerUses(context.Background(), 4, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFlashSaleRepository_ListActive(t *testing.T) {
	mock := newMock(t)
	repo := NewFlashSaleRepository(mock)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(time.Hour)

	mock.ExpectQuery(`FROM flash_sale_products fsp`).
		WithArgs(now, []int64(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "flash_sale_id", "product_id", "end_date", "price", "qty", "position"}).
			AddRow(int64(1), int64(10), int64(5), end, decimal.RequireFromString("7.50"), (*int)(nil), 0))

	got, err := repo.ListActive(context.Background(), now, []int64{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].ProductID)
	assert.True(t, got[0].Active(now))
}

func TestOutboxRepository(t *testing.T) {
	mock := newMock(t)
	repo := NewOutboxRepository(mock)
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT \$1`).
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "event_id", "event_type", "aggregate_key", "payload", "created_at"}).
			AddRow(int64(1), "e1", notify.EventOrderPlaced, "o1", []byte(`{"orderId":"o1"}`), created))
	mock.ExpectExec(`UPDATE outbox SET sent_at = now\(\) WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	recs, err := repo.FetchPending(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "o1", recs[0].Key)
	assert.JSONEq(t, `{"orderId":"o1"}`, string(recs[0].Payload))

	require.NoError(t, repo.MarkSent(context.Background(), 1))
}

func TestAddressCodec(t *testing.T) {
	a := order.Address{FirstName: "Ann", Line1: "1 Main St", City: "Oslo", Country: "NO"}

	got, err := decodeAddress(encodeAddress(a))
	require.NoError(t, err)
	assert.Equal(t, a, got)

	got, err = decodeAddress([]byte(`{"line1":"x","unknown":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, "x", got.Line1)

	_, err = decodeAddress([]byte(`{"line1":5}`))
	require.Error(t, err)

	got, err = decodeAddress(nil)
	require.NoError(t, err)
	assert.Equal(t, order.Address{}, got)
}

