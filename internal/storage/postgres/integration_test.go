//go:build integration

package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/notify"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shop"),
		tcpostgres.WithUsername("shop"),
		tcpostgres.WithPassword("shop"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(pool, zaptest.NewLogger(t)))
	// Second run is a no-op.
	require.NoError(t, RunMigrations(pool, zaptest.NewLogger(t)))
	return pool
}

func seedBasics(t *testing.T, s *Seeder, stock int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertCustomer(ctx, customer.Customer{ID: "u1", Email: "u1@example.com", FirstName: "Ann"}))
	require.NoError(t, s.UpsertProducts(ctx, []product.Product{
		{ID: 1, Name: "Widget", Price: decimal.RequireFromString("10.00"), IsActive: true, ManageStock: true, Qty: &stock},
		{ID: 2, Name: "Poster", Price: decimal.RequireFromString("3.50"), IsActive: true},
		{ID: 3, Name: "Retired", Price: decimal.RequireFromString("1.00"), IsActive: false},
	}))
}

func newTestOrder(couponID *int64) *order.Order {
	o := testOrder(couponID)
	o.ID = uuid.NewString()
	return o
}

func TestIntegration_StockDecrementIsAtomic(t *testing.T) {
	pool := setupTestDB(t)
	seedBasics(t, NewSeeder(pool), 5)
	repo := NewProductRepository(pool)
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		ok atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.DecrementStock(ctx, 1, 1); err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, product.ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	p, err := repo.GetActive(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, *p.Qty)

	left, err := repo.DecrementStock(ctx, 2, 1000)
	require.NoError(t, err)
	assert.Nil(t, left, "unmanaged products have no counter")

	got, err := repo.GetActiveByIDs(ctx, []int64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestIntegration_OrderLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	seeder := NewSeeder(pool)
	seedBasics(t, seeder, 5)
	ctx := context.Background()

	limit := 1
	couponID, err := seeder.UpsertCoupon(ctx, coupon.Coupon{
		Code: "ONCE", Value: decimal.RequireFromString("2"), IsActive: true, UsageLimitPerCoupon: &limit,
	})
	require.NoError(t, err)

	orders := NewOrderRepository(pool)
	first := newTestOrder(&couponID)
	require.NoError(t, orders.Create(ctx, first, notify.NewOrderPlaced(first).Envelope()))

	second := newTestOrder(&couponID)
	err = orders.Create(ctx, second, notify.NewOrderPlaced(second).Envelope())
	require.ErrorIs(t, err, coupon.ErrUsageExhausted)
	_, err = orders.Get(ctx, second.ID)
	require.ErrorIs(t, err, order.ErrNotFound, "rejected order must not be stored")

	coupons := NewCouponRepository(pool)
	c, err := coupons.FindByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Used)
	n, err := coupons.CountCustomerUses(ctx, couponID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, orders.MarkStockConflict(ctx, first.ID, []int64{1}))
	got, err := orders.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusStockConflict, got.Status)
	assert.Equal(t, []int64{1}, got.ConflictingProducts())
	assert.True(t, first.Total.Equal(got.Total))

	history, err := orders.ListByCustomer(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)

	updated, err := orders.UpdateStatus(ctx, first.ID, order.StatusStockConflict, order.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, updated.Status)
	_, err = orders.UpdateStatus(ctx, first.ID, order.StatusStockConflict, order.StatusCancelled)
	require.ErrorIs(t, err, order.ErrStatusChanged)

	outbox := NewOutboxRepository(pool)
	pending, err := outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].Key)
	require.NoError(t, outbox.MarkSent(ctx, pending[0].ID))
	pending, err = outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIntegration_FlashSales(t *testing.T) {
	pool := setupTestDB(t)
	seeder := NewSeeder(pool)
	seedBasics(t, seeder, 5)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := seeder.CreateFlashSale(ctx, "ended", now.Add(-time.Hour), []SaleItem{
		{ProductID: 1, Price: decimal.RequireFromString("1.00")},
	})
	require.NoError(t, err)
	_, err = seeder.CreateFlashSale(ctx, "live", now.Add(time.Hour), []SaleItem{
		{ProductID: 1, Price: decimal.RequireFromString("8.00"), Position: 1},
		{ProductID: 2, Price: decimal.RequireFromString("3.00"), Position: 0},
	})
	require.NoError(t, err)

	repo := NewFlashSaleRepository(pool)
	all, err := repo.ListActive(ctx, now, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(2), all[0].ProductID, "ordered by position")

	one, err := repo.ListActive(ctx, now, []int64{1})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.True(t, decimal.RequireFromString("8").Equal(one[0].Price))
}
