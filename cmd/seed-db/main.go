// Command seed-db loads a demo catalog, customers, coupons, a flash sale and
// API keys into the storefront database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Qty    *int            `json:"qty"`
	Active *bool           `json:"active"`
}

type options struct {
	databaseURL  string
	productsFile string
	apiKey       string
	adminAPIKey  string
	pepper       string
	saleDuration time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "customer API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&opts.adminAPIKey, "admin-api-key", "", "admin API key to seed (or SHOP_SEED_ADMIN_API_KEY env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.DurationVar(&opts.saleDuration, "flash-sale-duration", 7*24*time.Hour, "how long the seeded flash sale runs, 0 skips it")
	flag.Parse()

	envDefault(&opts.databaseURL, "DATABASE_URL")
	envDefault(&opts.apiKey, "SHOP_SEED_API_KEY")
	envDefault(&opts.adminAPIKey, "SHOP_SEED_ADMIN_API_KEY")
	envDefault(&opts.pepper, "SHOP_API_KEY_PEPPER")

	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func envDefault(v *string, key string) {
	if *v == "" {
		*v = os.Getenv(key)
	}
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(pool, zap.NewNop()); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	s := postgres.NewSeeder(pool)

	products, err := seedProducts(ctx, s, opts.productsFile)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, s); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if opts.saleDuration > 0 {
		if err := seedFlashSale(ctx, s, products, opts.saleDuration); err != nil {
			return errors.Wrap(err, "seed flash sale")
		}
	}
	if err := seedAccounts(ctx, s, opts); err != nil {
		return errors.Wrap(err, "seed accounts")
	}
	return nil
}

func seedProducts(ctx context.Context, s *postgres.Seeder, path string) ([]product.Product, error) {
	slog.Info("reading products file", slog.String("path", path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}
	var raw []productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	products := make([]product.Product, 0, len(raw))
	for _, p := range raw {
		products = append(products, product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Price:       p.Price,
			IsActive:    p.Active == nil || *p.Active,
			ManageStock: p.Qty != nil,
			Qty:         p.Qty,
		})
	}
	if err := s.UpsertProducts(ctx, products); err != nil {
		return nil, err
	}
	slog.Info("upserted products", slog.Int("count", len(products)))
	return products, nil
}

func seedCoupons(ctx context.Context, s *postgres.Seeder) error {
	once := 1
	minSpend := decimal.NewFromInt(15)
	coupons := []coupon.Coupon{
		{Code: "SAVE10", Value: decimal.NewFromInt(10), IsPercent: true, MinimumSpend: &minSpend, IsActive: true},
		{Code: "FREESHIP", FreeShipping: true, IsActive: true},
		{Code: "WELCOME5", Value: decimal.NewFromInt(5), UsageLimitPerCustomer: &once, IsActive: true},
	}
	for _, c := range coupons {
		id, err := s.UpsertCoupon(ctx, c)
		if err != nil {
			return err
		}
		slog.Info("upserted coupon", slog.String("code", c.Code), slog.Int64("id", id))
	}
	return nil
}

// seedFlashSale puts the first two active products on sale at 20% off.
func seedFlashSale(ctx context.Context, s *postgres.Seeder, products []product.Product, d time.Duration) error {
	var items []postgres.SaleItem
	for _, p := range products {
		if !p.IsActive {
			continue
		}
		items = append(items, postgres.SaleItem{
			ProductID: p.ID,
			Price:     p.Price.Mul(decimal.RequireFromString("0.8")).Round(2),
			Position:  len(items) + 1,
		})
		if len(items) == 2 {
			break
		}
	}
	if len(items) == 0 {
		return nil
	}
	id, err := s.CreateFlashSale(ctx, "Launch week", time.Now().Add(d), items)
	if err != nil {
		return err
	}
	slog.Info("created flash sale", slog.Int64("id", id), slog.Int("products", len(items)))
	return nil
}

func seedAccounts(ctx context.Context, s *postgres.Seeder, opts options) error {
	accounts := []struct {
		user   customer.Customer
		key    string
		scopes []string
	}{
		{
			user: customer.Customer{ID: "demo", Email: "demo@storefront.local", FirstName: "Demo", LastName: "Shopper"},
			key:  opts.apiKey,
		},
		{
			user:   customer.Customer{ID: "admin", Email: "admin@storefront.local", FirstName: "Store", LastName: "Admin"},
			key:    opts.adminAPIKey,
			scopes: []string{auth.ScopeAdmin},
		},
	}
	for _, a := range accounts {
		if a.key == "" {
			continue
		}
		if err := s.UpsertCustomer(ctx, a.user); err != nil {
			return err
		}
		if err := s.UpsertAPIKey(ctx, auth.APIKeyInfo{
			ID:      a.user.ID,
			KeyHash: auth.HashKey([]byte(opts.pepper), a.key),
			Name:    a.user.FirstName + " " + a.user.LastName,
			UserID:  a.user.ID,
			Scopes:  a.scopes,
		}); err != nil {
			return err
		}
		slog.Info("upserted account", slog.String("user", a.user.ID), slog.Any("scopes", a.scopes))
	}
	return nil
}
