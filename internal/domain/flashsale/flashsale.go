// Package flashsale resolves time-boxed sale prices for products.
package flashsale

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Entry is one product placed on a flash sale.
type Entry struct {
	ID          int64
	FlashSaleID int64
	ProductID   int64
	EndDate     time.Time
	Price       decimal.Decimal
	// Qty is the quantity earmarked for the sale. It is informational and
	// does not limit checkout.
	Qty      *int
	Position int
}

// Active reports whether the entry still applies at now. The end date is
// inclusive.
func (e Entry) Active(now time.Time) bool {
	return !now.After(e.EndDate)
}

// Repository lists flash-sale entries.
type Repository interface {
	// ListActive returns entries whose end date is not before now, ordered
	// by position ascending. When productIDs is non-empty only entries for
	// those products are returned.
	ListActive(ctx context.Context, now time.Time, productIDs []int64) ([]Entry, error)
}

// Resolver picks the effective sale price per product.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// EffectivePrices returns the sale price of every product in productIDs that
// is on an active flash sale. When a product is on several sales the entry
// with the lowest position wins. Entries sharing a position are taken in
// whatever order storage returns them.
func (r *Resolver) EffectivePrices(ctx context.Context, productIDs []int64, now time.Time) (map[int64]decimal.Decimal, error) {
	prices := make(map[int64]decimal.Decimal)
	if len(productIDs) == 0 {
		return prices, nil
	}

	entries, err := r.repo.ListActive(ctx, now, productIDs)
	if err != nil {
		return nil, errors.Wrap(err, "list flash sales")
	}

	best := make(map[int64]int, len(entries))
	for _, e := range entries {
		if !e.Active(now) {
			continue
		}
		if pos, ok := best[e.ProductID]; ok && pos <= e.Position {
			continue
		}
		best[e.ProductID] = e.Position
		prices[e.ProductID] = e.Price
	}
	return prices, nil
}

// Active lists every product currently on sale, lowest position first.
func (r *Resolver) Active(ctx context.Context, now time.Time) ([]Entry, error) {
	entries, err := r.repo.ListActive(ctx, now, nil)
	if err != nil {
		return nil, errors.Wrap(err, "list flash sales")
	}
	return entries, nil
}
