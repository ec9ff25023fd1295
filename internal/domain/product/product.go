package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a product does not exist or is not active.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned when a conditional stock decrement
	// matched no row: either the remaining quantity is too low or the product
	// is gone.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is a catalog item as seen by the checkout path.
type Product struct {
	ID          int64
	Name        string
	Price       decimal.Decimal
	IsActive    bool
	ManageStock bool
	// Qty is nil when the product has no stock counter.
	Qty *int
}

// HasStock reports whether qty units can be taken from the product. Products
// that do not manage stock always have stock.
func (p Product) HasStock(qty int) bool {
	if !p.ManageStock || p.Qty == nil {
		return true
	}
	return *p.Qty >= qty
}

// Repository is the catalog lookup used by cart and checkout.
type Repository interface {
	// GetActive returns an active product or ErrNotFound.
	GetActive(ctx context.Context, id int64) (*Product, error)
	// GetActiveByIDs returns the active products among ids. Missing or
	// inactive ids are simply absent from the result.
	GetActiveByIDs(ctx context.Context, ids []int64) ([]Product, error)
	// DecrementStock atomically subtracts qty from the product counter and
	// returns the remaining quantity (nil for unmanaged products). The
	// subtraction happens only if enough stock remains; otherwise
	// ErrInsufficientStock is returned and nothing changes.
	DecrementStock(ctx context.Context, id int64, qty int) (*int, error)
}
