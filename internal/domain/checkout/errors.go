package checkout

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/coupon"
)

var (
	// ErrEmptyCart is returned when the user has no cart or no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCartCorrupt is returned when the stored cart cannot be parsed.
	ErrCartCorrupt = errors.New("cart is corrupt")
	// ErrCheckoutInProgress is returned when another checkout of the same
	// cart holds the lock.
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// ProductUnavailableError is returned when a cart line references a product
// that is missing or inactive.
type ProductUnavailableError struct {
	ProductID int64
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %d not found or not available", e.ProductID)
}

// InsufficientStockError is returned when a line asks for more than the
// stock counter holds at validation time.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = "product"
	}
	return fmt.Sprintf("insufficient stock for %s (id %d): requested %d, available %d",
		name, e.ProductID, e.Requested, e.Available)
}

// CouponRejectedError wraps the coupon refusal.
type CouponRejectedError struct {
	Code   string
	Reason coupon.Reason
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Reason)
}

// PersistenceError is returned when the order could not be stored. Nothing
// was written and no stock was touched.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persist order: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StockConflict is attached to a successful Result when one or more stock
// decrements failed after the order was stored. It is not returned as an
// error: the order stands in status stock_conflict for reconciliation.
type StockConflict struct {
	ProductIDs []int64
}

func (c *StockConflict) Error() string {
	return fmt.Sprintf("stock conflict on products %v", c.ProductIDs)
}
