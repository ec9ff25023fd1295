// Package cart models a shopper's pending selection of products and the
// operations that mutate it before checkout.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a user has no stored cart.
	ErrNotFound = errors.New("cart not found")
	// ErrCorrupt matches every CorruptError.
	ErrCorrupt = errors.New("cart payload corrupt")
	// ErrItemNotFound is returned when a product is not in the cart.
	ErrItemNotFound = errors.New("product not in cart")
	// ErrInvalidQuantity is returned for non-positive quantities on add.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// CorruptError reports a stored cart that could not be parsed or that
// violates the line invariants.
type CorruptError struct {
	UserID string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("cart of user %q is corrupt: %v", e.UserID, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCorrupt) hold for any CorruptError.
func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// Line is one product selection.
type Line struct {
	ProductID int64
	Quantity  int
	VariantID string
	Options   string
}

// Cart is the set of lines a user intends to buy. A cart with no lines is
// equivalent to no cart at all.
type Cart struct {
	UserID    string
	Lines     []Line
	UpdatedAt time.Time
	// Revision identifies the stored document the cart was read from. Store
	// implementations set it on Get; it is empty for carts built in memory.
	Revision string
}

// IsEmpty reports whether the cart holds no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// ProductIDs returns the product ids of all lines in cart order.
func (c *Cart) ProductIDs() []int64 {
	ids := make([]int64, len(c.Lines))
	for i, l := range c.Lines {
		ids[i] = l.ProductID
	}
	return ids
}

// Count returns the total number of units in the cart.
func (c *Cart) Count() int {
	var n int
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) index(productID int64) int {
	for i, l := range c.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// Store persists carts keyed by user id. It performs structural parsing
// only; business rules live in Service and the checkout engine.
type Store interface {
	// Get returns ErrNotFound when no cart exists and a *CorruptError when
	// the stored payload is malformed.
	Get(ctx context.Context, userID string) (*Cart, error)
	// Put replaces the stored cart. Putting an empty cart deletes it.
	Put(ctx context.Context, c *Cart) error
	// Delete removes the cart. Deleting a missing cart is not an error.
	Delete(ctx context.Context, userID string) error
	// DeleteIfUnchanged removes the cart only while it is still at
	// c.Revision. deleted is false when the cart was written or removed
	// since c was read.
	DeleteIfUnchanged(ctx context.Context, c *Cart) (deleted bool, err error)
}
