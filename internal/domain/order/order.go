package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an order does not exist or is not visible to
// the caller.
var ErrNotFound = errors.New("order not found")

// Contact is the customer snapshot taken at checkout.
type Contact struct {
	Email     string
	Phone     string
	FirstName string
	LastName  string
}

// Address is a billing or shipping snapshot.
type Address struct {
	FirstName string
	LastName  string
	Line1     string
	Line2     string
	City      string
	State     string
	Zip       string
	Country   string
}

// Line is an order line frozen at purchase time.
type Line struct {
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Qty       int
	LineTotal decimal.Decimal
	// StockConflict marks lines whose stock could not be decremented after
	// the order was stored.
	StockConflict bool
}

// Order is an immutable purchase record. Only Status and the stock conflict
// flags change after creation.
type Order struct {
	ID             string
	CustomerID     string
	Customer       Contact
	Billing        Address
	Shipping       Address
	SubTotal       decimal.Decimal
	ShippingMethod string
	ShippingCost   decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	PaymentMethod  string
	Currency       string
	CurrencyRate   decimal.Decimal
	Locale         string
	Status         Status
	Note           string
	CouponID       *int64
	CouponCode     string
	Lines          []Line
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ConflictingProducts returns the product ids of lines flagged with a stock
// conflict.
func (o *Order) ConflictingProducts() []int64 {
	var ids []int64
	for _, l := range o.Lines {
		if l.StockConflict {
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// Repository is the read and administration side of the order store.
type Repository interface {
	Get(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	ListByStatus(ctx context.Context, status Status) ([]Order, error)
	// UpdateStatus moves the order from one status to another. It returns
	// ErrStatusChanged if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error)
}
