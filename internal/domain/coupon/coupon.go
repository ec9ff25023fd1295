package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Reason names why a coupon was refused. Reasons are checked in the order
// they are declared and only the first failing one is reported.
type Reason string

const (
	// ReasonNotFound covers unknown, inactive and out-of-window coupons.
	ReasonNotFound Reason = "NotFound"
	// ReasonLimitReached means the global usage limit is exhausted.
	ReasonLimitReached Reason = "LimitReached"
	// ReasonLimitReachedForUser means this customer used the coupon up.
	ReasonLimitReachedForUser Reason = "LimitReachedForUser"
	// ReasonBelowMinimum means the order total is under the minimum spend.
	ReasonBelowMinimum Reason = "BelowMinimum"
	// ReasonAboveMaximum means the order total exceeds the maximum spend.
	ReasonAboveMaximum Reason = "AboveMaximum"
)

var (
	// ErrNotFound is returned by Repository.FindByCode for unknown codes.
	ErrNotFound = errors.New("coupon not found")
	// ErrUsageExhausted is returned by the order store when the conditional
	// usage increment loses against the global limit.
	ErrUsageExhausted = errors.New("coupon usage limit exhausted")
)

// RejectedError is returned when a coupon cannot be applied to an order.
type RejectedError struct {
	Code   string
	Reason Reason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Reason)
}

// Coupon is a promotion code with its eligibility constraints.
type Coupon struct {
	ID                    int64
	Code                  string
	Value                 decimal.Decimal
	IsPercent             bool
	FreeShipping          bool
	MinimumSpend          *decimal.Decimal
	MaximumSpend          *decimal.Decimal
	UsageLimitPerCoupon   *int
	UsageLimitPerCustomer *int
	IsActive              bool
	StartDate             *time.Time
	EndDate               *time.Time
	Used                  int
}

// Discount is the outcome of a successful validation.
type Discount struct {
	CouponID     int64
	Code         string
	Amount       decimal.Decimal
	FreeShipping bool
}

// Repository provides coupon lookups.
type Repository interface {
	// FindByCode returns ErrNotFound when no coupon has the code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// CountCustomerUses returns how many orders of userID reference the coupon.
	CountCustomerUses(ctx context.Context, couponID int64, userID string) (int, error)
}
