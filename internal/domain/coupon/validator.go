package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks a coupon code against an order total for a customer.
type Validator interface {
	Validate(ctx context.Context, code, userID string, total decimal.Decimal) (*Discount, error)
}

var _ Validator = (*RepoValidator)(nil)

// RepoValidator implements Validator on top of a Repository. It never
// consumes usage: that happens atomically when the order is stored.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate returns the discount granted by code or a *RejectedError naming
// the first failed check.
func (v *RepoValidator) Validate(ctx context.Context, code, userID string, total decimal.Decimal) (*Discount, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &RejectedError{Code: code, Reason: ReasonNotFound}
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	reject := func(r Reason) (*Discount, error) {
		return nil, &RejectedError{Code: c.Code, Reason: r}
	}

	if !inWindow(c, v.now()) {
		return reject(ReasonNotFound)
	}
	if c.UsageLimitPerCoupon != nil && c.Used >= *c.UsageLimitPerCoupon {
		return reject(ReasonLimitReached)
	}
	if c.UsageLimitPerCustomer != nil {
		used, err := v.repo.CountCustomerUses(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count customer coupon uses")
		}
		if used >= *c.UsageLimitPerCustomer {
			return reject(ReasonLimitReachedForUser)
		}
	}
	if c.MinimumSpend != nil && total.LessThan(*c.MinimumSpend) {
		return reject(ReasonBelowMinimum)
	}
	if c.MaximumSpend != nil && total.GreaterThan(*c.MaximumSpend) {
		return reject(ReasonAboveMaximum)
	}

	return &Discount{
		CouponID:     c.ID,
		Code:         c.Code,
		Amount:       Amount(c, total),
		FreeShipping: c.FreeShipping,
	}, nil
}
