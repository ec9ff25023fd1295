package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Amount computes the discount the coupon grants on total, rounded to two
// decimal places. Percentage coupons take Value percent of total; fixed
// coupons take Value as is, even when it exceeds total.
func Amount(c *Coupon, total decimal.Decimal) decimal.Decimal {
	if c.IsPercent {
		return total.Mul(c.Value).Div(hundred).Round(2)
	}
	return c.Value.Round(2)
}

// inWindow reports whether c is active and now falls in its date range.
func inWindow(c *Coupon, now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	return true
}
