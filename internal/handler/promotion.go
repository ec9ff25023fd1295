package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// ValidateCoupon handles POST /api/coupons/validate. Without orderTotal the
// caller's current cart subtotal is used.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var (
		code  string
		total *decimal.Decimal
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			s, err := d.Str()
			code = s
			return err
		case "orderTotal":
			if d.Next() == jx.Null {
				return d.Null()
			}
			n, err := d.Num()
			if err != nil {
				return err
			}
			v, err := decimal.NewFromString(n.String())
			if err != nil {
				return badRequest("invalid orderTotal")
			}
			total = &v
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	code = strings.TrimSpace(code)
	if code == "" {
		fail(w, r, badRequest("code is required"))
		return
	}

	userID := principal(r).UserID
	if total == nil {
		v, err := h.carts.View(r.Context(), userID)
		if err != nil {
			fail(w, r, err)
			return
		}
		total = &v.SubTotal
	}
	if total.IsNegative() {
		fail(w, r, badRequest("orderTotal must not be negative"))
		return
	}

	d, err := h.coupons.Validate(r.Context(), code, userID, *total)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDiscount(e, d, *total) })
}

// ListFlashSales handles GET /api/flash-sales.
func (h *Handler) ListFlashSales(w http.ResponseWriter, r *http.Request) {
	entries, err := h.sales.Active(r.Context(), h.now())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeFlashSales(e, entries) })
}
