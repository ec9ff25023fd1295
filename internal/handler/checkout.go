package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/checkout"
)

// Checkout handles POST /api/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req := checkout.Request{UserID: principal(r).UserID}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "paymentMethod":
			req.PaymentMethod, err = d.Str()
		case "shippingAddress":
			req.ShippingAddress, err = optString(d)
		case "billingAddress":
			req.BillingAddress, err = optString(d)
		case "sameAsShipping":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.SameAsShipping, err = d.Bool()
		case "couponCode":
			req.CouponCode, err = optString(d)
		case "notes":
			req.Notes, err = optString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.PaymentMethod == "" {
		fail(w, r, badRequest("paymentMethod is required"))
		return
	}
	req.CouponCode = strings.TrimSpace(req.CouponCode)

	res, err := h.checkouts.Checkout(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCheckoutResult(e, res) })
}
