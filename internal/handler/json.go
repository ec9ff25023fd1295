package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/flashsale"
	"github.com/xenking/storefront/internal/domain/order"
)

const maxBodySize = 1 << 20

// badRequestError is a malformed request body or parameter.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// decodeObject reads a JSON object body, calling fn for each field.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return badRequest("read body: " + err.Error())
	}
	if len(data) == 0 {
		return badRequest("request body is required")
	}
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if err := fn(d, key); err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	}); err != nil {
		var bad *badRequestError
		if errors.As(err, &bad) {
			return err
		}
		return badRequest("invalid JSON: " + err.Error())
	}
	return nil
}

// optString decodes a string that may be null.
func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorReason(w, status, msg, "")
}

func writeErrorReason(w http.ResponseWriter, status int, msg, reason string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
			if reason != "" {
				e.Field("reason", func(e *jx.Encoder) { e.Str(reason) })
			}
		})
	})
}

func money(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func int64s(e *jx.Encoder, ids []int64) {
	e.ArrStart()
	for _, id := range ids {
		e.Int64(id)
	}
	e.ArrEnd()
}

func encodeCheckoutResult(e *jx.Encoder, res *checkout.Result) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(res.OrderID) })
		e.Field("total", func(e *jx.Encoder) { money(e, res.Total) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(res.Status)) })
		if res.StockConflict != nil {
			e.Field("stockConflict", func(e *jx.Encoder) { int64s(e, res.StockConflict.ProductIDs) })
		}
	})
}

func encodeCartView(e *jx.Encoder, v *cart.View) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("lines", func(e *jx.Encoder) {
			e.ArrStart()
			for _, l := range v.Lines {
				e.Obj(func(e *jx.Encoder) {
					e.Field("productId", func(e *jx.Encoder) { e.Int64(l.ProductID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
					if l.VariantID != "" {
						e.Field("variantId", func(e *jx.Encoder) { e.Str(l.VariantID) })
					}
					if l.Options != "" {
						e.Field("options", func(e *jx.Encoder) { e.Str(l.Options) })
					}
					e.Field("unitPrice", func(e *jx.Encoder) { money(e, l.UnitPrice) })
					e.Field("lineTotal", func(e *jx.Encoder) { money(e, l.LineTotal) })
				})
			}
			e.ArrEnd()
		})
		e.Field("count", func(e *jx.Encoder) { e.Int(v.Count) })
		e.Field("subTotal", func(e *jx.Encoder) { money(e, v.SubTotal) })
		if len(v.Unavailable) > 0 {
			e.Field("unavailable", func(e *jx.Encoder) { int64s(e, v.Unavailable) })
		}
	})
}

func encodeDiscount(e *jx.Encoder, d *coupon.Discount, total decimal.Decimal) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(d.Code) })
		e.Field("orderTotal", func(e *jx.Encoder) { money(e, total) })
		e.Field("discount", func(e *jx.Encoder) { money(e, d.Amount) })
		e.Field("freeShipping", func(e *jx.Encoder) { e.Bool(d.FreeShipping) })
	})
}

func encodeFlashSales(e *jx.Encoder, entries []flashsale.Entry) {
	e.ArrStart()
	for _, s := range entries {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Int64(s.ID) })
			e.Field("flashSaleId", func(e *jx.Encoder) { e.Int64(s.FlashSaleID) })
			e.Field("productId", func(e *jx.Encoder) { e.Int64(s.ProductID) })
			e.Field("price", func(e *jx.Encoder) { money(e, s.Price) })
			if s.Qty != nil {
				e.Field("qty", func(e *jx.Encoder) { e.Int(*s.Qty) })
			}
			e.Field("position", func(e *jx.Encoder) { e.Int(s.Position) })
			e.Field("endDate", func(e *jx.Encoder) { timestamp(e, s.EndDate) })
		})
	}
	e.ArrEnd()
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.Obj(func(e *jx.Encoder) {
		for _, f := range [...]struct{ k, v string }{
			{"firstName", a.FirstName},
			{"lastName", a.LastName},
			{"line1", a.Line1},
			{"line2", a.Line2},
			{"city", a.City},
			{"state", a.State},
			{"zip", a.Zip},
			{"country", a.Country},
		} {
			if f.v != "" {
				e.Field(f.k, func(e *jx.Encoder) { e.Str(f.v) })
			}
		}
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("customerId", func(e *jx.Encoder) { e.Str(o.CustomerID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("email", func(e *jx.Encoder) { e.Str(o.Customer.Email) })
		e.Field("billing", func(e *jx.Encoder) { encodeAddress(e, o.Billing) })
		e.Field("shipping", func(e *jx.Encoder) { encodeAddress(e, o.Shipping) })
		e.Field("subTotal", func(e *jx.Encoder) { money(e, o.SubTotal) })
		e.Field("shippingMethod", func(e *jx.Encoder) { e.Str(o.ShippingMethod) })
		e.Field("shippingCost", func(e *jx.Encoder) { money(e, o.ShippingCost) })
		e.Field("discount", func(e *jx.Encoder) { money(e, o.Discount) })
		e.Field("total", func(e *jx.Encoder) { money(e, o.Total) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
		if o.CouponCode != "" {
			e.Field("couponCode", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		if o.Note != "" {
			e.Field("note", func(e *jx.Encoder) { e.Str(o.Note) })
		}
		e.Field("lines", func(e *jx.Encoder) {
			e.ArrStart()
			for _, l := range o.Lines {
				e.Obj(func(e *jx.Encoder) {
					e.Field("productId", func(e *jx.Encoder) { e.Int64(l.ProductID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
					e.Field("unitPrice", func(e *jx.Encoder) { money(e, l.UnitPrice) })
					e.Field("qty", func(e *jx.Encoder) { e.Int(l.Qty) })
					e.Field("lineTotal", func(e *jx.Encoder) { money(e, l.LineTotal) })
					if l.StockConflict {
						e.Field("stockConflict", func(e *jx.Encoder) { e.Bool(true) })
					}
				})
			}
			e.ArrEnd()
		})
		e.Field("createdAt", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { timestamp(e, o.UpdatedAt) })
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}
