package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/cart"
)

// ViewCart handles GET /api/cart.
func (h *Handler) ViewCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r)
}

// AddToCart handles POST /api/cart.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cart.AddRequest
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			req.ProductID, err = d.Int64()
		case "quantity":
			req.Quantity, err = d.Int()
		case "variantId":
			req.VariantID, err = optString(d)
		case "options":
			req.Options, err = optString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		fail(w, r, badRequest("productId is required"))
		return
	}

	if _, err := h.carts.Add(r.Context(), principal(r).UserID, req); err != nil {
		fail(w, r, err)
		return
	}
	h.respondCart(w, r)
}

// UpdateCartItem handles PATCH /api/cart/items/{productID}.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	req := cart.UpdateRequest{ProductID: id}
	err = decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "quantity":
			q, err := d.Int()
			if err != nil {
				return err
			}
			req.Quantity = &q
		case "variantId":
			v, err := optString(d)
			if err != nil {
				return err
			}
			req.VariantID = &v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	if _, err := h.carts.Update(r.Context(), principal(r).UserID, req); err != nil {
		fail(w, r, err)
		return
	}
	h.respondCart(w, r)
}

// RemoveCartItem handles DELETE /api/cart/items/{productID}.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, err := h.carts.Remove(r.Context(), principal(r).UserID, id); err != nil {
		fail(w, r, err)
		return
	}
	h.respondCart(w, r)
}

// ClearCart handles DELETE /api/cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), principal(r).UserID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.View(r.Context(), principal(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartView(e, v) })
}

func productIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid product id")
	}
	return id, nil
}
