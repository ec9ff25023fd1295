package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

// fail maps a domain error to its HTTP response. Unrecognised errors are
// logged and reported as 500 without detail.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bad          *badRequestError
		unavailable  *checkout.ProductUnavailableError
		insufficient *checkout.InsufficientStockError
		couponErr    *checkout.CouponRejectedError
		rejected     *coupon.RejectedError
		persist      *checkout.PersistenceError
		cartGone     *cart.UnavailableError
		outOfStock   *cart.OutOfStockError
		transition   *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, bad.msg)

	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrCartCorrupt), errors.Is(err, cart.ErrCorrupt):
		writeError(w, http.StatusConflict, "cart is corrupt")
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unavailable):
		writeError(w, http.StatusUnprocessableEntity, unavailable.Error())
	case errors.As(err, &insufficient):
		writeError(w, http.StatusConflict, insufficient.Error())
	case errors.As(err, &couponErr):
		writeErrorReason(w, http.StatusUnprocessableEntity, couponErr.Error(), string(couponErr.Reason))
	case errors.As(err, &rejected):
		writeErrorReason(w, http.StatusUnprocessableEntity, rejected.Error(), string(rejected.Reason))
	case errors.As(err, &persist):
		zctx.From(r.Context()).Error("Order not stored", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "order could not be stored")

	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &cartGone):
		writeError(w, http.StatusUnprocessableEntity, cartGone.Error())
	case errors.As(err, &outOfStock):
		writeError(w, http.StatusConflict, outOfStock.Error())
	case errors.Is(err, cart.ErrItemNotFound), errors.Is(err, cart.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusUnprocessableEntity, transition.Error())
	case errors.Is(err, order.ErrStatusChanged):
		writeError(w, http.StatusConflict, "order status changed, retry")

	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, order.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")

	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
