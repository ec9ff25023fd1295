// Package handler serves the storefront JSON API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/flashsale"
	"github.com/xenking/storefront/internal/domain/order"
)

// Checkouts runs checkouts. Implemented by *checkout.Engine.
type Checkouts interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// Carts manages carts. Implemented by *cart.Service.
type Carts interface {
	View(ctx context.Context, userID string) (*cart.View, error)
	Add(ctx context.Context, userID string, req cart.AddRequest) (*cart.Cart, error)
	Update(ctx context.Context, userID string, req cart.UpdateRequest) (*cart.Cart, error)
	Remove(ctx context.Context, userID string, productID int64) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// Coupons validates coupon codes. Implemented by *coupon.RepoValidator.
type Coupons interface {
	Validate(ctx context.Context, code, userID string, total decimal.Decimal) (*coupon.Discount, error)
}

// Sales lists running flash sales. Implemented by *flashsale.Resolver.
type Sales interface {
	Active(ctx context.Context, now time.Time) ([]flashsale.Entry, error)
}

// Orders exposes order history and administration. Implemented by
// *order.Service.
type Orders interface {
	Get(ctx context.Context, caller auth.Principal, id string) (*order.Order, error)
	History(ctx context.Context, caller auth.Principal) ([]order.Order, error)
	ListByStatus(ctx context.Context, caller auth.Principal, status order.Status) ([]order.Order, error)
	UpdateStatus(ctx context.Context, caller auth.Principal, id string, to order.Status) (*order.Order, error)
}

// Deps are the services behind the API.
type Deps struct {
	Checkouts Checkouts
	Carts     Carts
	Coupons   Coupons
	Sales     Sales
	Orders    Orders
}

// Handler implements the API endpoints.
type Handler struct {
	checkouts Checkouts
	carts     Carts
	coupons   Coupons
	sales     Sales
	orders    Orders
	now       func() time.Time
}

// New creates a Handler.
func New(deps Deps) *Handler {
	return &Handler{
		checkouts: deps.Checkouts,
		carts:     deps.Carts,
		coupons:   deps.Coupons,
		sales:     deps.Sales,
		orders:    deps.Orders,
		now:       time.Now,
	}
}

// Routes returns the API router. Mount it under /api.
func (h *Handler) Routes(authn *Authenticator) chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/flash-sales", h.ListFlashSales)

	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)

		r.Post("/checkout", h.Checkout)

		r.Get("/cart", h.ViewCart)
		r.Post("/cart", h.AddToCart)
		r.Delete("/cart", h.ClearCart)
		r.Patch("/cart/items/{productID}", h.UpdateCartItem)
		r.Delete("/cart/items/{productID}", h.RemoveCartItem)

		r.Post("/coupons/validate", h.ValidateCoupon)

		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireScope(auth.ScopeAdmin))
			r.Get("/orders", h.AdminListOrders)
			r.Patch("/orders/{id}/status", h.AdminUpdateOrderStatus)
		})
	})
	return r
}
