// Package checkout converts a user's cart into an order.
//
// A checkout validates every cart line against the live catalog, prices it
// with flash sales and an optional coupon, and stores the order together with
// its confirmation event in one transaction. Stock is decremented after the
// order is stored; decrements that fail leave the order in status
// stock_conflict rather than undoing it.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/notify"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/checkout"

// Locker serializes checkouts of the same cart.
type Locker interface {
	// TryLock acquires key for at most ttl without waiting. ok is false when
	// the key is held by someone else.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// OrderStore is the write side of the order store.
type OrderStore interface {
	// Create stores the order header, its lines and ev in one transaction.
	// When o.CouponID is set one use of the coupon is consumed in the same
	// transaction; coupon.ErrUsageExhausted is returned if none is left.
	Create(ctx context.Context, o *order.Order, ev notify.Envelope) error
	// MarkStockConflict flags the lines of productIDs and moves the order
	// to status stock_conflict.
	MarkStockConflict(ctx context.Context, orderID string, productIDs []int64) error
}

// PriceResolver returns flash-sale prices.
type PriceResolver interface {
	EffectivePrices(ctx context.Context, productIDs []int64, now time.Time) (map[int64]decimal.Decimal, error)
}

// Deps are the collaborators of the Engine. Locker is optional.
type Deps struct {
	Carts     cart.Store
	Locker    Locker
	Products  product.Repository
	Sales     PriceResolver
	Coupons   coupon.Validator
	Customers customer.Directory
	Orders    OrderStore
}

// Config holds pricing and locking settings.
type Config struct {
	ShippingMethod string
	ShippingCost   decimal.Decimal
	Currency       string
	Locale         string
	// LockTTL bounds how long one checkout may hold the per-user lock.
	// Zero disables locking.
	LockTTL time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracerProvider sets the tracer provider. Defaults to a no-op.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider. Defaults to a no-op.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meter = mp.Meter(instrumentationName) }
}

// Request is a checkout submitted by an authenticated user.
type Request struct {
	UserID          string
	PaymentMethod   string
	ShippingAddress string
	BillingAddress  string
	// SameAsShipping copies the shipping address to billing when no
	// billing address is given.
	SameAsShipping bool
	CouponCode     string
	Notes          string
}

// Result describes a stored order.
type Result struct {
	OrderID string
	Total   decimal.Decimal
	Status  order.Status
	State   State
	// StockConflict is set when the order was stored but some stock could
	// not be decremented.
	StockConflict *StockConflict
}

// Engine runs checkouts.
type Engine struct {
	carts     cart.Store
	locker    Locker
	products  product.Repository
	sales     PriceResolver
	coupons   coupon.Validator
	customers customer.Directory
	orders    OrderStore
	cfg       Config
	now       func() time.Time

	tracer    trace.Tracer
	meter     metric.Meter
	attempts  metric.Int64Counter
	conflicts metric.Int64Counter
}

// NewEngine creates a checkout Engine.
func NewEngine(deps Deps, cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		carts:     deps.Carts,
		locker:    deps.Locker,
		products:  deps.Products,
		sales:     deps.Sales,
		coupons:   deps.Coupons,
		customers: deps.Customers,
		orders:    deps.Orders,
		cfg:       cfg,
		now:       time.Now,
		tracer:    tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:     metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(e)
	}

	var err error
	if e.attempts, err = e.meter.Int64Counter("checkout.attempts",
		metric.WithDescription("Checkout attempts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "create attempts counter")
	}
	if e.conflicts, err = e.meter.Int64Counter("checkout.stock_conflicts",
		metric.WithDescription("Orders stored with at least one failed stock decrement"),
	); err != nil {
		return nil, errors.Wrap(err, "create conflicts counter")
	}
	return e, nil
}

// Checkout turns the user's cart into an order.
//
// Errors returned before the order is stored leave no trace: no order, no
// stock change, cart untouched. Once the order is stored Checkout always
// succeeds; stock and cart cleanup run to completion even if ctx is
// cancelled.
func (e *Engine) Checkout(ctx context.Context, req Request) (_ *Result, rerr error) {
	ctx, span := e.tracer.Start(ctx, "checkout.Checkout",
		trace.WithAttributes(attribute.String("user.id", req.UserID)),
	)
	lg := zctx.From(ctx).With(zap.String("user_id", req.UserID))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if e.locker != nil && e.cfg.LockTTL > 0 {
		unlock, ok, err := e.locker.TryLock(ctx, lockKey(req.UserID), e.cfg.LockTTL)
		if err != nil {
			return nil, errors.Wrap(err, "acquire checkout lock")
		}
		if !ok {
			e.record(ctx, nil, ErrCheckoutInProgress)
			return nil, ErrCheckoutInProgress
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				lg.Warn("Failed to release checkout lock", zap.Error(err))
			}
		}()
	}

	res, err := e.checkout(ctx, lg, req)
	e.record(ctx, res, err)
	return res, err
}

func (e *Engine) checkout(ctx context.Context, lg *zap.Logger, req Request) (*Result, error) {
	c, err := e.carts.Get(ctx, req.UserID)
	switch {
	case errors.Is(err, cart.ErrNotFound):
		return nil, ErrEmptyCart
	case errors.Is(err, cart.ErrCorrupt):
		return nil, fmt.Errorf("%w: %w", ErrCartCorrupt, err)
	case err != nil:
		return nil, errors.Wrap(err, "load cart")
	case c.IsEmpty():
		return nil, ErrEmptyCart
	}
	// Stock is checked and decremented per line, so a product may appear on
	// one line only.
	seen := make(map[int64]struct{}, len(c.Lines))
	for _, l := range c.Lines {
		if _, dup := seen[l.ProductID]; dup {
			err := &cart.CorruptError{UserID: req.UserID, Err: errors.Errorf("product %d listed twice", l.ProductID)}
			return nil, fmt.Errorf("%w: %w", ErrCartCorrupt, err)
		}
		seen[l.ProductID] = struct{}{}
	}
	e.step(ctx, lg, StateStarted)

	ids := c.ProductIDs()
	found, err := e.products.GetActiveByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	for _, l := range c.Lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, &ProductUnavailableError{ProductID: l.ProductID}
		}
		if !p.HasStock(l.Quantity) {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: l.Quantity,
				Available: *p.Qty,
			}
		}
	}
	e.step(ctx, lg, StateLinesValidated)

	now := e.now()
	salePrices, err := e.sales.EffectivePrices(ctx, ids, now)
	if err != nil {
		return nil, errors.Wrap(err, "resolve flash sales")
	}

	lines := make([]order.Line, len(c.Lines))
	subTotal := decimal.Zero
	for i, l := range c.Lines {
		p := byID[l.ProductID]
		unit, onSale := salePrices[l.ProductID]
		if !onSale {
			unit = p.Price
		}
		lineTotal := unit.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
		lines[i] = order.Line{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: unit,
			Qty:       l.Quantity,
			LineTotal: lineTotal,
		}
		subTotal = subTotal.Add(lineTotal)
	}

	shipping := e.cfg.ShippingCost
	discount := decimal.Zero
	var couponID *int64
	if req.CouponCode != "" {
		d, err := e.coupons.Validate(ctx, req.CouponCode, req.UserID, subTotal)
		if err != nil {
			var rejected *coupon.RejectedError
			if errors.As(err, &rejected) {
				return nil, &CouponRejectedError{Code: req.CouponCode, Reason: rejected.Reason}
			}
			return nil, errors.Wrap(err, "validate coupon")
		}
		discount = d.Amount
		if d.FreeShipping {
			shipping = decimal.Zero
		}
		couponID = &d.CouponID
	}

	// Total = subtotal + shipping - discount, floored at zero and rounded to
	// 2 decimal places.
	total := subTotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)
	e.step(ctx, lg, StatePriced)

	cust, err := e.customers.Get(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get customer")
	}

	o := &order.Order{
		ID:             uuid.New().String(),
		CustomerID:     req.UserID,
		Customer:       order.Contact{Email: cust.Email, Phone: cust.Phone, FirstName: cust.FirstName, LastName: cust.LastName},
		Shipping:       snapshotAddress(cust, req.ShippingAddress),
		Billing:        snapshotAddress(cust, billingLine(req)),
		SubTotal:       subTotal.Round(2),
		ShippingMethod: e.cfg.ShippingMethod,
		ShippingCost:   shipping.Round(2),
		Discount:       discount.Round(2),
		Total:          total,
		PaymentMethod:  req.PaymentMethod,
		Currency:       e.cfg.Currency,
		CurrencyRate:   decimal.NewFromInt(1),
		Locale:         e.cfg.Locale,
		Status:         order.StatusPending,
		Note:           req.Notes,
		CouponID:       couponID,
		CouponCode:     req.CouponCode,
		Lines:          lines,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.orders.Create(ctx, o, notify.NewOrderPlaced(o).Envelope()); err != nil {
		if errors.Is(err, coupon.ErrUsageExhausted) {
			return nil, &CouponRejectedError{Code: req.CouponCode, Reason: coupon.ReasonLimitReached}
		}
		return nil, &PersistenceError{Err: err}
	}
	lg = lg.With(zap.String("order_id", o.ID))
	e.step(ctx, lg, StateOrderPersisted)

	// The order exists from here on: finish the remaining steps regardless
	// of the caller going away.
	ctx = context.WithoutCancel(ctx)

	res := &Result{
		OrderID: o.ID,
		Total:   o.Total,
		State:   StateOrderPersisted,
	}
	res.StockConflict = e.adjustStock(ctx, lg, o, byID)
	res.Status = o.Status
	res.State = StateStockAdjusted
	e.step(ctx, lg, StateStockAdjusted)

	// Lines added while the order was being placed are not part of it, so
	// a cart written since it was read is left in place.
	deleted, err := e.carts.DeleteIfUnchanged(ctx, c)
	switch {
	case err != nil:
		lg.Warn("Failed to clear cart after checkout", zap.Error(err))
		return res, nil
	case !deleted:
		lg.Warn("Cart changed during checkout, not cleared")
		return res, nil
	}
	e.step(ctx, lg, StateCartCleared)

	res.State = StateCompleted
	e.step(ctx, lg, StateCompleted)
	return res, nil
}

// adjustStock decrements stock for every stock-managed line. Lines that fail
// are flagged and the order is moved to stock_conflict.
func (e *Engine) adjustStock(ctx context.Context, lg *zap.Logger, o *order.Order, products map[int64]product.Product) *StockConflict {
	var failed []int64
	for i := range o.Lines {
		l := &o.Lines[i]
		if p := products[l.ProductID]; !p.ManageStock || p.Qty == nil {
			continue
		}
		if _, err := e.products.DecrementStock(ctx, l.ProductID, l.Qty); err != nil {
			l.StockConflict = true
			failed = append(failed, l.ProductID)
			lg.Warn("Stock decrement failed",
				zap.Int64("product_id", l.ProductID),
				zap.Int("qty", l.Qty),
				zap.Error(err),
			)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	o.Status = order.StatusStockConflict
	e.conflicts.Add(ctx, 1)
	if err := e.orders.MarkStockConflict(ctx, o.ID, failed); err != nil {
		lg.Error("Failed to mark order stock conflict",
			zap.Int64s("product_ids", failed),
			zap.Error(err),
		)
	}
	lg.Warn("Order stored with stock conflict", zap.Int64s("product_ids", failed))
	return &StockConflict{ProductIDs: failed}
}

func (e *Engine) step(ctx context.Context, lg *zap.Logger, s State) {
	trace.SpanFromContext(ctx).AddEvent(s.String())
	lg.Debug("Checkout step", zap.Stringer("state", s))
}

func (e *Engine) record(ctx context.Context, res *Result, err error) {
	e.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(res, err))))
}

func outcome(res *Result, err error) string {
	var (
		unavailable *ProductUnavailableError
		stock       *InsufficientStockError
		rejected    *CouponRejectedError
		persist     *PersistenceError
	)
	switch {
	case err == nil && res.StockConflict != nil:
		return "stock_conflict"
	case err == nil:
		return "completed"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrCartCorrupt):
		return "cart_corrupt"
	case errors.Is(err, ErrCheckoutInProgress):
		return "in_progress"
	case errors.As(err, &unavailable):
		return "product_unavailable"
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.As(err, &rejected):
		return "coupon_rejected"
	case errors.As(err, &persist):
		return "persistence_failure"
	default:
		return "error"
	}
}

func lockKey(userID string) string {
	return "checkout:" + userID
}

func billingLine(req Request) string {
	if req.BillingAddress == "" && req.SameAsShipping {
		return req.ShippingAddress
	}
	return req.BillingAddress
}

func snapshotAddress(c *customer.Customer, line string) order.Address {
	return order.Address{
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Line1:     line,
	}
}
