package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/notify"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, customer_id, email, phone, first_name, last_name,
			billing, shipping, sub_total, shipping_method, shipping_cost, discount, total,
			payment_method, currency, currency_rate, locale, status, note, coupon_id, coupon_code,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23)`

	insertOutboxSQL = `INSERT INTO outbox (event_id, event_type, aggregate_key, payload)
		VALUES ($1, $2, $3, $4)`

	flagLinesSQL = `UPDATE order_products SET stock_conflict = TRUE
		WHERE order_id = $1 AND product_id = ANY($2)`

	setStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	updateStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	orderColumns = `id::text, customer_id, email, phone, first_name, last_name,
		billing, shipping, sub_total, shipping_method, shipping_cost, discount, total,
		payment_method, currency, currency_rate, locale, status, note, coupon_id, coupon_code,
		created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC`

	listOrdersByStatusSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE status = $1 ORDER BY created_at DESC`

	listLinesSQL = `SELECT order_id::text, product_id, name, unit_price, qty, line_total, stock_conflict
		FROM order_products WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, position`
)

var orderLineColumns = []string{
	"order_id", "position", "product_id", "name", "unit_price", "qty", "line_total", "stock_conflict",
}

var (
	_ order.Repository    = (*OrderRepository)(nil)
	_ checkout.OrderStore = (*OrderRepository)(nil)
)

// OrderRepository stores orders, their lines and their outbox events.
type OrderRepository struct {
	db DB
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create stores the order header, its lines, one coupon use and ev in a
// single transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, ev notify.Envelope) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.CustomerID, o.Customer.Email, o.Customer.Phone, o.Customer.FirstName, o.Customer.LastName,
		encodeAddress(o.Billing), encodeAddress(o.Shipping),
		o.SubTotal, o.ShippingMethod, o.ShippingCost, o.Discount, o.Total,
		o.PaymentMethod, o.Currency, o.CurrencyRate, o.Locale, string(o.Status), o.Note,
		o.CouponID, o.CouponCode, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	lines := make([][]any, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = []any{o.ID, i, l.ProductID, l.Name, l.UnitPrice, l.Qty, l.LineTotal, l.StockConflict}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"order_products"}, orderLineColumns, pgx.CopyFromRows(lines)); err != nil {
		return fmt.Errorf("creating lines of order %q: %w", o.ID, err)
	}

	if o.CouponID != nil {
		tag, err := tx.Exec(ctx, consumeCouponSQL, *o.CouponID)
		if err != nil {
			return fmt.Errorf("consuming coupon %d: %w", *o.CouponID, err)
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrUsageExhausted
		}
	}

	if _, err := tx.Exec(ctx, insertOutboxSQL, ev.ID, ev.Type, ev.Key, ev.Payload); err != nil {
		return fmt.Errorf("writing outbox event for order %q: %w", o.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// MarkStockConflict flags the lines of productIDs and moves the order to
// status stock_conflict.
func (r *OrderRepository) MarkStockConflict(ctx context.Context, orderID string, productIDs []int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning stock conflict transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, flagLinesSQL, orderID, productIDs); err != nil {
		return fmt.Errorf("flagging lines of order %q: %w", orderID, err)
	}
	if _, err := tx.Exec(ctx, setStatusSQL, orderID, string(order.StatusStockConflict)); err != nil {
		return fmt.Errorf("setting status of order %q: %w", orderID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing stock conflict of order %q: %w", orderID, err)
	}
	return nil
}

// Get returns the order with its lines.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, order.ErrNotFound
	}
	rows, err := r.db.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	return r.list(ctx, listOrdersByCustomerSQL, customerID)
}

// ListByStatus returns all orders in status, newest first.
func (r *OrderRepository) ListByStatus(ctx context.Context, status order.Status) ([]order.Order, error) {
	return r.list(ctx, listOrdersByStatusSQL, string(status))
}

// UpdateStatus moves the order from one status to another.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, order.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, updateStatusSQL, id, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, order.ErrStatusChanged
	}
	return r.Get(ctx, id)
}

func (r *OrderRepository) list(ctx context.Context, query string, arg any) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) attachLines(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.db.Query(ctx, listLinesSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			l       order.Line
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.Name, &l.UnitPrice, &l.Qty, &l.LineTotal, &l.StockConflict); err != nil {
			return fmt.Errorf("scanning order line: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Lines = append(orders[i].Lines, l)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing order lines: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                 order.Order
		billing, shipping []byte
		status            string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Customer.Email, &o.Customer.Phone, &o.Customer.FirstName, &o.Customer.LastName,
		&billing, &shipping, &o.SubTotal, &o.ShippingMethod, &o.ShippingCost, &o.Discount, &o.Total,
		&o.PaymentMethod, &o.Currency, &o.CurrencyRate, &o.Locale, &status, &o.Note, &o.CouponID, &o.CouponCode,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if o.Billing, err = decodeAddress(billing); err != nil {
		return o, err
	}
	if o.Shipping, err = decodeAddress(shipping); err != nil {
		return o, err
	}
	return o, nil
}
