package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/voltcart-checkout/internal/domain/order"
)

const orderColumns = `id::text, order_number, user_id, status, payment_status, payment_method,
	subtotal, shipping, tax, total,
	shipping_name, shipping_phone, shipping_address_line1, shipping_address_line2,
	shipping_city, shipping_state, shipping_pincode, shipping_country,
	razorpay_order_id, razorpay_payment_id, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (
		id, order_number, user_id, status, payment_status, payment_method,
		subtotal, shipping, tax, total,
		shipping_name, shipping_phone, shipping_address_line1, shipping_address_line2,
		shipping_city, shipping_state, shipping_pincode, shipping_country,
		razorpay_order_id, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	getOrderForUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2`

	listOrdersForUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2`

	listItemsSQL = `SELECT id::text, order_id::text, product_id, product_name, product_image,
		quantity, unit_price, total_price, selected_color, selected_variant, created_at
		FROM order_items WHERE order_id = $1 ORDER BY position`

	markPaidSQL = `UPDATE orders
		SET status = 'confirmed', payment_status = 'completed',
			razorpay_payment_id = $2, updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'
		RETURNING ` + orderColumns

	markFailedSQL = `UPDATE orders
		SET status = 'cancelled', payment_status = 'failed', updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'`
)

var itemColumns = []string{
	"id", "order_id", "position", "product_id", "product_name", "product_image",
	"quantity", "unit_price", "total_price", "selected_color", "selected_variant", "created_at",
}

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.Transactor = (*OrderRepository)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	q querier
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{q: pool}
}

// InTx runs fn with a repository bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *OrderRepository) InTx(ctx context.Context, fn func(repo order.Repository) error) error {
	return pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		return fn(&OrderRepository{q: tx})
	})
}

// Create inserts the order row. Items are written separately by CreateItems.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	a := o.ShippingAddress
	_, err := r.q.Exec(ctx, createOrderSQL,
		o.ID, o.OrderNumber, o.UserID, string(o.Status), string(o.PaymentStatus), o.PaymentMethod,
		o.Subtotal, o.Shipping, o.Tax, o.Total,
		a.Name, a.Phone, a.AddressLine1, nullable(a.AddressLine2),
		a.City, a.State, a.Pincode, a.Country,
		o.RazorpayOrderID, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// CreateItems bulk-loads the order's items with COPY, preserving their order.
func (r *OrderRepository) CreateItems(ctx context.Context, orderID string, items []order.Item) error {
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return fmt.Errorf("parsing order id %q: %w", orderID, err)
	}

	rows := make([][]any, len(items))
	for i, it := range items {
		id, err := uuid.Parse(it.ID)
		if err != nil {
			return fmt.Errorf("parsing item id %q: %w", it.ID, err)
		}
		qty, err := toInt4(it.Quantity)
		if err != nil {
			return fmt.Errorf("item %d quantity: %w", i, err)
		}
		rows[i] = []any{
			id, oid, int32(i), it.ProductID, it.ProductName, nullable(it.ProductImage),
			qty, it.UnitPrice, it.TotalPrice,
			nullable(it.SelectedColor), nullable(it.SelectedVariant), it.CreatedAt,
		}
	}

	n, err := r.q.CopyFrom(ctx, pgx.Identifier{"order_items"}, itemColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("creating items for order %q: %w", orderID, err)
	}
	if n != int64(len(items)) {
		return fmt.Errorf("creating items for order %q: copied %d of %d", orderID, n, len(items))
	}
	return nil
}

// Delete removes an order; its items cascade.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.q.Exec(ctx, deleteOrderSQL, id); err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	return nil
}

// GetForUser returns the order if it exists and belongs to userID. Both
// misses are reported as order.ErrNotFound.
func (r *OrderRepository) GetForUser(ctx context.Context, id, userID string) (*order.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, getOrderForUserSQL, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

// ListItems returns the items of an order in cart order.
func (r *OrderRepository) ListItems(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := r.q.Query(ctx, listItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing items for order %q: %w", orderID, err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var (
			it                    order.Item
			image, color, variant *string
			quantity              int32
		)
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &image,
			&quantity, &it.UnitPrice, &it.TotalPrice, &color, &variant, &it.CreatedAt)
		it.Quantity = int(quantity)
		it.ProductImage = deref(image)
		it.SelectedColor = deref(color)
		it.SelectedVariant = deref(variant)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning items for order %q: %w", orderID, err)
	}
	return items, nil
}

// ListForUser returns the newest orders of a user without their items.
func (r *OrderRepository) ListForUser(ctx context.Context, userID string, limit int) ([]order.Order, error) {
	rows, err := r.q.Query(ctx, listOrdersForUserSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		o, err := scanOrder(row)
		if err != nil {
			return order.Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	return orders, nil
}

// MarkPaid confirms a pending order and records the gateway payment id.
func (r *OrderRepository) MarkPaid(ctx context.Context, id, paymentID string) (*order.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, markPaidSQL, id, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotPending
		}
		return nil, fmt.Errorf("marking order %q paid: %w", id, err)
	}
	return o, nil
}

// MarkFailed cancels a pending order.
func (r *OrderRepository) MarkFailed(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, markFailedSQL, id)
	if err != nil {
		return fmt.Errorf("marking order %q failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotPending
	}
	return nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o                     order.Order
		status, paymentStatus string
		line2, paymentID      *string
	)
	a := &o.ShippingAddress
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &status, &paymentStatus, &o.PaymentMethod,
		&o.Subtotal, &o.Shipping, &o.Tax, &o.Total,
		&a.Name, &a.Phone, &a.AddressLine1, &line2,
		&a.City, &a.State, &a.Pincode, &a.Country,
		&o.RazorpayOrderID, &paymentID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	a.AddressLine2 = deref(line2)
	o.RazorpayPaymentID = deref(paymentID)
	return &o, nil
}

// toInt4 converts n for an INT column, refusing values that would wrap.
func toInt4(n int) (int32, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%d out of int4 range", n)
	}
	return int32(n), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
