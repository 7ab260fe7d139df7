package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/grocerbay/wholesale-api/internal/domain/order"
)

const orderColumns = `id, customer_id, items, shipping_address, payment_method,
	items_price, tax_price, shipping_price, discount_amount, total_price, offer_code,
	status, tracking_number, notes, processed_at, shipped_at, delivered_at,
	cancelled_at, created_at, updated_at`

const (
	insertOrderSQL = `INSERT INTO orders (id, customer_id, items, shipping_address,
		payment_method, items_price, tax_price, shipping_price, discount_amount,
		total_price, offer_code, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`

	updateOrderSQL = `UPDATE orders SET status = $2, tracking_number = $3, notes = $4,
		processed_at = $5, shipped_at = $6, delivered_at = $7, cancelled_at = $8,
		updated_at = $9
		WHERE id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	statsByStatusSQL = `SELECT status, COUNT(*), COALESCE(SUM(total_price), 0)
		FROM orders GROUP BY status`

	statsRecentSQL = `SELECT COUNT(*) FROM orders WHERE created_at >= $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line items
// and the shipping address are stored as JSONB snapshots.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order with its cart snapshot.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addressJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertOrderSQL,
		o.ID, o.CustomerID, itemsJSON, addressJSON, o.PaymentMethod,
		o.ItemsPrice, o.TaxPrice, o.ShippingPrice, o.DiscountAmount,
		o.TotalPrice, o.OfferCode, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID fetches a single order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
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
	return &o, nil
}

// Update persists the mutable lifecycle fields. The cart snapshot and pricing
// are immutable after creation and are deliberately not part of the update.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), o.TrackingNumber, o.Notes,
		o.ProcessedAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Delete removes an order by id.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// List returns all orders, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// ListByCustomer returns a customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %q: %w", customerID, err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %q: %w", customerID, err)
	}
	return orders, nil
}

// Stats folds the order collection into per-status buckets plus a recent
// count for the given window start.
func (r *OrderRepository) Stats(ctx context.Context, recentSince time.Time) (*order.Stats, error) {
	rows, err := r.pool.Query(ctx, statsByStatusSQL)
	if err != nil {
		return nil, fmt.Errorf("aggregating order stats: %w", err)
	}
	defer rows.Close()

	stats := &order.Stats{ByStatus: make(map[order.Status]order.StatusBucket)}
	for rows.Next() {
		var (
			status  string
			count   int
			revenue decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &revenue); err != nil {
			return nil, fmt.Errorf("scanning order stats: %w", err)
		}
		stats.ByStatus[order.Status(status)] = order.StatusBucket{Count: count, Revenue: revenue}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregating order stats: %w", err)
	}

	if err := r.pool.QueryRow(ctx, statsRecentSQL, recentSince).Scan(&stats.RecentCount); err != nil {
		return nil, fmt.Errorf("counting recent orders: %w", err)
	}
	return stats, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		itemsJSON   []byte
		addressJSON []byte
		status      string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &itemsJSON, &addressJSON, &o.PaymentMethod,
		&o.ItemsPrice, &o.TaxPrice, &o.ShippingPrice, &o.DiscountAmount,
		&o.TotalPrice, &o.OfferCode, &status, &o.TrackingNumber, &o.Notes,
		&o.ProcessedAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	return o, nil
}
