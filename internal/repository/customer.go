package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grocerbay/wholesale-api/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, name, email, vip, created_at FROM customers WHERE id = $1`

	customerHasOrdersSQL = `SELECT EXISTS(SELECT 1 FROM orders WHERE customer_id = $1)`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID fetches a customer's identity summary.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, getCustomerSQL, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.VIP, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

// HasOrders reports whether the customer has placed at least one order.
func (r *CustomerRepository) HasOrders(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, customerHasOrdersSQL, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking orders for customer %q: %w", id, err)
	}
	return exists, nil
}
