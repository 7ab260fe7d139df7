package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a customer id does not resolve.
var ErrNotFound = errors.New("customer not found")

// Customer is the wholesale account identity attached to orders. The account
// itself (credentials, sessions) lives with the authentication collaborator;
// this service only reads identity and tier data.
type Customer struct {
	ID        string
	Name      string
	Email     string
	VIP       bool
	CreatedAt time.Time
}

// Repository provides customer lookups and the eligibility predicates backing
// offer scoping.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	// HasOrders reports whether the customer has placed at least one order.
	// Its negation backs the new-customer offer scope.
	HasOrders(ctx context.Context, id string) (bool, error)
}
