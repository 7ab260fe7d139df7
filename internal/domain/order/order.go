package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. The nominal progression is
// pending → processing → shipped → delivered, with cancelled reachable from
// any non-terminal state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether the strict state machine allows moving from
// one status to another. Re-assigning the current status is always allowed
// (it only re-stamps the timestamp).
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned when an order id does not resolve.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyItems is returned when an order is created without line items.
	ErrEmptyItems = errors.New("no order items")
	// ErrNotDeletable is returned when deleting an order that has left the
	// pending state.
	ErrNotDeletable = errors.New("only pending orders can be deleted")
	// ErrInvalidStatus is returned for a status value outside the known set.
	ErrInvalidStatus = errors.New("invalid order status")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InvalidTransitionError is returned in strict mode when the requested status
// change is outside the allowed-transitions table.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Item is a line item snapshot taken at order time. The unit price is frozen
// here and never re-read from the live catalog.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Address is the shipping destination. It is opaque to the lifecycle logic.
type Address struct {
	FullName   string `json:"fullName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Order is a customer order: an immutable cart snapshot plus a mutable
// administrative lifecycle (status, tracking, notes).
type Order struct {
	ID              string
	CustomerID      string
	Items           []Item
	ShippingAddress Address
	PaymentMethod   string

	ItemsPrice     decimal.Decimal
	TaxPrice       decimal.Decimal
	ShippingPrice  decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalPrice     decimal.Decimal
	OfferCode      string

	Status         Status
	TrackingNumber string
	Notes          string

	// Each timestamp is set when the matching status is assigned and is
	// retained afterwards, so the audit trail survives later transitions.
	ProcessedAt *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusBucket aggregates orders sharing a status.
type StatusBucket struct {
	Count   int
	Revenue decimal.Decimal
}

// Stats is a read-only reporting view over the order collection.
type Stats struct {
	ByStatus    map[Status]StatusBucket
	RecentCount int // orders created within the rolling window
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	Stats(ctx context.Context, recentSince time.Time) (*Stats, error)
}
