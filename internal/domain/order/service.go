package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grocerbay/wholesale-api/internal/domain/offer"
)

// OfferPricer prices a promotional code against a candidate order without
// side effects. Implemented by offer.Engine.
type OfferPricer interface {
	Validate(ctx context.Context, code, customerID string, orderTotal decimal.Decimal) (*offer.Result, error)
}

// OfferRedeemer commits and releases offer redemptions. Implemented by
// offer.Repository.
type OfferRedeemer interface {
	Redeem(ctx context.Context, code string, revenue decimal.Decimal) error
	ReleaseRedemption(ctx context.Context, code string) error
}

// Config holds behavioural switches for the order service.
type Config struct {
	// StrictTransitions enforces the allowed-transitions table on status
	// changes. Off by default: administrators historically could assign any
	// status to correct mistakes.
	StrictTransitions bool
}

// Pricing carries the monetary components supplied by the checkout flow.
// Prices are computed against the cart snapshot before the order exists.
type Pricing struct {
	ItemsPrice    decimal.Decimal
	TaxPrice      decimal.Decimal
	ShippingPrice decimal.Decimal
}

// CreateRequest holds the input for creating an order from cart contents.
type CreateRequest struct {
	CustomerID      string
	Items           []Item
	ShippingAddress Address
	PaymentMethod   string
	Pricing         Pricing
	OfferCode       string
}

// TransitionRequest holds the admin input for mutating an order's lifecycle.
// Nil fields are left untouched.
type TransitionRequest struct {
	Status         *Status
	TrackingNumber *string
	Notes          *string
}

// Service owns the order lifecycle: creation from a cart snapshot, the
// admin-driven status progression, pending-only deletion, and reporting.
type Service struct {
	orders Repository
	pricer OfferPricer
	offers OfferRedeemer
	lg     *zap.Logger
	strict bool
	now    func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository, pricer OfferPricer, offers OfferRedeemer, lg *zap.Logger, cfg Config) *Service {
	return &Service{
		orders: orders,
		pricer: pricer,
		offers: offers,
		lg:     lg,
		strict: cfg.StrictTransitions,
		now:    time.Now,
	}
}

// Create builds an order from the cart snapshot and persists it in the
// pending state. When an offer code is supplied the discount is priced through
// the engine and the redemption is committed atomically against the usage
// limit before the order is written.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	discount := decimal.Zero
	offerCode := ""
	if req.OfferCode != "" {
		res, err := s.pricer.Validate(ctx, req.OfferCode, req.CustomerID, req.Pricing.ItemsPrice)
		if err != nil {
			return nil, errors.Wrap(err, "validate offer")
		}
		discount = res.DiscountAmount
		offerCode = res.Code
	}

	// totalPrice = itemsPrice + taxPrice + shippingPrice, less any discount,
	// floored at zero. Derived here rather than trusted from the caller.
	total := req.Pricing.ItemsPrice.
		Add(req.Pricing.TaxPrice).
		Add(req.Pricing.ShippingPrice).
		Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)

	if offerCode != "" {
		// Atomic increment-with-guard: a concurrent checkout racing for the
		// last allowed use fails here, before any order is written.
		if err := s.offers.Redeem(ctx, offerCode, total); err != nil {
			return nil, errors.Wrap(err, "redeem offer")
		}
	}

	now := s.now()
	o := &Order{
		ID:              uuid.New().String(),
		CustomerID:      req.CustomerID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      req.Pricing.ItemsPrice,
		TaxPrice:        req.Pricing.TaxPrice,
		ShippingPrice:   req.Pricing.ShippingPrice,
		DiscountAmount:  discount,
		TotalPrice:      total,
		OfferCode:       offerCode,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return o, nil
}

// Get returns a single order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// List returns all orders, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

// ListByCustomer returns the orders owned by a customer.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	return s.orders.ListByCustomer(ctx, customerID)
}

// Transition applies an admin mutation to an order: an optional status change
// (stamping the matching timestamp) and optional tracking/notes overwrites.
// Assigning a status stamps only that status's timestamp; earlier stamps are
// retained so the audit trail survives jumps like shipped → cancelled.
func (s *Service) Transition(ctx context.Context, id string, req TransitionRequest) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()

	if req.Status != nil {
		next := *req.Status
		if !next.Valid() {
			return nil, errors.Wrapf(ErrInvalidStatus, "%q", next)
		}
		if s.strict && !CanTransition(o.Status, next) {
			return nil, &InvalidTransitionError{From: o.Status, To: next}
		}
		o.Status = next
		switch next {
		case StatusProcessing:
			o.ProcessedAt = &now
		case StatusShipped:
			o.ShippedAt = &now
		case StatusDelivered:
			o.DeliveredAt = &now
		case StatusCancelled:
			o.CancelledAt = &now
		}
	}

	if req.TrackingNumber != nil {
		o.TrackingNumber = *req.TrackingNumber
	}
	if req.Notes != nil {
		o.Notes = *req.Notes
	}

	o.UpdatedAt = now
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return o, nil
}

// Delete removes an order. Only pending orders may be deleted. If the order
// had redeemed an offer, the use is given back best-effort: a release failure
// is logged and never fails the delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if o.Status != StatusPending {
		return ErrNotDeletable
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete order")
	}

	if o.OfferCode != "" {
		if err := s.offers.ReleaseRedemption(ctx, o.OfferCode); err != nil {
			s.lg.Warn("failed to release offer redemption",
				zap.String("order_id", id),
				zap.String("offer_code", o.OfferCode),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Stats aggregates order count and revenue by status, with a 30-day rolling
// recent-order count.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.orders.Stats(ctx, s.now().AddDate(0, 0, -30))
}
