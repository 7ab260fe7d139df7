package offer

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// EligibilityFunc answers an eligibility question about a customer, e.g.
// "is this their first order" or "is this a VIP account". Detection lives with
// the caller; the engine only consumes the answer.
type EligibilityFunc func(ctx context.Context, customerID string) (bool, error)

// Result is the successful outcome of a validation: the offer identity plus
// the discount computed for the candidate order.
type Result struct {
	OfferID        string
	Code           string
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	DiscountAmount decimal.Decimal
	MaxDiscount    decimal.Decimal
}

// Engine validates promotional codes against a candidate order and computes
// the discount. Validation is a pure pricing oracle: it never mutates the
// offer, so a cart can be re-priced any number of times before checkout
// commits the redemption.
type Engine struct {
	repo          Repository
	isNewCustomer EligibilityFunc
	isVIP         EligibilityFunc
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNewCustomerCheck installs the new-customer detection capability. Without
// it, offers scoped to new customers reject whenever a customer id is present.
func WithNewCustomerCheck(f EligibilityFunc) Option {
	return func(e *Engine) { e.isNewCustomer = f }
}

// WithVIPCheck installs the VIP detection capability. Without it, offers
// scoped to VIP customers pass validation for everyone.
func WithVIPCheck(f EligibilityFunc) Option {
	return func(e *Engine) { e.isVIP = f }
}

// NewEngine creates an Engine backed by the given Repository.
func NewEngine(repo Repository, opts ...Option) *Engine {
	e := &Engine{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks a code against the candidate order and returns the computed
// discount. customerID may be empty for anonymous carts. Every rejection is
// terminal for this attempt; the caller must re-invoke with corrected input.
func (e *Engine) Validate(ctx context.Context, code, customerID string, orderTotal decimal.Decimal) (*Result, error) {
	o, err := e.repo.FindActiveByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lookup offer")
	}

	// The lookup already filtered on the persisted status, but that field is
	// recomputed only at write time and may lag the clock. Re-check the window.
	now := e.now()
	if now.Before(o.ValidFrom) || now.After(o.ValidTo) {
		return nil, ErrNotCurrentlyValid
	}

	if o.UsageLimit > 0 && o.UsedCount >= o.UsageLimit {
		return nil, ErrUsageLimitReached
	}

	if orderTotal.LessThan(o.MinPurchase) {
		return nil, &MinPurchaseError{Required: o.MinPurchase}
	}

	if err := e.checkEligibility(ctx, o, customerID); err != nil {
		return nil, err
	}

	return &Result{
		OfferID:        o.ID,
		Code:           o.Code,
		DiscountType:   o.DiscountType,
		DiscountValue:  o.DiscountValue,
		DiscountAmount: Compute(o, orderTotal),
		MaxDiscount:    o.MaxDiscount,
	}, nil
}

func (e *Engine) checkEligibility(ctx context.Context, o *Offer, customerID string) error {
	switch o.ApplicableTo {
	case ApplyNewCustomers:
		// Anonymous carts pass; eligibility is settled once an account is
		// attached at checkout.
		if customerID == "" {
			return nil
		}
		if e.isNewCustomer == nil {
			// No detection capability installed: reject rather than hand the
			// discount to a returning customer.
			return ErrNotEligible
		}
		isNew, err := e.isNewCustomer(ctx, customerID)
		if err != nil {
			return errors.Wrap(err, "new customer check")
		}
		if !isNew {
			return ErrNotEligible
		}
	case ApplyVIPCustomers:
		if e.isVIP == nil {
			return nil
		}
		if customerID == "" {
			return ErrNotEligible
		}
		vip, err := e.isVIP(ctx, customerID)
		if err != nil {
			return errors.Wrap(err, "vip check")
		}
		if !vip {
			return ErrNotEligible
		}
	case ApplySpecificCustomers:
		if !slices.Contains(o.SpecificCustomers, customerID) || customerID == "" {
			return ErrNotEligible
		}
	}
	return nil
}
