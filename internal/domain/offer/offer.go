package offer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported promotional discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the order total, optionally
	// capped at MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the order total.
	DiscountFixed DiscountType = "fixed"
	// DiscountShipping marks a shipping promotion. It produces no monetary
	// discount here; shipping-fee waiver is priced by the shipping collaborator.
	DiscountShipping DiscountType = "shipping"
)

// ApplicableTo scopes which customers may redeem an offer.
type ApplicableTo string

const (
	ApplyAll               ApplicableTo = "all"
	ApplyNewCustomers      ApplicableTo = "new_customers"
	ApplyVIPCustomers      ApplicableTo = "vip_customers"
	ApplySpecificCustomers ApplicableTo = "specific_customers"
)

var (
	// ErrInvalidCode is returned when a code does not resolve to an active
	// offer. Disabled, scheduled, and expired offers produce the same error so
	// their existence is not revealed through a more specific message.
	ErrInvalidCode = errors.New("invalid offer code")
	// ErrNotCurrentlyValid is returned when the current time falls outside the
	// offer's validity window.
	ErrNotCurrentlyValid = errors.New("offer is not currently valid")
	// ErrUsageLimitReached is returned when an offer has exhausted its
	// redemption allowance.
	ErrUsageLimitReached = errors.New("offer usage limit reached")
	// ErrNotEligible is returned when the customer does not match the offer's
	// eligibility scope.
	ErrNotEligible = errors.New("offer is not available for this customer")
	// ErrNotFound is returned by administrative lookups when an offer id does
	// not resolve.
	ErrNotFound = errors.New("offer not found")
)

// MinPurchaseError rejects a validation attempt whose order total is below the
// offer's minimum purchase threshold.
type MinPurchaseError struct {
	Required decimal.Decimal
}

func (e *MinPurchaseError) Error() string {
	return fmt.Sprintf("minimum purchase of $%s required", e.Required)
}

// Offer is a promotional code with its discount rule, validity window, usage
// allowance, and customer eligibility scope.
type Offer struct {
	ID                string
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MinPurchase       decimal.Decimal
	MaxDiscount       decimal.Decimal // cap on percentage discounts; non-positive means uncapped
	UsageLimit        int             // 0 means unlimited
	UsedCount         int
	ValidFrom         time.Time
	ValidTo           time.Time
	Status            Status
	ApplicableTo      ApplicableTo
	SpecificCustomers []string
	TotalRevenue      decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{1,32}$`)

// NormalizeCode upper-cases and trims a code for case-insensitive matching.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate enforces the creation/update invariants. Offers are stored with the
// code already normalized, so Validate expects an upper-cased code.
func (o *Offer) Validate() error {
	if !codePattern.MatchString(o.Code) {
		return errors.New("code must be 1-32 alphanumeric characters")
	}
	switch o.DiscountType {
	case DiscountPercentage:
		if o.DiscountValue.IsNegative() || o.DiscountValue.GreaterThan(hundred) {
			return errors.New("percentage discount value must be between 0 and 100")
		}
	case DiscountFixed, DiscountShipping:
		if o.DiscountValue.IsNegative() {
			return errors.New("discount value must not be negative")
		}
	default:
		return errors.Errorf("unsupported discount type: %q", o.DiscountType)
	}
	if o.MinPurchase.IsNegative() {
		return errors.New("minimum purchase must not be negative")
	}
	if o.UsageLimit < 0 {
		return errors.New("usage limit must not be negative")
	}
	if !o.ValidFrom.Before(o.ValidTo) {
		return errors.New("validity window start must be before its end")
	}
	switch o.ApplicableTo {
	case ApplyAll, ApplyNewCustomers, ApplyVIPCustomers, ApplySpecificCustomers:
	default:
		return errors.Errorf("unsupported eligibility scope: %q", o.ApplicableTo)
	}
	return nil
}

// Repository provides lookup and mutation of offers.
//
// Redeem must be implemented as a single conditional update guarded by the
// usage limit so concurrent redemptions can never push UsedCount past
// UsageLimit.
type Repository interface {
	// FindActiveByCode looks up an offer by code (case-insensitive) whose
	// persisted status is active. Returns ErrInvalidCode otherwise.
	FindActiveByCode(ctx context.Context, code string) (*Offer, error)
	GetByID(ctx context.Context, id string) (*Offer, error)
	List(ctx context.Context) ([]Offer, error)
	Create(ctx context.Context, o *Offer) error
	Update(ctx context.Context, o *Offer) error
	Delete(ctx context.Context, id string) error
	// Redeem consumes one use of the offer and attributes revenue to it.
	// Returns ErrUsageLimitReached when the allowance is already exhausted.
	Redeem(ctx context.Context, code string, revenue decimal.Decimal) error
	// ReleaseRedemption gives one use back, e.g. when a pending order that
	// redeemed the offer is deleted. Never drops UsedCount below zero.
	ReleaseRedemption(ctx context.Context, code string) error
}
