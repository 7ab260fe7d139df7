package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/grocerbay/wholesale-api/internal/domain/offer"
)

const offerColumns = `id, code, description, discount_type, discount_value, min_purchase,
	max_discount, usage_limit, used_count, valid_from, valid_to, status,
	applicable_to, specific_customers, total_revenue, created_at, updated_at`

const (
	findActiveOfferSQL = `SELECT ` + offerColumns + `
		FROM offers WHERE UPPER(code) = UPPER($1) AND status = 'active'`

	getOfferSQL = `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	listOffersSQL = `SELECT ` + offerColumns + ` FROM offers ORDER BY created_at DESC`

	insertOfferSQL = `INSERT INTO offers (id, code, description, discount_type, discount_value,
		min_purchase, max_discount, usage_limit, used_count, valid_from, valid_to, status,
		applicable_to, specific_customers, total_revenue, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	updateOfferSQL = `UPDATE offers SET code = $2, description = $3, discount_type = $4,
		discount_value = $5, min_purchase = $6, max_discount = $7, usage_limit = $8,
		valid_from = $9, valid_to = $10, status = $11, applicable_to = $12,
		specific_customers = $13, updated_at = $14
		WHERE id = $1`

	deleteOfferSQL = `DELETE FROM offers WHERE id = $1`

	// Single conditional update: the usage counter can never pass the limit,
	// no matter how many checkouts race for the last use.
	redeemOfferSQL = `UPDATE offers
		SET used_count = used_count + 1, total_revenue = total_revenue + $2, updated_at = now()
		WHERE UPPER(code) = UPPER($1) AND (usage_limit = 0 OR used_count < usage_limit)`

	releaseOfferSQL = `UPDATE offers
		SET used_count = GREATEST(used_count - 1, 0), updated_at = now()
		WHERE UPPER(code) = UPPER($1)`
)

var _ offer.Repository = (*OfferRepository)(nil)

// OfferRepository implements offer.Repository backed by PostgreSQL.
type OfferRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewOfferRepository returns an OfferRepository that uses the given pool.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool, now: time.Now}
}

// FindActiveByCode looks up an offer by code (case-insensitive) whose
// persisted status is active. Scheduled, expired, and disabled offers are
// indistinguishable from unknown codes.
func (r *OfferRepository) FindActiveByCode(ctx context.Context, code string) (*offer.Offer, error) {
	rows, err := r.pool.Query(ctx, findActiveOfferSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding offer by code %q: %w", code, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOffer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, offer.ErrInvalidCode
		}
		return nil, fmt.Errorf("finding offer by code %q: %w", code, err)
	}
	return &o, nil
}

// GetByID fetches a single offer for administrative use.
func (r *OfferRepository) GetByID(ctx context.Context, id string) (*offer.Offer, error) {
	rows, err := r.pool.Query(ctx, getOfferSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting offer %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOffer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, offer.ErrNotFound
		}
		return nil, fmt.Errorf("getting offer %q: %w", id, err)
	}
	return &o, nil
}

// List returns all offers, newest first.
func (r *OfferRepository) List(ctx context.Context) ([]offer.Offer, error) {
	rows, err := r.pool.Query(ctx, listOffersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}

	offers, err := pgx.CollectRows(rows, scanOffer)
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}
	return offers, nil
}

// Create persists a new offer. The status is recomputed from the validity
// window at write time; a manual disable survives the recompute.
func (r *OfferRepository) Create(ctx context.Context, o *offer.Offer) error {
	o.Status = offer.EffectiveStatus(o.Status, o.ValidFrom, o.ValidTo, r.now())

	_, err := r.pool.Exec(ctx, insertOfferSQL,
		o.ID, o.Code, o.Description, string(o.DiscountType), o.DiscountValue,
		o.MinPurchase, o.MaxDiscount, o.UsageLimit, o.UsedCount, o.ValidFrom,
		o.ValidTo, string(o.Status), string(o.ApplicableTo), o.SpecificCustomers,
		o.TotalRevenue, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating offer %q: %w", o.Code, err)
	}
	return nil
}

// Update persists offer changes, recomputing the status like Create does.
// The usage counter and revenue are deliberately excluded; they move only
// through Redeem and ReleaseRedemption.
func (r *OfferRepository) Update(ctx context.Context, o *offer.Offer) error {
	o.Status = offer.EffectiveStatus(o.Status, o.ValidFrom, o.ValidTo, r.now())

	tag, err := r.pool.Exec(ctx, updateOfferSQL,
		o.ID, o.Code, o.Description, string(o.DiscountType), o.DiscountValue,
		o.MinPurchase, o.MaxDiscount, o.UsageLimit, o.ValidFrom, o.ValidTo,
		string(o.Status), string(o.ApplicableTo), o.SpecificCustomers, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating offer %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return offer.ErrNotFound
	}
	return nil
}

// Delete removes an offer by id.
func (r *OfferRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteOfferSQL, id)
	if err != nil {
		return fmt.Errorf("deleting offer %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return offer.ErrNotFound
	}
	return nil
}

// Redeem consumes one use of the offer and attributes revenue to it, as a
// single guarded update. Zero affected rows means the allowance was already
// exhausted by a concurrent redemption.
func (r *OfferRepository) Redeem(ctx context.Context, code string, revenue decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, redeemOfferSQL, code, revenue)
	if err != nil {
		return fmt.Errorf("redeeming offer %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return offer.ErrUsageLimitReached
	}
	return nil
}

// ReleaseRedemption gives one use back without touching attributed revenue.
func (r *OfferRepository) ReleaseRedemption(ctx context.Context, code string) error {
	_, err := r.pool.Exec(ctx, releaseOfferSQL, code)
	if err != nil {
		return fmt.Errorf("releasing redemption for offer %q: %w", code, err)
	}
	return nil
}

func scanOffer(row pgx.CollectableRow) (offer.Offer, error) {
	var (
		o            offer.Offer
		discountType string
		status       string
		applicableTo string
	)
	err := row.Scan(
		&o.ID, &o.Code, &o.Description, &discountType, &o.DiscountValue,
		&o.MinPurchase, &o.MaxDiscount, &o.UsageLimit, &o.UsedCount,
		&o.ValidFrom, &o.ValidTo, &status, &applicableTo, &o.SpecificCustomers,
		&o.TotalRevenue, &o.CreatedAt, &o.UpdatedAt,
	)
	o.DiscountType = offer.DiscountType(discountType)
	o.Status = offer.Status(status)
	o.ApplicableTo = offer.ApplicableTo(applicableTo)
	return o, err
}
