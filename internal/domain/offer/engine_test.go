package offer

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockOfferRepo struct {
	offer       *Offer
	err         error
	lookups     int
	lookupCode  string
	redeemCalls int
}

func (m *mockOfferRepo) FindActiveByCode(_ context.Context, code string) (*Offer, error) {
	m.lookups++
	m.lookupCode = code
	if m.err != nil {
		return nil, m.err
	}
	return m.offer, nil
}

func (m *mockOfferRepo) GetByID(context.Context, string) (*Offer, error) { return nil, ErrNotFound }
func (m *mockOfferRepo) List(context.Context) ([]Offer, error)          { return nil, nil }
func (m *mockOfferRepo) Create(context.Context, *Offer) error           { return nil }
func (m *mockOfferRepo) Update(context.Context, *Offer) error           { return nil }
func (m *mockOfferRepo) Delete(context.Context, string) error           { return nil }

func (m *mockOfferRepo) Redeem(context.Context, string, decimal.Decimal) error {
	m.redeemCalls++
	return nil
}

func (m *mockOfferRepo) ReleaseRedemption(context.Context, string) error { return nil }

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func save10() *Offer {
	return &Offer{
		ID:            "of-1",
		Code:          "SAVE10",
		DiscountType:  DiscountPercentage,
		DiscountValue: d("10"),
		MinPurchase:   d("20"),
		MaxDiscount:   d("15"),
		ValidFrom:     fixedNow.Add(-24 * time.Hour),
		ValidTo:       fixedNow.Add(24 * time.Hour),
		UsageLimit:    100,
		UsedCount:     0,
		Status:        StatusActive,
		ApplicableTo:  ApplyAll,
	}
}

func newEngine(repo Repository, opts ...Option) *Engine {
	e := NewEngine(repo, opts...)
	e.now = func() time.Time { return fixedNow }
	return e
}

func TestEngineValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Offer)
		opts       []Option
		code       string
		customerID string
		orderTotal decimal.Decimal
		wantAmount decimal.Decimal
		wantErr    error
	}{
		{
			name:       "percentage discount clamped to max",
			code:       "SAVE10",
			orderTotal: d("200"),
			wantAmount: d("15"), // min(200*10%, 15)
		},
		{
			name:       "percentage discount under cap",
			code:       "SAVE10",
			orderTotal: d("100"),
			wantAmount: d("10"),
		},
		{
			name:       "window not started",
			mutate:     func(o *Offer) { o.ValidFrom = fixedNow.Add(time.Hour) },
			code:       "SAVE10",
			orderTotal: d("100"),
			wantErr:    ErrNotCurrentlyValid,
		},
		{
			name:       "window already closed",
			mutate:     func(o *Offer) { o.ValidTo = fixedNow.Add(-time.Hour) },
			code:       "SAVE10",
			orderTotal: d("100"),
			wantErr:    ErrNotCurrentlyValid,
		},
		{
			name:       "usage limit exhausted",
			mutate:     func(o *Offer) { o.UsedCount = 100 },
			code:       "SAVE10",
			orderTotal: d("100"),
			wantErr:    ErrUsageLimitReached,
		},
		{
			name:       "unlimited usage ignores used count",
			mutate:     func(o *Offer) { o.UsageLimit = 0; o.UsedCount = 9999 },
			code:       "SAVE10",
			orderTotal: d("100"),
			wantAmount: d("10"),
		},
		{
			name:       "order total exactly at minimum purchase passes",
			code:       "SAVE10",
			orderTotal: d("20"),
			wantAmount: d("2"),
		},
		{
			name:       "new customer scope rejects identified customer without detection",
			mutate:     func(o *Offer) { o.ApplicableTo = ApplyNewCustomers },
			code:       "SAVE10",
			customerID: "cus-7",
			orderTotal: d("100"),
			wantErr:    ErrNotEligible,
		},
		{
			name:       "new customer scope passes anonymous cart",
			mutate:     func(o *Offer) { o.ApplicableTo = ApplyNewCustomers },
			code:       "SAVE10",
			orderTotal: d("100"),
			wantAmount: d("10"),
		},
		{
			name:   "new customer scope accepts first-time customer via checker",
			mutate: func(o *Offer) { o.ApplicableTo = ApplyNewCustomers },
			opts: []Option{WithNewCustomerCheck(func(context.Context, string) (bool, error) {
				return true, nil
			})},
			code:       "SAVE10",
			customerID: "cus-7",
			orderTotal: d("100"),
			wantAmount: d("10"),
		},
		{
			name:   "new customer scope rejects returning customer via checker",
			mutate: func(o *Offer) { o.ApplicableTo = ApplyNewCustomers },
			opts: []Option{WithNewCustomerCheck(func(context.Context, string) (bool, error) {
				return false, nil
			})},
			code:       "SAVE10",
			customerID: "cus-7",
			orderTotal: d("100"),
			wantErr:    ErrNotEligible,
		},
		{
			name:       "vip scope passes through without checker",
			mutate:     func(o *Offer) { o.ApplicableTo = ApplyVIPCustomers },
			code:       "SAVE10",
			customerID: "cus-7",
			orderTotal: d("100"),
			wantAmount: d("10"),
		},
		{
			name:   "vip scope rejects non-vip via checker",
			mutate: func(o *Offer) { o.ApplicableTo = ApplyVIPCustomers },
			opts: []Option{WithVIPCheck(func(context.Context, string) (bool, error) {
				return false, nil
			})},
			code:       "SAVE10",
			customerID: "cus-7",
			orderTotal: d("100"),
			wantErr:    ErrNotEligible,
		},
		{
			name: "specific customers accepts listed customer",
			mutate: func(o *Offer) {
				o.ApplicableTo = ApplySpecificCustomers
				o.SpecificCustomers = []string{"cus-7", "cus-9"}
			},
			code:       "SAVE10",
			customerID: "cus-7",
			orderTotal: d("100"),
			wantAmount: d("10"),
		},
		{
			name: "specific customers rejects unlisted customer",
			mutate: func(o *Offer) {
				o.ApplicableTo = ApplySpecificCustomers
				o.SpecificCustomers = []string{"cus-9"}
			},
			code:       "SAVE10",
			customerID: "cus-7",
			orderTotal: d("100"),
			wantErr:    ErrNotEligible,
		},
		{
			name: "specific customers rejects anonymous cart",
			mutate: func(o *Offer) {
				o.ApplicableTo = ApplySpecificCustomers
				o.SpecificCustomers = []string{"cus-9"}
			},
			code:       "SAVE10",
			orderTotal: d("100"),
			wantErr:    ErrNotEligible,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := save10()
			if tt.mutate != nil {
				tt.mutate(o)
			}
			repo := &mockOfferRepo{offer: o}
			e := newEngine(repo, tt.opts...)

			got, err := e.Validate(context.Background(), tt.code, tt.customerID, tt.orderTotal)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, o.ID, got.OfferID)
			assert.Equal(t, o.Code, got.Code)
			assert.True(t, tt.wantAmount.Equal(got.DiscountAmount),
				"expected amount %s, got %s", tt.wantAmount, got.DiscountAmount)
		})
	}
}

func TestEngineValidate_MinPurchase(t *testing.T) {
	repo := &mockOfferRepo{offer: save10()}
	e := newEngine(repo)

	_, err := e.Validate(context.Background(), "SAVE10", "", d("10"))

	var mpErr *MinPurchaseError
	require.ErrorAs(t, err, &mpErr)
	assert.True(t, d("20").Equal(mpErr.Required))
	assert.EqualError(t, err, "minimum purchase of $20 required")
}

func TestEngineValidate_UnknownCode(t *testing.T) {
	repo := &mockOfferRepo{err: ErrInvalidCode}
	e := newEngine(repo)

	_, err := e.Validate(context.Background(), "bogus", "", d("100"))
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestEngineValidate_NormalizesCodeBeforeLookup(t *testing.T) {
	repo := &mockOfferRepo{offer: save10()}
	e := newEngine(repo)

	_, err := e.Validate(context.Background(), "  save10 ", "", d("100"))
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", repo.lookupCode)
}

func TestEngineValidate_Idempotent(t *testing.T) {
	// Validation is a pure pricing oracle: repeated calls with identical input
	// must produce identical discounts and never touch the usage counter.
	repo := &mockOfferRepo{offer: save10()}
	e := newEngine(repo)

	first, err := e.Validate(context.Background(), "SAVE10", "", d("200"))
	require.NoError(t, err)
	second, err := e.Validate(context.Background(), "SAVE10", "", d("200"))
	require.NoError(t, err)

	assert.True(t, first.DiscountAmount.Equal(second.DiscountAmount))
	assert.Equal(t, 2, repo.lookups)
	assert.Zero(t, repo.redeemCalls)
}

func TestEngineValidate_StorageErrorPropagates(t *testing.T) {
	repo := &mockOfferRepo{err: errors.New("connection refused")}
	e := newEngine(repo)

	_, err := e.Validate(context.Background(), "SAVE10", "", d("100"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup offer")
}
