package offer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name       string
		offer      Offer
		orderTotal decimal.Decimal
		want       decimal.Decimal
	}{
		{
			name: "percentage without cap",
			offer: Offer{
				DiscountType:  DiscountPercentage,
				DiscountValue: d("10"),
			},
			orderTotal: d("200"),
			want:       d("20"),
		},
		{
			name: "percentage clamped to max discount",
			offer: Offer{
				DiscountType:  DiscountPercentage,
				DiscountValue: d("10"),
				MaxDiscount:   d("15"),
			},
			orderTotal: d("200"),
			want:       d("15"),
		},
		{
			name: "percentage under cap unaffected",
			offer: Offer{
				DiscountType:  DiscountPercentage,
				DiscountValue: d("10"),
				MaxDiscount:   d("15"),
			},
			orderTotal: d("100"),
			want:       d("10"),
		},
		{
			name: "full percentage discounts the entire total",
			offer: Offer{
				DiscountType:  DiscountPercentage,
				DiscountValue: d("100"),
			},
			orderTotal: d("42.50"),
			want:       d("42.50"),
		},
		{
			name: "percentage rounds to two decimal places",
			offer: Offer{
				DiscountType:  DiscountPercentage,
				DiscountValue: d("15"),
			},
			orderTotal: d("33.33"),
			want:       d("5"), // 4.9995 rounds up
		},
		{
			name: "fixed below order total",
			offer: Offer{
				DiscountType:  DiscountFixed,
				DiscountValue: d("5"),
			},
			orderTotal: d("30"),
			want:       d("5"),
		},
		{
			name: "fixed capped at order total",
			offer: Offer{
				DiscountType:  DiscountFixed,
				DiscountValue: d("5"),
			},
			orderTotal: d("3"),
			want:       d("3"),
		},
		{
			name: "shipping offers grant no order-total discount",
			offer: Offer{
				DiscountType:  DiscountShipping,
				DiscountValue: d("7"),
			},
			orderTotal: d("100"),
			want:       d("0"),
		},
		{
			name: "zero order total yields zero discount",
			offer: Offer{
				DiscountType:  DiscountPercentage,
				DiscountValue: d("50"),
			},
			orderTotal: d("0"),
			want:       d("0"),
		},
		{
			name: "unknown type yields zero",
			offer: Offer{
				DiscountType:  DiscountType("bogus"),
				DiscountValue: d("50"),
			},
			orderTotal: d("100"),
			want:       d("0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(&tt.offer, tt.orderTotal)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
			assert.False(t, got.IsNegative())
			assert.True(t, got.LessThanOrEqual(tt.orderTotal))
		})
	}
}
