package offer

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Compute calculates the discount amount an offer grants against the given
// order total. The result is never negative and never exceeds the order total.
func Compute(o *Offer, orderTotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal

	switch o.DiscountType {
	case DiscountPercentage:
		amount = orderTotal.Mul(o.DiscountValue).Div(hundred)
		if o.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, o.MaxDiscount)
		}
	case DiscountFixed:
		amount = decimal.Min(o.DiscountValue, orderTotal)
	case DiscountShipping:
		// Shipping offers carry no order-total discount; the shipping fee
		// itself is priced elsewhere.
		return decimal.Zero
	default:
		return decimal.Zero
	}

	amount = decimal.Min(amount, orderTotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}
