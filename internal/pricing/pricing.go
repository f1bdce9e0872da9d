// Package pricing computes order totals. Everything here is pure: no
// I/O, no clock reads except where the caller passes one in.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopkartapp/shopkart/internal/models"
)

// Fixed storefront policy. Tax is flat 18% GST; orders above the
// threshold ship free, everything else pays the flat rate.
var (
	taxRate               = decimal.NewFromFloat(0.18)
	freeShippingThreshold = decimal.NewFromInt(999)
	flatShippingRate      = decimal.NewFromInt(50)
	oneHundred            = decimal.NewFromInt(100)
)

var ErrInvalidInput = errors.New("invalid pricing input")

// Coupon rejection reasons, surfaced verbatim to the caller.
var (
	ErrCouponExpired     = errors.New("coupon has expired")
	ErrCouponMinOrder    = errors.New("order amount below coupon minimum")
	ErrCouponExhausted   = errors.New("coupon usage limit reached")
	ErrCouponAlreadyUsed = errors.New("coupon already used by this user")
)

// Compute derives the full amounts breakdown for a set of line items and
// an optional coupon. The coupon must already have been validated; a nil
// coupon means no discount.
func Compute(items []models.LineItem, coupon *models.Coupon) (models.Amounts, error) {
	subtotal := decimal.Zero
	for i, item := range items {
		if item.Quantity <= 0 {
			return models.Amounts{}, fmt.Errorf("%w: item %d has quantity %d", ErrInvalidInput, i, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return models.Amounts{}, fmt.Errorf("%w: item %d has negative unit price %s", ErrInvalidInput, i, item.UnitPrice)
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	tax := subtotal.Mul(taxRate).Round(2)

	shipping := flatShippingRate
	if subtotal.GreaterThan(freeShippingThreshold) {
		shipping = decimal.Zero
	}

	discount := decimal.Zero
	if coupon != nil {
		discount = Discount(coupon, subtotal)
	}

	return models.Amounts{
		Subtotal:   subtotal,
		Tax:        tax,
		Shipping:   shipping,
		Discount:   discount,
		GrandTotal: subtotal.Add(tax).Add(shipping).Sub(discount),
	}, nil
}

// Discount computes the coupon discount for a subtotal. Fixed coupons
// take their value as-is; percentage coupons are capped by MaxDiscount
// when one is set.
func Discount(coupon *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch coupon.DiscountType {
	case models.DiscountFixed:
		return coupon.DiscountValue
	case models.DiscountPercentage:
		discount := subtotal.Mul(coupon.DiscountValue).Div(oneHundred).Round(2)
		if coupon.MaxDiscount.IsPositive() && discount.GreaterThan(coupon.MaxDiscount) {
			return coupon.MaxDiscount
		}
		return discount
	}
	return decimal.Zero
}

// ValidateCoupon checks a coupon against an order subtotal, the redeeming
// user, and the current time.
func ValidateCoupon(coupon *models.Coupon, subtotal decimal.Decimal, userID uuid.UUID, now time.Time) error {
	if !coupon.ExpiryDate.IsZero() && now.After(coupon.ExpiryDate) {
		return ErrCouponExpired
	}
	if subtotal.LessThan(coupon.MinOrderAmount) {
		return ErrCouponMinOrder
	}
	if coupon.MaxUsage > 0 && coupon.UsedCount >= coupon.MaxUsage {
		return ErrCouponExhausted
	}
	if coupon.UsedByUser(userID) {
		return ErrCouponAlreadyUsed
	}
	return nil
}
