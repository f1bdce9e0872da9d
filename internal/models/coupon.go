package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is a read collaborator: validity and discount computation are
// pure functions over this record, an order subtotal, and a user id.
type Coupon struct {
	Code           string          `json:"code"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	// MaxDiscount caps percentage discounts; zero means uncapped.
	MaxDiscount decimal.Decimal `json:"max_discount"`
	ExpiryDate  time.Time       `json:"expiry_date"`
	MaxUsage    int             `json:"max_usage"`
	UsedCount   int             `json:"used_count"`
	UsedBy      []uuid.UUID     `json:"used_by"`
}

// UsedByUser reports whether userID already redeemed this coupon.
func (c *Coupon) UsedByUser(userID uuid.UUID) bool {
	for _, id := range c.UsedBy {
		if id == userID {
			return true
		}
	}
	return false
}
