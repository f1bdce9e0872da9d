package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopkartapp/shopkart/internal/models"
)

type CouponStore struct {
	pool *pgxpool.Pool
}

func NewCouponStore(pool *pgxpool.Pool) *CouponStore {
	return &CouponStore{pool: pool}
}

func (s *CouponStore) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	query := `
		SELECT code, discount_type, discount_value::text, min_order_amount::text,
		       max_discount::text, expiry_date, max_usage, used_count, used_by
		FROM coupons WHERE code = $1`

	var (
		coupon                                 models.Coupon
		discountType                           string
		discountValue, minOrder, maxDiscount   string
		usedBy                                 []uuid.UUID
	)
	err := s.pool.QueryRow(ctx, query, strings.ToUpper(strings.TrimSpace(code))).Scan(
		&coupon.Code, &discountType, &discountValue, &minOrder,
		&maxDiscount, &coupon.ExpiryDate, &coupon.MaxUsage, &coupon.UsedCount, &usedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	coupon.DiscountType = models.DiscountType(discountType)
	if coupon.DiscountValue, err = decimal.NewFromString(discountValue); err != nil {
		return nil, fmt.Errorf("bad coupon discount value %q: %w", discountValue, err)
	}
	if coupon.MinOrderAmount, err = decimal.NewFromString(minOrder); err != nil {
		return nil, fmt.Errorf("bad coupon minimum %q: %w", minOrder, err)
	}
	if coupon.MaxDiscount, err = decimal.NewFromString(maxDiscount); err != nil {
		return nil, fmt.Errorf("bad coupon cap %q: %w", maxDiscount, err)
	}
	coupon.UsedBy = usedBy
	return &coupon, nil
}

// RecordUse bumps the coupon's usage counter and remembers the
// redeeming user.
func (s *CouponStore) RecordUse(ctx context.Context, code string, userID uuid.UUID) error {
	query := `
		UPDATE coupons
		SET used_count = used_count + 1, used_by = array_append(used_by, $2)
		WHERE code = $1`
	cmdTag, err := s.pool.Exec(ctx, query, strings.ToUpper(strings.TrimSpace(code)), userID)
	if err != nil {
		return fmt.Errorf("failed to record coupon use: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
