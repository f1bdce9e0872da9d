package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrCouponNotFound = errors.New("coupon not found")

	ErrForbidden = errors.New("forbidden")

	// ErrPaymentRequired gates invoice downloads on unpaid gateway
	// orders that have not been delivered.
	ErrPaymentRequired = errors.New("payment required")

	ErrPaymentGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
)

// ValidationError reports a user-correctable request problem with the
// full list of offending fields, so the caller can fix them in one go.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields, ", "))
}

// StockError reports why an order line could not be fulfilled. Cause is
// one of the db stock sentinels (or db.ErrNotFound for a missing
// product) and participates in errors.Is chains.
type StockError struct {
	ProductID   uuid.UUID
	ProductName string
	Cause       error
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID.String()
	}
	return fmt.Sprintf("stock check failed for %s: %v", name, e.Cause)
}

func (e *StockError) Unwrap() error {
	return e.Cause
}
