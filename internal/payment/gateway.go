// Package payment abstracts the external payment provider behind a
// gateway port so the order service never talks to a provider SDK
// directly and tests can substitute a fake.
package payment

import (
	"context"
	"errors"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrIntentFailed       = errors.New("failed to create payment intent")
)

// IntentRequest describes the remote pending-payment record to create.
// Amount is in the gateway's smallest currency unit (paise for INR).
type IntentRequest struct {
	AmountMinorUnits int64
	Currency         string
	ReceiptID        string
	Notes            map[string]string
}

// Intent is the remote order the buyer completes payment against.
type Intent struct {
	GatewayOrderID   string
	AmountMinorUnits int64
	Currency         string
}

// Gateway is the port the order service depends on.
type Gateway interface {
	// CreateIntent registers a pending payment with the provider.
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)

	// VerifySignature reports whether signature is a valid provider
	// signature over the (gateway order id, gateway payment id) pair.
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}
