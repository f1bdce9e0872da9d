package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/shopkartapp/shopkart/internal/logging"
)

const defaultIntentTimeout = 10 * time.Second

// RazorpayGateway implements Gateway against the Razorpay Orders API.
type RazorpayGateway struct {
	client *razorpay.Client
	secret string
	logger *slog.Logger
}

func NewRazorpayGateway(keyID, keySecret string, logger *slog.Logger) *RazorpayGateway {
	return &RazorpayGateway{
		client: razorpay.NewClient(keyID, keySecret),
		secret: keySecret,
		logger: logger,
	}
}

func (g *RazorpayGateway) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, g.logger)
}

// CreateIntent creates a Razorpay order for the given amount. The SDK
// call carries no context, so it runs under a bounded timeout and a
// late response is discarded.
func (g *RazorpayGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountMinorUnits <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount %d", ErrIntentFailed, req.AmountMinorUnits)
	}

	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   req.AmountMinorUnits,
		"currency": req.Currency,
		"receipt":  req.ReceiptID,
		"notes":    notes,
	}

	ctx, cancel := context.WithTimeout(ctx, defaultIntentTimeout)
	defer cancel()

	type orderResult struct {
		body map[string]interface{}
		err  error
	}
	resultCh := make(chan orderResult, 1)
	go func() {
		body, err := g.client.Order.Create(data, nil)
		resultCh <- orderResult{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		g.loggerFromContext(ctx).Warn("gateway intent creation timed out", "receipt", req.ReceiptID)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIntentFailed, result.err)
		}

		gatewayOrderID, _ := result.body["id"].(string)
		if gatewayOrderID == "" {
			return nil, fmt.Errorf("%w: response missing order id", ErrIntentFailed)
		}

		return &Intent{
			GatewayOrderID:   gatewayOrderID,
			AmountMinorUnits: req.AmountMinorUnits,
			Currency:         req.Currency,
		}, nil
	}
}

func (g *RazorpayGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return VerifyCallbackSignature(gatewayOrderID, gatewayPaymentID, signature, g.secret)
}
