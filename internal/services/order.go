package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shopkartapp/shopkart/internal/cache"
	"github.com/shopkartapp/shopkart/internal/db"
	"github.com/shopkartapp/shopkart/internal/logging"
	"github.com/shopkartapp/shopkart/internal/models"
	"github.com/shopkartapp/shopkart/internal/observability"
	"github.com/shopkartapp/shopkart/internal/payment"
	"github.com/shopkartapp/shopkart/internal/pricing"
)

const (
	orderCurrency = "INR"

	// callbackTTL bounds how long a processed gateway callback is
	// remembered for replay dedup.
	callbackTTL = 24 * time.Hour
)

type invoiceIssuer interface {
	Issue(ctx context.Context, order *models.Order) (*models.Order, error)
}

// OrderService owns the order lifecycle: creation with pricing and
// stock reservation, payment transitions, and fulfillment status.
type OrderService struct {
	orders   orderStore
	products productStore
	users    userStore
	coupons  couponStore
	gateway  payment.Gateway
	cache    cache.Provider
	emails   OrderEmailSender
	invoices invoiceIssuer
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrderService wires the order service. gateway may be nil when no
// payment provider is configured; gateway orders are then rejected while
// cash-on-delivery keeps working. emails may be nil to disable sending.
func NewOrderService(
	orders orderStore,
	products productStore,
	users userStore,
	coupons couponStore,
	gateway payment.Gateway,
	cacheProvider cache.Provider,
	emails OrderEmailSender,
	invoices invoiceIssuer,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *OrderService {
	if emails == nil {
		emails = noopOrderEmailSender{}
	}
	if metrics == nil {
		metrics = observability.NewNop()
	}
	return &OrderService{
		orders:   orders,
		products: products,
		users:    users,
		coupons:  coupons,
		gateway:  gateway,
		cache:    cacheProvider,
		emails:   emails,
		invoices: invoices,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// OrderItemInput is one requested order line.
type OrderItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateOrderInput is the canonical order-creation request.
type CreateOrderInput struct {
	Items           []OrderItemInput
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
	CouponCode      string
	Notes           string
}

func (in *CreateOrderInput) validate() error {
	var fields []string
	if len(in.Items) == 0 {
		fields = append(fields, "items")
	}
	for i, item := range in.Items {
		if item.ProductID == uuid.Nil {
			fields = append(fields, fmt.Sprintf("items[%d].product_id", i))
		}
		if item.Quantity <= 0 {
			fields = append(fields, fmt.Sprintf("items[%d].quantity", i))
		}
	}
	addr := in.ShippingAddress
	for _, field := range []struct {
		name  string
		value string
	}{
		{"shipping_address.name", addr.Name},
		{"shipping_address.address", addr.Address},
		{"shipping_address.city", addr.City},
		{"shipping_address.postal_code", addr.PostalCode},
		{"shipping_address.phone", addr.Phone},
	} {
		if field.value == "" {
			fields = append(fields, field.name)
		}
	}
	switch in.PaymentMethod {
	case models.PaymentCOD, models.PaymentGateway:
	default:
		fields = append(fields, "payment_method")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// CreateOrder prices the cart, reserves stock and persists the order.
// For gateway orders it also registers a payment intent with the
// provider and returns it; the intent is created before any stock is
// touched so a provider outage leaves inventory untouched.
func (s *OrderService) CreateOrder(ctx context.Context, caller models.Identity, input CreateOrderInput) (*models.Order, *payment.Intent, error) {
	log := s.loggerFromContext(ctx)

	if err := input.validate(); err != nil {
		s.metrics.OrderFailures.WithLabelValues("validation").Inc()
		return nil, nil, err
	}

	buyer, err := s.users.GetByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("failed to load buyer: %w", err)
	}

	// Snapshot every line before reserving anything, so a dead or
	// retired product rejects the whole order up front.
	items, err := s.snapshotItems(ctx, input.Items)
	if err != nil {
		s.metrics.OrderFailures.WithLabelValues("stock").Inc()
		return nil, nil, err
	}

	coupon, amounts, err := s.priceOrder(ctx, items, input.CouponCode, buyer.ID)
	if err != nil {
		s.metrics.OrderFailures.WithLabelValues("pricing").Inc()
		return nil, nil, err
	}

	now := s.now()
	order := &models.Order{
		ID:              uuid.New(),
		BuyerID:         buyer.ID,
		Items:           items,
		Amounts:         amounts,
		CouponCode:      input.CouponCode,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		OrderStatus:     models.OrderPending,
		Notes:           input.Notes,
		CreatedAt:       now,
	}

	var intent *payment.Intent
	if input.PaymentMethod == models.PaymentGateway {
		intent, err = s.createIntent(ctx, order)
		if err != nil {
			s.metrics.OrderFailures.WithLabelValues("gateway").Inc()
			return nil, nil, err
		}
		order.GatewayOrderID = intent.GatewayOrderID
	}

	if err := s.reserveStock(ctx, items); err != nil {
		s.metrics.OrderFailures.WithLabelValues("stock").Inc()
		return nil, nil, err
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.releaseStock(ctx, items)
		return nil, nil, fmt.Errorf("failed to persist order: %w", err)
	}

	if coupon != nil {
		if err := s.coupons.RecordUse(ctx, coupon.Code, buyer.ID); err != nil {
			log.Warn("failed to record coupon use", "error", err,
				"coupon", coupon.Code, "order_id", order.ID)
		}
	}

	// COD orders are invoiced immediately; gateway orders only once the
	// payment lands. Failures here never fail the order.
	if order.PaymentMethod == models.PaymentCOD && s.invoices != nil {
		if updated, issueErr := s.invoices.Issue(ctx, order); issueErr != nil {
			log.Warn("failed to generate invoice", "error", issueErr, "order_id", order.ID)
		} else {
			order = updated
		}
	}

	s.metrics.OrdersCreated.WithLabelValues(string(order.PaymentMethod)).Inc()
	log.Info("order created",
		"order_id", order.ID,
		"buyer_id", buyer.ID,
		"payment_method", order.PaymentMethod,
		"grand_total", order.Amounts.GrandTotal)
	return order, intent, nil
}

func (s *OrderService) snapshotItems(ctx context.Context, inputs []OrderItemInput) ([]models.LineItem, error) {
	items := make([]models.LineItem, 0, len(inputs))
	for _, in := range inputs {
		product, err := s.products.GetByID(ctx, in.ProductID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, &StockError{ProductID: in.ProductID, Cause: db.ErrNotFound}
			}
			return nil, fmt.Errorf("failed to load product %s: %w", in.ProductID, err)
		}
		if !product.Purchasable() {
			return nil, &StockError{ProductID: product.ID, ProductName: product.Name, Cause: db.ErrProductInactive}
		}
		if product.Stock < in.Quantity {
			return nil, &StockError{ProductID: product.ID, ProductName: product.Name, Cause: db.ErrInsufficientStock}
		}
		items = append(items, models.LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  in.Quantity,
			UnitPrice: product.Price,
			ImageURL:  product.ImageURL,
		})
	}
	return items, nil
}

func (s *OrderService) priceOrder(ctx context.Context, items []models.LineItem, couponCode string, buyerID uuid.UUID) (*models.Coupon, models.Amounts, error) {
	base, err := pricing.Compute(items, nil)
	if err != nil {
		return nil, models.Amounts{}, err
	}
	if couponCode == "" {
		return nil, base, nil
	}

	coupon, err := s.coupons.GetByCode(ctx, couponCode)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, models.Amounts{}, ErrCouponNotFound
		}
		return nil, models.Amounts{}, fmt.Errorf("failed to load coupon: %w", err)
	}
	if err := pricing.ValidateCoupon(coupon, base.Subtotal, buyerID, s.now()); err != nil {
		return nil, models.Amounts{}, err
	}

	amounts, err := pricing.Compute(items, coupon)
	if err != nil {
		return nil, models.Amounts{}, err
	}
	return coupon, amounts, nil
}

func (s *OrderService) createIntent(ctx context.Context, order *models.Order) (*payment.Intent, error) {
	if s.gateway == nil {
		return nil, ErrPaymentGatewayUnavailable
	}
	intent, err := s.gateway.CreateIntent(ctx, payment.IntentRequest{
		AmountMinorUnits: order.Amounts.GrandTotal.Shift(2).Round(0).IntPart(),
		Currency:         orderCurrency,
		ReceiptID:        order.ID.String(),
		Notes:            map[string]string{"buyer_id": order.BuyerID.String()},
	})
	if err != nil {
		if errors.Is(err, payment.ErrGatewayUnavailable) {
			return nil, ErrPaymentGatewayUnavailable
		}
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return intent, nil
}

// reserveStock decrements every line atomically against the stock
// floor. On failure the already reserved lines are restored so a
// half-reserved cart never leaks inventory.
func (s *OrderService) reserveStock(ctx context.Context, items []models.LineItem) error {
	reserved := make([]models.LineItem, 0, len(items))
	for _, item := range items {
		if err := s.products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.releaseStock(ctx, reserved)
			if errors.Is(err, db.ErrInsufficientStock) || errors.Is(err, db.ErrProductInactive) || errors.Is(err, db.ErrNotFound) {
				return &StockError{ProductID: item.ProductID, ProductName: item.Name, Cause: err}
			}
			return fmt.Errorf("failed to reserve stock for %s: %w", item.ProductID, err)
		}
		reserved = append(reserved, item)
	}
	return nil
}

func (s *OrderService) releaseStock(ctx context.Context, items []models.LineItem) {
	for _, item := range items {
		if err := s.products.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.loggerFromContext(ctx).Error("failed to restore stock",
				"error", err, "product_id", item.ProductID, "quantity", item.Quantity)
		}
	}
}

// MarkPaid records a completed payment on the order. Admin only; used
// for out-of-band settlements such as bank transfers.
// externalPaymentID is an optional provider reference to keep with the
// order. Marking an already-paid order is a no-op.
func (s *OrderService) MarkPaid(ctx context.Context, caller models.Identity, orderID uuid.UUID, externalPaymentID string) (*models.Order, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == models.PaymentCompleted {
		return order, nil
	}

	order, err = applyAndSave(ctx, s.orders, order, func(o *models.Order) {
		if externalPaymentID != "" {
			o.GatewayPaymentID = externalPaymentID
		}
		o.MarkPaid(s.now())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}

	s.metrics.PaymentsCompleted.WithLabelValues("admin").Inc()
	order = s.afterPayment(ctx, order)
	return order, nil
}

// PaymentCallback carries the gateway's payment confirmation fields.
type PaymentCallback struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// VerifyAndMarkPaid validates a gateway payment callback against the
// provider signature and, on success, completes the order's payment.
// Only the order's buyer may confirm it. Replayed callbacks for an
// already-processed payment succeed without re-running the transition.
func (s *OrderService) VerifyAndMarkPaid(ctx context.Context, caller models.Identity, orderID uuid.UUID, cb PaymentCallback) (*models.Order, error) {
	log := s.loggerFromContext(ctx)

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if caller.UserID != order.BuyerID {
		return nil, ErrForbidden
	}

	if cb.GatewayOrderID == "" || cb.GatewayPaymentID == "" || cb.Signature == "" {
		return nil, &ValidationError{Fields: []string{"gateway_order_id", "gateway_payment_id", "signature"}}
	}

	if s.seenCallback(ctx, cb.GatewayPaymentID) && order.PaymentStatus == models.PaymentCompleted {
		return order, nil
	}

	if s.gateway == nil {
		return nil, ErrPaymentGatewayUnavailable
	}
	if !s.gateway.VerifySignature(cb.GatewayOrderID, cb.GatewayPaymentID, cb.Signature) {
		log.Warn("payment signature rejected",
			"order_id", order.ID, "gateway_payment_id", cb.GatewayPaymentID)
		return nil, ErrPaymentVerificationFailed
	}

	order, err = applyAndSave(ctx, s.orders, order, func(o *models.Order) {
		o.AttachGatewayPayment(cb.GatewayOrderID, cb.GatewayPaymentID, cb.Signature)
		o.MarkPaid(s.now())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.PaymentCallbackKey(cb.GatewayPaymentID), order.ID.String(), callbackTTL); err != nil {
			log.Warn("failed to cache payment callback", "error", err,
				"gateway_payment_id", cb.GatewayPaymentID)
		}
	}

	s.metrics.PaymentsCompleted.WithLabelValues("gateway").Inc()
	order = s.afterPayment(ctx, order)
	log.Info("payment verified",
		"order_id", order.ID, "gateway_payment_id", cb.GatewayPaymentID)
	return order, nil
}

func (s *OrderService) seenCallback(ctx context.Context, gatewayPaymentID string) bool {
	if s.cache == nil {
		return false
	}
	_, err := s.cache.Get(ctx, cache.PaymentCallbackKey(gatewayPaymentID))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.loggerFromContext(ctx).Warn("failed to check payment callback cache",
				"error", err, "gateway_payment_id", gatewayPaymentID)
		}
		return false
	}
	return true
}

// afterPayment runs the best-effort side effects of a completed
// payment: invoice regeneration and the confirmation email. It returns
// the order with the fresh invoice record attached when issuing
// succeeded, the input order otherwise.
func (s *OrderService) afterPayment(ctx context.Context, order *models.Order) *models.Order {
	log := s.loggerFromContext(ctx)

	if s.invoices != nil {
		if updated, err := s.invoices.Issue(ctx, order); err != nil {
			log.Warn("failed to generate invoice", "error", err, "order_id", order.ID)
		} else {
			order = updated
		}
	}

	buyer, err := s.users.GetByID(ctx, order.BuyerID)
	if err != nil {
		log.Warn("failed to load buyer for confirmation email", "error", err,
			"order_id", order.ID)
		return order
	}
	if err := s.emails.SendPaymentConfirmation(ctx, order, buyer); err != nil {
		log.Warn("failed to send payment confirmation", "error", err,
			"order_id", order.ID)
	}
	return order
}

// UpdateStatus transitions the order's fulfillment status and merges
// the optional tracking fields. Admin only. Delivering a
// cash-on-delivery order also settles its payment.
func (s *OrderService) UpdateStatus(ctx context.Context, caller models.Identity, orderID uuid.UUID, status models.OrderStatus, update models.StatusUpdate) (*models.Order, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if !models.ValidOrderStatus(status) {
		return nil, &ValidationError{Fields: []string{"status"}}
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	wasPaid := order.PaymentStatus == models.PaymentCompleted

	order, err = applyAndSave(ctx, s.orders, order, func(o *models.Order) {
		o.ApplyStatus(status, update, s.now())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if !wasPaid && order.PaymentStatus == models.PaymentCompleted {
		s.metrics.PaymentsCompleted.WithLabelValues("delivery").Inc()
		order = s.afterPayment(ctx, order)
	}

	s.loggerFromContext(ctx).Info("order status updated",
		"order_id", order.ID, "status", status)
	return order, nil
}

// GetOrder returns the order for its buyer or an admin.
func (s *OrderService) GetOrder(ctx context.Context, caller models.Identity, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && caller.UserID != order.BuyerID {
		return nil, ErrForbidden
	}
	return order, nil
}

// ListOrdersForBuyer returns the caller's own orders, newest first.
func (s *OrderService) ListOrdersForBuyer(ctx context.Context, caller models.Identity) ([]*models.Order, error) {
	orders, err := s.orders.ListByBuyer(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// ListAllOrders returns every order for the admin dashboard, newest
// first, capped at limit (0 uses the store default).
func (s *OrderService) ListAllOrders(ctx context.Context, caller models.Identity, limit int) ([]*models.Order, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	orders, err := s.orders.ListAll(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}
