package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopkartapp/shopkart/internal/db"
	"github.com/shopkartapp/shopkart/internal/models"
)

func testAddress() models.ShippingAddress {
	return models.ShippingAddress{
		Name:       "Asha Rao",
		Address:    "14 MG Road",
		City:       "Bengaluru",
		State:      "Karnataka",
		Country:    "India",
		PostalCode: "560001",
		Phone:      "+91 98000 00000",
	}
}

func signCallback(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(testGatewaySecret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateOrder_CashOnDelivery(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	shoes := activeProduct("Shoes", 500, 5)
	env := newTestEnv(t, []*models.Product{shirt, shoes}, nil)

	order, intent, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		Items: []OrderItemInput{
			{ProductID: shirt.ID, Quantity: 3},
			{ProductID: shoes.ID, Quantity: 1},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCOD,
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if intent != nil {
		t.Errorf("expected no payment intent for COD, got %+v", intent)
	}

	wantAmounts := map[string]struct {
		got  decimal.Decimal
		want int64
	}{
		"subtotal":    {order.Amounts.Subtotal, 1100},
		"tax":         {order.Amounts.Tax, 198},
		"shipping":    {order.Amounts.Shipping, 0},
		"grand total": {order.Amounts.GrandTotal, 1298},
	}
	for name, amount := range wantAmounts {
		if !amount.got.Equal(decimal.NewFromInt(amount.want)) {
			t.Errorf("%s = %s, want %d", name, amount.got, amount.want)
		}
	}

	if order.OrderStatus != models.OrderPending {
		t.Errorf("order status = %s, want %s", order.OrderStatus, models.OrderPending)
	}
	if order.PaymentStatus != models.PaymentPending {
		t.Errorf("payment status = %s, want %s", order.PaymentStatus, models.PaymentPending)
	}
	if !order.Invoice.Generated {
		t.Error("expected invoice to be generated at creation for COD")
	}
	if env.products.stock(t, shirt.ID) != 7 {
		t.Errorf("shirt stock = %d, want 7", env.products.stock(t, shirt.ID))
	}
	if env.products.stock(t, shoes.ID) != 4 {
		t.Errorf("shoes stock = %d, want 4", env.products.stock(t, shoes.ID))
	}

	stored, err := env.store.GetByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if stored.Invoice.InvoiceNumber != order.Invoice.InvoiceNumber {
		t.Errorf("stored invoice number = %q, want %q", stored.Invoice.InvoiceNumber, order.Invoice.InvoiceNumber)
	}
}

func TestCreateOrder_ShippingAtThreshold(t *testing.T) {
	t.Parallel()

	book := activeProduct("Book", 999, 3)
	env := newTestEnv(t, []*models.Product{book}, nil)

	order, _, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		Items:           []OrderItemInput{{ProductID: book.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCOD,
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if !order.Amounts.Shipping.Equal(decimal.NewFromInt(50)) {
		t.Errorf("shipping at exactly 999 = %s, want 50", order.Amounts.Shipping)
	}
}

func TestCreateOrder_GatewayReturnsIntent(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)

	order, intent, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		Items:           []OrderItemInput{{ProductID: shirt.ID, Quantity: 2}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentGateway,
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if intent == nil {
		t.Fatal("expected a payment intent for gateway order")
	}
	if order.GatewayOrderID != intent.GatewayOrderID {
		t.Errorf("order gateway id = %q, intent gateway id = %q", order.GatewayOrderID, intent.GatewayOrderID)
	}
	// 400 subtotal + 72 tax + 50 shipping = 522.00 -> 52200 paise.
	if intent.AmountMinorUnits != 52200 {
		t.Errorf("intent amount = %d paise, want 52200", intent.AmountMinorUnits)
	}
	if order.Invoice.Generated {
		t.Error("gateway order must not be invoiced before payment")
	}
}

func TestCreateOrder_GatewayDownLeavesStockUntouched(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)
	env.gateway.unavailable = true

	_, _, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		Items:           []OrderItemInput{{ProductID: shirt.ID, Quantity: 2}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentGateway,
	})
	if !errors.Is(err, ErrPaymentGatewayUnavailable) {
		t.Fatalf("expected ErrPaymentGatewayUnavailable, got %v", err)
	}
	if got := env.products.stock(t, shirt.ID); got != 10 {
		t.Errorf("stock = %d after gateway failure, want 10", got)
	}
	if orders, _ := env.store.ListAll(context.Background(), 0); len(orders) != 0 {
		t.Errorf("expected no persisted orders, found %d", len(orders))
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, nil)

	_, _, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		PaymentMethod: models.PaymentMethod("cheque"),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, want := range []string{"items", "shipping_address.name", "payment_method"} {
		found := false
		for _, field := range verr.Fields {
			if field == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("validation fields %v missing %q", verr.Fields, want)
		}
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 2)
	env := newTestEnv(t, []*models.Product{shirt}, nil)

	_, _, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		Items:           []OrderItemInput{{ProductID: shirt.ID, Quantity: 3}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCOD,
	})
	if !errors.Is(err, db.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	var serr *StockError
	if !errors.As(err, &serr) || serr.ProductID != shirt.ID {
		t.Fatalf("expected StockError for %s, got %v", shirt.ID, err)
	}
	if got := env.products.stock(t, shirt.ID); got != 2 {
		t.Errorf("stock = %d, want 2 untouched", got)
	}
}

func TestCreateOrder_RetiredProduct(t *testing.T) {
	t.Parallel()

	lamp := activeProduct("Lamp", 700, 5)
	lamp.State = models.ProductRetired
	env := newTestEnv(t, []*models.Product{lamp}, nil)

	_, _, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		Items:           []OrderItemInput{{ProductID: lamp.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCOD,
	})
	if !errors.Is(err, db.ErrProductInactive) {
		t.Fatalf("expected product inactive error, got %v", err)
	}
}

func TestCreateOrder_PartialReservationRollsBack(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	// Passes the snapshot pre-check for quantity 1 but we order 1 of
	// each, then drain the second product between snapshot and reserve
	// by seeding a quantity the floor rejects.
	shoes := activeProduct("Shoes", 500, 1)
	env := newTestEnv(t, []*models.Product{shirt, shoes}, nil)

	_, _, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		Items: []OrderItemInput{
			{ProductID: shirt.ID, Quantity: 2},
			{ProductID: shoes.ID, Quantity: 2},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCOD,
	})
	if !errors.Is(err, db.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if got := env.products.stock(t, shirt.ID); got != 10 {
		t.Errorf("shirt stock = %d after rollback, want 10", got)
	}
}

func TestCreateOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	t.Parallel()

	const stock = 5
	const buyers = 12
	shirt := activeProduct("T-Shirt", 200, stock)
	env := newTestEnv(t, []*models.Product{shirt}, nil)

	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
				Items:           []OrderItemInput{{ProductID: shirt.ID, Quantity: 1}},
				ShippingAddress: testAddress(),
				PaymentMethod:   models.PaymentCOD,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, db.ErrInsufficientStock) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != stock {
		t.Errorf("%d orders succeeded for %d units of stock", succeeded, stock)
	}
	if got := env.products.stock(t, shirt.ID); got != 0 {
		t.Errorf("stock = %d, want 0", got)
	}
}

func TestCreateOrder_Coupon(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	coupon := &models.Coupon{
		Code:          "SAVE10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
	}
	env := newTestEnv(t, []*models.Product{shirt}, []*models.Coupon{coupon})

	order, _, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		Items:           []OrderItemInput{{ProductID: shirt.ID, Quantity: 5}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCOD,
		CouponCode:      "SAVE10",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	// 1000 subtotal, 180 tax, free shipping, 100 off.
	if !order.Amounts.Discount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("discount = %s, want 100", order.Amounts.Discount)
	}
	if !order.Amounts.GrandTotal.Equal(decimal.NewFromInt(1080)) {
		t.Errorf("grand total = %s, want 1080", order.Amounts.GrandTotal)
	}
	if env.coupons.uses["SAVE10"] != 1 {
		t.Errorf("coupon uses = %d, want 1", env.coupons.uses["SAVE10"])
	}
}

func TestCreateOrder_UnknownCoupon(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)

	_, _, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		Items:           []OrderItemInput{{ProductID: shirt.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCOD,
		CouponCode:      "NOPE",
	})
	if !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}

func createGatewayOrder(t *testing.T, env *testEnv, productID uuid.UUID) *models.Order {
	t.Helper()
	order, _, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		Items:           []OrderItemInput{{ProductID: productID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentGateway,
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	return order
}

func TestVerifyAndMarkPaid(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)
	order := createGatewayOrder(t, env, shirt.ID)

	cb := PaymentCallback{
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pay_001",
		Signature:        signCallback(order.GatewayOrderID, "pay_001"),
	}
	paid, err := env.orders.VerifyAndMarkPaid(context.Background(), env.buyer, order.ID, cb)
	if err != nil {
		t.Fatalf("VerifyAndMarkPaid failed: %v", err)
	}
	if paid.PaymentStatus != models.PaymentCompleted || !paid.IsPaid {
		t.Errorf("payment status = %s, is_paid = %v, want completed/true", paid.PaymentStatus, paid.IsPaid)
	}
	if paid.GatewayPaymentID != "pay_001" {
		t.Errorf("gateway payment id = %q, want pay_001", paid.GatewayPaymentID)
	}
	if !paid.Invoice.Generated {
		t.Error("expected invoice after payment")
	}
	if env.emails.count() != 1 {
		t.Errorf("confirmation emails = %d, want 1", env.emails.count())
	}

	// Replayed callback: acknowledged, no second email.
	again, err := env.orders.VerifyAndMarkPaid(context.Background(), env.buyer, order.ID, cb)
	if err != nil {
		t.Fatalf("replayed callback failed: %v", err)
	}
	if again.PaymentStatus != models.PaymentCompleted {
		t.Errorf("replay payment status = %s", again.PaymentStatus)
	}
	if env.emails.count() != 1 {
		t.Errorf("confirmation emails after replay = %d, want 1", env.emails.count())
	}
}

func TestVerifyAndMarkPaid_BadSignature(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)
	order := createGatewayOrder(t, env, shirt.ID)

	_, err := env.orders.VerifyAndMarkPaid(context.Background(), env.buyer, order.ID, PaymentCallback{
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pay_001",
		Signature:        signCallback(order.GatewayOrderID, "pay_002"),
	})
	if !errors.Is(err, ErrPaymentVerificationFailed) {
		t.Fatalf("expected ErrPaymentVerificationFailed, got %v", err)
	}

	stored, _ := env.store.GetByID(context.Background(), order.ID)
	if stored.PaymentStatus != models.PaymentPending {
		t.Errorf("payment status = %s after rejected signature, want pending", stored.PaymentStatus)
	}
}

func TestVerifyAndMarkPaid_OwnerOnly(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)
	order := createGatewayOrder(t, env, shirt.ID)

	stranger := models.Identity{UserID: uuid.New(), Role: models.RoleBuyer}
	_, err := env.orders.VerifyAndMarkPaid(context.Background(), stranger, order.ID, PaymentCallback{
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: "pay_001",
		Signature:        signCallback(order.GatewayOrderID, "pay_001"),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestMarkPaid(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)
	order := createGatewayOrder(t, env, shirt.ID)

	if _, err := env.orders.MarkPaid(context.Background(), env.buyer, order.ID, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}

	paid, err := env.orders.MarkPaid(context.Background(), env.admin, order.ID, "txn_bank_042")
	if err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if paid.PaymentStatus != models.PaymentCompleted {
		t.Errorf("payment status = %s, want completed", paid.PaymentStatus)
	}
	if paid.GatewayPaymentID != "txn_bank_042" {
		t.Errorf("external payment reference = %q, want txn_bank_042", paid.GatewayPaymentID)
	}
	if env.emails.count() != 1 {
		t.Errorf("confirmation emails = %d, want 1", env.emails.count())
	}

	// Marking again is a no-op.
	if _, err := env.orders.MarkPaid(context.Background(), env.admin, order.ID, "txn_bank_042"); err != nil {
		t.Fatalf("second MarkPaid failed: %v", err)
	}
	if env.emails.count() != 1 {
		t.Errorf("emails after repeat MarkPaid = %d, want 1", env.emails.count())
	}
}

func TestUpdateStatus_DeliveredSettlesCOD(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)

	order, _, err := env.orders.CreateOrder(context.Background(), env.buyer, CreateOrderInput{
		Items:           []OrderItemInput{{ProductID: shirt.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.PaymentCOD,
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	delivered, err := env.orders.UpdateStatus(context.Background(), env.admin, order.ID, models.OrderDelivered, models.StatusUpdate{
		TrackingNumber: "AWB123",
		CourierName:    "BlueDart",
	})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if delivered.PaymentStatus != models.PaymentCompleted || !delivered.IsPaid {
		t.Errorf("COD delivery must settle payment, got status %s", delivered.PaymentStatus)
	}
	if !delivered.IsDelivered || delivered.DeliveredAt.IsZero() {
		t.Error("delivery flags not set")
	}
	if delivered.TrackingNumber != "AWB123" || delivered.CourierName != "BlueDart" {
		t.Errorf("tracking fields not merged: %q / %q", delivered.TrackingNumber, delivered.CourierName)
	}
}

func TestUpdateStatus_DeliveredKeepsGatewayPending(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)
	order := createGatewayOrder(t, env, shirt.ID)

	delivered, err := env.orders.UpdateStatus(context.Background(), env.admin, order.ID, models.OrderDelivered, models.StatusUpdate{})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if delivered.PaymentStatus != models.PaymentPending {
		t.Errorf("unpaid gateway order promoted on delivery: %s", delivered.PaymentStatus)
	}
}

func TestUpdateStatus_Validation(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)
	order := createGatewayOrder(t, env, shirt.ID)

	if _, err := env.orders.UpdateStatus(context.Background(), env.buyer, order.ID, models.OrderShipped, models.StatusUpdate{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}

	var verr *ValidationError
	_, err := env.orders.UpdateStatus(context.Background(), env.admin, order.ID, models.OrderStatus("teleported"), models.StatusUpdate{})
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown status, got %v", err)
	}
}

func TestGetOrder_Authorization(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)
	order := createGatewayOrder(t, env, shirt.ID)

	if _, err := env.orders.GetOrder(context.Background(), env.buyer, order.ID); err != nil {
		t.Errorf("buyer denied own order: %v", err)
	}
	if _, err := env.orders.GetOrder(context.Background(), env.admin, order.ID); err != nil {
		t.Errorf("admin denied order: %v", err)
	}
	stranger := models.Identity{UserID: uuid.New(), Role: models.RoleBuyer}
	if _, err := env.orders.GetOrder(context.Background(), stranger, order.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for stranger, got %v", err)
	}
	if _, err := env.orders.GetOrder(context.Background(), env.buyer, uuid.New()); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestListAllOrders_AdminOnly(t *testing.T) {
	t.Parallel()

	shirt := activeProduct("T-Shirt", 200, 10)
	env := newTestEnv(t, []*models.Product{shirt}, nil)
	createGatewayOrder(t, env, shirt.ID)

	if _, err := env.orders.ListAllOrders(context.Background(), env.buyer, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	orders, err := env.orders.ListAllOrders(context.Background(), env.admin, 0)
	if err != nil {
		t.Fatalf("ListAllOrders failed: %v", err)
	}
	if len(orders) != 1 {
		t.Errorf("orders = %d, want 1", len(orders))
	}
}
