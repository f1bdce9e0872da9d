package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopkartapp/shopkart/internal/cache"
	"github.com/shopkartapp/shopkart/internal/db"
	"github.com/shopkartapp/shopkart/internal/invoice"
	"github.com/shopkartapp/shopkart/internal/models"
	"github.com/shopkartapp/shopkart/internal/payment"
)

// In-memory store fakes mirroring the db package's semantics: sentinel
// errors, version checks on order updates, and the stock floor.

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[uuid.UUID]*models.Order)}
}

func cloneOrder(o *models.Order) *models.Order {
	clone := *o
	clone.Items = append([]models.LineItem(nil), o.Items...)
	return &clone
}

func (s *fakeOrderStore) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.Version = 1
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *fakeOrderStore) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *fakeOrderStore) ListByBuyer(_ context.Context, buyerID uuid.UUID) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, order := range s.orders {
		if order.BuyerID == buyerID {
			out = append(out, cloneOrder(order))
		}
	}
	return out, nil
}

func (s *fakeOrderStore) ListAll(_ context.Context, _ int) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, order := range s.orders {
		out = append(out, cloneOrder(order))
	}
	return out, nil
}

func (s *fakeOrderStore) Update(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[order.ID]
	if !ok {
		return db.ErrNotFound
	}
	if stored.Version != order.Version {
		return db.ErrVersionConflict
	}
	order.Version++
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

type fakeProductStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]*models.Product
}

func newFakeProductStore(products ...*models.Product) *fakeProductStore {
	s := &fakeProductStore{products: make(map[uuid.UUID]*models.Product)}
	for _, p := range products {
		clone := *p
		s.products[p.ID] = &clone
	}
	return s
}

func (s *fakeProductStore) GetByID(_ context.Context, productID uuid.UUID) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return nil, db.ErrNotFound
	}
	clone := *product
	return &clone, nil
}

func (s *fakeProductStore) DecrementStock(_ context.Context, productID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return db.ErrNotFound
	}
	if product.State != models.ProductActive {
		return db.ErrProductInactive
	}
	if product.Stock < quantity {
		return db.ErrInsufficientStock
	}
	product.Stock -= quantity
	return nil
}

func (s *fakeProductStore) RestoreStock(_ context.Context, productID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return db.ErrNotFound
	}
	product.Stock += quantity
	return nil
}

func (s *fakeProductStore) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		t.Fatalf("product %s not found", productID)
	}
	return product.Stock
}

type fakeUserStore struct {
	users map[uuid.UUID]*models.User
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return user, nil
}

type fakeCouponStore struct {
	mu      sync.Mutex
	coupons map[string]*models.Coupon
	uses    map[string]int
}

func newFakeCouponStore(coupons ...*models.Coupon) *fakeCouponStore {
	s := &fakeCouponStore{coupons: make(map[string]*models.Coupon), uses: make(map[string]int)}
	for _, c := range coupons {
		s.coupons[c.Code] = c
	}
	return s
}

func (s *fakeCouponStore) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coupon, ok := s.coupons[code]
	if !ok {
		return nil, db.ErrNotFound
	}
	clone := *coupon
	return &clone, nil
}

func (s *fakeCouponStore) RecordUse(_ context.Context, code string, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coupon, ok := s.coupons[code]
	if !ok {
		return db.ErrNotFound
	}
	coupon.UsedCount++
	coupon.UsedBy = append(coupon.UsedBy, userID)
	s.uses[code]++
	return nil
}

// fakeGateway signs with a real HMAC secret so verification tests
// exercise the production signature path.
type fakeGateway struct {
	secret      string
	unavailable bool
	intents     int
}

func (g *fakeGateway) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	if g.unavailable {
		return nil, payment.ErrGatewayUnavailable
	}
	g.intents++
	return &payment.Intent{
		GatewayOrderID:   "order_fake_" + req.ReceiptID[:8],
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         req.Currency,
	}, nil
}

func (g *fakeGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return payment.VerifyCallbackSignature(gatewayOrderID, gatewayPaymentID, signature, g.secret)
}

type recordingEmailSender struct {
	mu   sync.Mutex
	sent []uuid.UUID
}

func (r *recordingEmailSender) SendPaymentConfirmation(_ context.Context, order *models.Order, _ *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, order.ID)
	return nil
}

func (r *recordingEmailSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// testEnv assembles the order and invoice services over the fakes.
type testEnv struct {
	orders    *OrderService
	invoices  *InvoiceService
	store     *fakeOrderStore
	products  *fakeProductStore
	coupons   *fakeCouponStore
	documents *invoice.MemoryStore
	gateway   *fakeGateway
	emails    *recordingEmailSender
	buyer     models.Identity
	admin     models.Identity
	buyerUser *models.User
}

const testGatewaySecret = "test_gateway_secret"

func newTestEnv(t *testing.T, products []*models.Product, coupons []*models.Coupon) *testEnv {
	t.Helper()

	buyer := &models.User{ID: uuid.New(), Name: "Asha Rao", Email: "asha@example.com", Role: models.RoleBuyer}
	admin := &models.User{ID: uuid.New(), Name: "Ops Admin", Email: "ops@example.com", Role: models.RoleAdmin}

	orderStore := newFakeOrderStore()
	productStore := newFakeProductStore(products...)
	userStore := newFakeUserStore(buyer, admin)
	couponStore := newFakeCouponStore(coupons...)
	documents := invoice.NewMemoryStore()
	gateway := &fakeGateway{secret: testGatewaySecret}
	emails := &recordingEmailSender{}
	logger := slog.New(slog.DiscardHandler)

	cacheProvider, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { cacheProvider.Close() })

	invoiceSvc := NewInvoiceService(orderStore, userStore,
		invoice.NewGenerator(invoice.DefaultSellerProfile()), documents, nil, logger)
	orderSvc := NewOrderService(orderStore, productStore, userStore, couponStore,
		gateway, cacheProvider, emails, invoiceSvc, nil, logger)

	return &testEnv{
		orders:    orderSvc,
		invoices:  invoiceSvc,
		store:     orderStore,
		products:  productStore,
		coupons:   couponStore,
		documents: documents,
		gateway:   gateway,
		emails:    emails,
		buyer:     models.Identity{UserID: buyer.ID, Role: models.RoleBuyer},
		admin:     models.Identity{UserID: admin.ID, Role: models.RoleAdmin},
		buyerUser: buyer,
	}
}

func activeProduct(name string, price int64, stock int) *models.Product {
	return &models.Product{
		ID:    uuid.New(),
		Name:  name,
		Price: decimal.NewFromInt(price),
		Stock: stock,
		State: models.ProductActive,
	}
}
