package invoice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopkartapp/shopkart/internal/models"
)

func TestNewInvoiceNumber_Format(t *testing.T) {
	t.Parallel()

	orderID := uuid.MustParse("3e7c9d4a-8f21-4b6e-9c5d-1a2b3c4d5e6f")
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	got := NewInvoiceNumber(orderID, now)

	pattern := regexp.MustCompile(`^INV-260314-4d5e6f-\d{4}$`)
	if !pattern.MatchString(got) {
		t.Fatalf("NewInvoiceNumber() = %q, want match for %q", got, pattern)
	}
}

func TestNewInvoiceNumber_RegenerationMintsNewNumbers(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	now := time.Now()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[NewInvoiceNumber(orderID, now)] = true
	}
	// 50 draws from 10000 suffixes colliding down to one number would
	// mean the random source is broken.
	if len(seen) < 2 {
		t.Fatalf("expected multiple distinct invoice numbers, got %d", len(seen))
	}
}

func TestGenerator_Render(t *testing.T) {
	t.Parallel()

	order := &models.Order{
		ID:      uuid.New(),
		BuyerID: uuid.New(),
		Items: []models.LineItem{
			{ProductID: uuid.New(), Name: "Cotton Kurta", Quantity: 3, UnitPrice: decimal.NewFromInt(200)},
			{ProductID: uuid.New(), Name: "Silk Scarf", Quantity: 1, UnitPrice: decimal.NewFromInt(500)},
		},
		Amounts: models.Amounts{
			Subtotal:   decimal.NewFromInt(1100),
			Tax:        decimal.NewFromInt(198),
			Shipping:   decimal.Zero,
			Discount:   decimal.Zero,
			GrandTotal: decimal.NewFromInt(1298),
		},
		ShippingAddress: models.ShippingAddress{
			Name:       "Asha Verma",
			Address:    "12 MG Road",
			City:       "Bengaluru",
			State:      "Karnataka",
			Country:    "India",
			PostalCode: "560001",
			Phone:      "+91 98765 43210",
		},
		PaymentMethod: models.PaymentCOD,
		PaymentStatus: models.PaymentPending,
		OrderStatus:   models.OrderPending,
		CreatedAt:     time.Now(),
	}
	buyer := &models.User{
		ID:    order.BuyerID,
		Name:  "Asha Verma",
		Email: "asha@example.com",
		Phone: "+91 98765 43210",
	}

	gen := NewGenerator(DefaultSellerProfile())
	data, err := gen.Render(order, buyer, "INV-260314-abc123-0042")
	if err != nil {
		t.Fatalf("Render() unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Render() produced an empty document")
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("Render() output does not look like a PDF, starts with %q", data[:4])
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Write(ctx, "orders/abc.pdf", []byte("doc")); err != nil {
		t.Fatalf("Write() unexpected error: %v", err)
	}

	exists, err := store.Exists(ctx, "orders/abc.pdf")
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v, want true, nil", exists, err)
	}

	rc, err := store.Open(ctx, "orders/abc.pdf")
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil || string(data) != "doc" {
		t.Fatalf("ReadAll() = %q, %v, want %q, nil", data, err, "doc")
	}

	store.Delete("orders/abc.pdf")
	if _, err := store.Open(ctx, "orders/abc.pdf"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("Open() after delete = %v, want ErrDocumentNotFound", err)
	}
}

func TestFSStore_RejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() unexpected error: %v", err)
	}

	if err := store.Write(context.Background(), "../escape.pdf", []byte("x")); err == nil {
		t.Fatal("Write() with traversal key should fail")
	}
	if _, err := store.Open(context.Background(), "/abs/path.pdf"); err == nil {
		t.Fatal("Open() with absolute key should fail")
	}
}
