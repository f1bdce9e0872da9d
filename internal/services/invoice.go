package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shopkartapp/shopkart/internal/db"
	"github.com/shopkartapp/shopkart/internal/invoice"
	"github.com/shopkartapp/shopkart/internal/logging"
	"github.com/shopkartapp/shopkart/internal/models"
	"github.com/shopkartapp/shopkart/internal/observability"
)

type invoiceRenderer interface {
	Render(order *models.Order, buyer *models.User, invoiceNumber string) ([]byte, error)
	SellerName() string
}

// InvoiceService owns invoice generation, caching and retrieval.
type InvoiceService struct {
	orderStore orderStore
	userStore  userStore
	renderer   invoiceRenderer
	documents  invoice.DocumentStore
	metrics    *observability.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewInvoiceService(orderStore orderStore, userStore userStore, renderer invoiceRenderer, documents invoice.DocumentStore, metrics *observability.Metrics, logger *slog.Logger) *InvoiceService {
	if metrics == nil {
		metrics = observability.NewNop()
	}
	return &InvoiceService{
		orderStore: orderStore,
		userStore:  userStore,
		renderer:   renderer,
		documents:  documents,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *InvoiceService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Issue generates a fresh invoice document for the order, stores it,
// and persists the updated invoice record. A previously issued invoice
// is superseded by a new number.
func (s *InvoiceService) Issue(ctx context.Context, order *models.Order) (*models.Order, error) {
	buyer, err := s.userStore.GetByID(ctx, order.BuyerID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load buyer: %w", err)
	}

	now := s.now()
	invoiceNumber := invoice.NewInvoiceNumber(order.ID, now)
	document, err := s.renderer.Render(order, buyer, invoiceNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to render invoice: %w", err)
	}

	key := documentKey(order.ID, invoiceNumber)
	if err := s.documents.Write(ctx, key, document); err != nil {
		return nil, fmt.Errorf("failed to store invoice document: %w", err)
	}

	updated, err := applyAndSave(ctx, s.orderStore, order, func(o *models.Order) {
		o.RecordInvoice(invoiceNumber, key, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record invoice on order: %w", err)
	}

	s.metrics.InvoicesGenerated.Inc()
	s.loggerFromContext(ctx).Info("invoice generated",
		"order_id", order.ID, "invoice_number", invoiceNumber)
	return updated, nil
}

// InvoiceDocument is a readable invoice artifact plus the filename the
// client should save it under.
type InvoiceDocument struct {
	Reader        io.ReadCloser
	Filename      string
	InvoiceNumber string
}

// FetchInvoiceDocument returns the order's invoice, generating it first
// when none exists or the stored artifact has gone missing. Repeated
// fetches of an intact invoice reuse the stored document and bump the
// download counter.
func (s *InvoiceService) FetchInvoiceDocument(ctx context.Context, caller models.Identity, orderID uuid.UUID) (*InvoiceDocument, error) {
	order, err := s.authorizedOrder(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}

	if !caller.IsAdmin() && !invoiceAccessible(order) {
		return nil, ErrPaymentRequired
	}

	if s.needsGeneration(ctx, order) {
		order, err = s.Issue(ctx, order)
		if err != nil {
			return nil, err
		}
	}

	order, err = applyAndSave(ctx, s.orderStore, order, func(o *models.Order) {
		o.Invoice.DownloadCount++
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count download: %w", err)
	}

	reader, err := s.documents.Open(ctx, order.Invoice.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open invoice document: %w", err)
	}

	s.metrics.InvoiceDownloads.Inc()
	return &InvoiceDocument{
		Reader:        reader,
		Filename:      fmt.Sprintf("%s-Invoice-%s.pdf", s.renderer.SellerName(), order.Invoice.InvoiceNumber),
		InvoiceNumber: order.Invoice.InvoiceNumber,
	}, nil
}

// GetInvoiceStatus reports the order's invoice record without touching
// the document or the download counter.
func (s *InvoiceService) GetInvoiceStatus(ctx context.Context, caller models.Identity, orderID uuid.UUID) (models.InvoiceRecord, error) {
	order, err := s.authorizedOrder(ctx, caller, orderID)
	if err != nil {
		return models.InvoiceRecord{}, err
	}
	return order.Invoice, nil
}

func (s *InvoiceService) authorizedOrder(ctx context.Context, caller models.Identity, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if !caller.IsAdmin() && caller.UserID != order.BuyerID {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *InvoiceService) needsGeneration(ctx context.Context, order *models.Order) bool {
	if !order.Invoice.Generated || order.Invoice.DocumentPath == "" {
		return true
	}
	exists, err := s.documents.Exists(ctx, order.Invoice.DocumentPath)
	if err != nil {
		s.loggerFromContext(ctx).Warn("failed to check invoice document",
			"error", err, "order_id", order.ID, "path", order.Invoice.DocumentPath)
		return true
	}
	return !exists
}

// invoiceAccessible implements the non-admin download gate: COD orders
// are always downloadable, everything else only once delivered or paid.
func invoiceAccessible(order *models.Order) bool {
	if order.PaymentMethod == models.PaymentCOD {
		return true
	}
	if order.OrderStatus == models.OrderDelivered {
		return true
	}
	return order.PaymentStatus == models.PaymentCompleted
}

func documentKey(orderID uuid.UUID, invoiceNumber string) string {
	return fmt.Sprintf("%s/%s.pdf", orderID, invoiceNumber)
}
