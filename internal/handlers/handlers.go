// Package handlers exposes the order core over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopkartapp/shopkart/internal/config"
	"github.com/shopkartapp/shopkart/internal/logging"
	"github.com/shopkartapp/shopkart/internal/observability"
	"github.com/shopkartapp/shopkart/internal/pricing"
	"github.com/shopkartapp/shopkart/internal/services"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// Handlers provides the HTTP request handlers for the ShopKart API.
type Handlers struct {
	config         *config.Config
	db             *pgxpool.Pool
	orderService   *services.OrderService
	invoiceService *services.InvoiceService
	metrics        *observability.Metrics
	logger         *slog.Logger
}

type Dependencies struct {
	Config         *config.Config
	DB             *pgxpool.Pool
	OrderService   *services.OrderService
	InvoiceService *services.InvoiceService
	Metrics        *observability.Metrics
	Logger         *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.OrderService == nil {
		return nil, fmt.Errorf("handlers dependencies: orderService is required")
	}
	if deps.InvoiceService == nil {
		return nil, fmt.Errorf("handlers dependencies: invoiceService is required")
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewNop()
	}

	return &Handlers{
		config:         deps.Config,
		db:             deps.DB,
		orderService:   deps.OrderService,
		invoiceService: deps.InvoiceService,
		metrics:        metrics,
		logger:         logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			logger.Error("database health check failed", "error", err)
			http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
			return
		}
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func (h *Handlers) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.loggerFromContext(ctx).Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// writeServiceError maps core errors onto HTTP statuses. Unrecognized
// errors become opaque 500s; the detail stays in the logs.
func (h *Handlers) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Fields})
		return
	}
	var serr *services.StockError
	if errors.As(err, &serr) {
		h.writeJSON(ctx, w, http.StatusConflict, errorResponse{Error: serr.Error()})
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrCouponNotFound):
		h.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrForbidden):
		h.writeJSON(ctx, w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, services.ErrPaymentRequired):
		h.writeJSON(ctx, w, http.StatusPaymentRequired, errorResponse{Error: "invoice available after payment or delivery"})
	case errors.Is(err, services.ErrPaymentVerificationFailed):
		h.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrPaymentGatewayUnavailable):
		h.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case isCouponRejection(err):
		h.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		h.loggerFromContext(ctx).Error("request failed", "error", err)
		h.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func isCouponRejection(err error) bool {
	return errors.Is(err, pricing.ErrCouponExpired) ||
		errors.Is(err, pricing.ErrCouponMinOrder) ||
		errors.Is(err, pricing.ErrCouponExhausted) ||
		errors.Is(err, pricing.ErrCouponAlreadyUsed)
}

func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
