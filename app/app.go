package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopkartapp/shopkart/internal/cache"
	"github.com/shopkartapp/shopkart/internal/config"
	"github.com/shopkartapp/shopkart/internal/db"
	"github.com/shopkartapp/shopkart/internal/email"
	"github.com/shopkartapp/shopkart/internal/handlers"
	"github.com/shopkartapp/shopkart/internal/invoice"
	"github.com/shopkartapp/shopkart/internal/observability"
	"github.com/shopkartapp/shopkart/internal/payment"
	"github.com/shopkartapp/shopkart/internal/services"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	documents, err := invoice.NewFSStore(cfg.InvoiceDir)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize invoice store: %w", err)
	}

	seller := invoice.DefaultSellerProfile()
	if cfg.SellerProfilePath != "" {
		seller, err = invoice.LoadSellerProfile(cfg.SellerProfilePath)
		if err != nil {
			closeCacheProvider(logger, cacheProvider)
			database.Close()
			return nil, fmt.Errorf("failed to load seller profile: %w", err)
		}
	}

	var gateway payment.Gateway
	if cfg.GatewayEnabled() {
		gateway = payment.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret,
			logger.With("component", "razorpay_gateway"))
	} else {
		logger.Warn("payment gateway credentials not set, gateway checkout disabled")
	}

	emailProvider, err := email.NewProvider(email.Config{
		APIKey: cfg.ResendAPIKey,
		From:   cfg.EmailFrom,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}

	metrics := observability.New(prometheus.DefaultRegisterer)

	orderStore := db.NewOrderStore(database)
	productStore := db.NewProductStore(database)
	userStore := db.NewUserStore(database)
	couponStore := db.NewCouponStore(database)

	invoiceService := services.NewInvoiceService(
		orderStore,
		userStore,
		invoice.NewGenerator(seller),
		documents,
		metrics,
		logger.With("component", "invoice_service"),
	)
	orderService := services.NewOrderService(
		orderStore,
		productStore,
		userStore,
		couponStore,
		gateway,
		cacheProvider,
		services.NewShopOrderEmailSender(emailProvider, cfg.ShopName),
		invoiceService,
		metrics,
		logger.With("component", "order_service"),
	)

	h, err := handlers.New(handlers.Dependencies{
		Config:         cfg,
		DB:             database,
		OrderService:   orderService,
		InvoiceService: invoiceService,
		Metrics:        metrics,
		Logger:         logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Handlers:      h,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	case "text", "":
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel}))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
