package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`

	// Razorpay credentials are optional; without them gateway checkout
	// is disabled and only cash-on-delivery orders are accepted.
	RazorpayKeyID     string `env:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret string `env:"RAZORPAY_KEY_SECRET"`

	InvoiceDir        string `env:"INVOICE_DIR" envDefault:"./invoices" validate:"required"`
	SellerProfilePath string `env:"SELLER_PROFILE_PATH"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailFrom    string `env:"EMAIL_FROM" validate:"omitempty,email"`
	ShopName     string `env:"SHOP_NAME" envDefault:"ShopKart"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasKeyID := strings.TrimSpace(c.RazorpayKeyID) != ""
	hasKeySecret := strings.TrimSpace(c.RazorpayKeySecret) != ""
	if hasKeyID != hasKeySecret {
		return fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must be set together")
	}

	if strings.TrimSpace(c.ResendAPIKey) != "" && strings.TrimSpace(c.EmailFrom) == "" {
		return fmt.Errorf("EMAIL_FROM is required when RESEND_API_KEY is set")
	}

	return nil
}

// GatewayEnabled reports whether a payment provider is configured.
func (c *Config) GatewayEnabled() bool {
	return strings.TrimSpace(c.RazorpayKeyID) != "" && strings.TrimSpace(c.RazorpayKeySecret) != ""
}
