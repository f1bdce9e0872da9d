package cache

// Package cache backs payment-callback idempotency: verified gateway
// payment IDs are remembered for a TTL so a replayed callback is
// acknowledged without re-running the transition.

import (
	"context"
	"fmt"
	"time"
)

type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// PaymentCallbackKey is the idempotency key for a processed gateway
// payment callback.
func PaymentCallbackKey(gatewayPaymentID string) string {
	return fmt.Sprintf("payment:callback:%s", gatewayPaymentID)
}
