// Package email sends transactional order emails.
package email

import (
	"context"
	"fmt"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	APIKey string
	From   string
}

// NewProvider returns the configured provider, or nil when email is
// not configured; callers treat a nil provider as "don't send".
func NewProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required when email is configured")
	}
	return NewResendProvider(cfg.APIKey, cfg.From), nil
}
