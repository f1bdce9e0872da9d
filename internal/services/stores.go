package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/shopkartapp/shopkart/internal/db"
	"github.com/shopkartapp/shopkart/internal/models"
)

// Consumer-side store contracts, satisfied by the db package and by
// in-memory fakes in tests.

type orderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.Order, error)
	ListAll(ctx context.Context, limit int) ([]*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
}

type productStore interface {
	GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error
	RestoreStock(ctx context.Context, productID uuid.UUID, quantity int) error
}

type userStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type couponStore interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	RecordUse(ctx context.Context, code string, userID uuid.UUID) error
}

const maxSaveAttempts = 3

// applyAndSave runs apply on the order and persists it, retrying over a
// fresh copy if another writer bumped the version first. apply must be
// safe to re-run against the reloaded state.
func applyAndSave(ctx context.Context, store orderStore, order *models.Order, apply func(*models.Order)) (*models.Order, error) {
	current := order
	for attempt := 1; ; attempt++ {
		apply(current)

		err := store.Update(ctx, current)
		if err == nil {
			return current, nil
		}
		if !errors.Is(err, db.ErrVersionConflict) || attempt == maxSaveAttempts {
			return nil, err
		}

		reloaded, loadErr := store.GetByID(ctx, current.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		current = reloaded
	}
}
