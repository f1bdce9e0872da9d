package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopkartapp/shopkart/internal/models"
)

type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

func (s *ProductStore) GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	query := `
		SELECT id, name, price::text, stock, image_url, state, created_at
		FROM products WHERE id = $1`

	var (
		product models.Product
		price   string
		state   string
	)
	err := s.pool.QueryRow(ctx, query, productID).Scan(
		&product.ID, &product.Name, &price, &product.Stock,
		&product.ImageURL, &state, &product.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	product.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("bad product price %q: %w", price, err)
	}
	product.State = models.ProductState(state)
	return &product, nil
}

// DecrementStock atomically takes quantity units from the product's
// stock. The floor check lives in the WHERE clause, so two concurrent
// orders can never drive stock negative; a failed decrement reports
// why via the returned sentinel.
func (s *ProductStore) DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND state = 'active' AND stock >= $2`
	cmdTag, err := s.pool.Exec(ctx, query, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	// Decrement refused; distinguish the reason for the caller.
	product, err := s.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if !product.Purchasable() {
		return ErrProductInactive
	}
	return ErrInsufficientStock
}

// RestoreStock compensates a prior decrement after a failed order
// persist.
func (s *ProductStore) RestoreStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `UPDATE products SET stock = stock + $2 WHERE id = $1`
	cmdTag, err := s.pool.Exec(ctx, query, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
