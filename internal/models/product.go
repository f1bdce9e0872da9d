package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductState string

const (
	ProductActive  ProductState = "active"
	ProductRetired ProductState = "retired"
)

// Product is a read collaborator of the order core. The only write the
// core performs against the catalog is the stock decrement on a
// confirmed order.
type Product struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	ImageURL  string          `json:"image_url"`
	State     ProductState    `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// Purchasable reports whether the product can appear on a new order.
func (p *Product) Purchasable() bool {
	return p.State == ProductActive
}
