package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopkartapp/shopkart/internal/models"
)

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `
	id, buyer_id, items, subtotal::text, tax::text, shipping::text,
	discount::text, grand_total::text, coupon_code, shipping_address,
	payment_method, payment_status, order_status, is_paid, paid_at,
	is_delivered, delivered_at, gateway_order_id, gateway_payment_id,
	gateway_signature, tracking_number, courier_name, admin_notes, notes,
	invoice, version, created_at, updated_at`

func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode line items: %w", err)
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}
	invoiceJSON, err := json.Marshal(order.Invoice)
	if err != nil {
		return fmt.Errorf("failed to encode invoice record: %w", err)
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	query := `
		INSERT INTO orders (
			id, buyer_id, items, subtotal, tax, shipping, discount,
			grand_total, coupon_code, shipping_address, payment_method,
			payment_status, order_status, is_paid, is_delivered,
			gateway_order_id, gateway_payment_id, gateway_signature,
			tracking_number, courier_name, admin_notes, notes, invoice, version
		) VALUES (
			$1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric,
			$8::numeric, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, 1
		)
		RETURNING created_at, updated_at`
	row := s.pool.QueryRow(ctx, query,
		order.ID, order.BuyerID, itemsJSON,
		order.Amounts.Subtotal.String(), order.Amounts.Tax.String(),
		order.Amounts.Shipping.String(), order.Amounts.Discount.String(),
		order.Amounts.GrandTotal.String(),
		order.CouponCode, addressJSON,
		string(order.PaymentMethod), string(order.PaymentStatus), string(order.OrderStatus),
		order.IsPaid, order.IsDelivered,
		order.GatewayOrderID, order.GatewayPaymentID, order.GatewaySignature,
		order.TrackingNumber, order.CourierName, order.AdminNotes, order.Notes,
		invoiceJSON,
	)
	if err := row.Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	order.Version = 1
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := s.scanOrder(s.pool.QueryRow(ctx, query, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (s *OrderStore) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*models.Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for buyer: %w", err)
	}
	defer rows.Close()
	return s.collectOrders(rows)
}

const defaultListLimit = 500

func (s *OrderStore) ListAll(ctx context.Context, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()
	return s.collectOrders(rows)
}

// Update persists the full order document under optimistic concurrency:
// the write only lands if the stored version still matches the version
// the caller loaded; otherwise ErrVersionConflict is returned and the
// caller must reload and reapply.
func (s *OrderStore) Update(ctx context.Context, order *models.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode line items: %w", err)
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}
	invoiceJSON, err := json.Marshal(order.Invoice)
	if err != nil {
		return fmt.Errorf("failed to encode invoice record: %w", err)
	}

	paidAt := pgtype.Timestamptz{Time: order.PaidAt, Valid: !order.PaidAt.IsZero()}
	deliveredAt := pgtype.Timestamptz{Time: order.DeliveredAt, Valid: !order.DeliveredAt.IsZero()}

	query := `
		UPDATE orders SET
			items = $2, subtotal = $3::numeric, tax = $4::numeric,
			shipping = $5::numeric, discount = $6::numeric,
			grand_total = $7::numeric, coupon_code = $8,
			shipping_address = $9, payment_status = $10, order_status = $11,
			is_paid = $12, paid_at = $13, is_delivered = $14, delivered_at = $15,
			gateway_order_id = $16, gateway_payment_id = $17, gateway_signature = $18,
			tracking_number = $19, courier_name = $20, admin_notes = $21,
			invoice = $22, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $23`
	cmdTag, err := s.pool.Exec(ctx, query,
		order.ID, itemsJSON,
		order.Amounts.Subtotal.String(), order.Amounts.Tax.String(),
		order.Amounts.Shipping.String(), order.Amounts.Discount.String(),
		order.Amounts.GrandTotal.String(), order.CouponCode,
		addressJSON, string(order.PaymentStatus), string(order.OrderStatus),
		order.IsPaid, paidAt, order.IsDelivered, deliveredAt,
		order.GatewayOrderID, order.GatewayPaymentID, order.GatewaySignature,
		order.TrackingNumber, order.CourierName, order.AdminNotes,
		invoiceJSON, order.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	order.Version++
	return nil
}

func (s *OrderStore) collectOrders(rows pgx.Rows) ([]*models.Order, error) {
	var orders []*models.Order
	for rows.Next() {
		order, err := s.scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order rows: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *OrderStore) scanOrder(row rowScanner) (*models.Order, error) {
	var (
		order                                           models.Order
		itemsJSON, addressJSON, invoiceJSON             []byte
		subtotal, tax, shipping, discount, grandTotal   string
		paymentMethod, paymentStatus, orderStatus       string
		paidAt, deliveredAt                             pgtype.Timestamptz
	)

	err := row.Scan(
		&order.ID, &order.BuyerID, &itemsJSON,
		&subtotal, &tax, &shipping, &discount, &grandTotal,
		&order.CouponCode, &addressJSON,
		&paymentMethod, &paymentStatus, &orderStatus,
		&order.IsPaid, &paidAt, &order.IsDelivered, &deliveredAt,
		&order.GatewayOrderID, &order.GatewayPaymentID, &order.GatewaySignature,
		&order.TrackingNumber, &order.CourierName, &order.AdminNotes, &order.Notes,
		&invoiceJSON, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to decode line items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}
	if err := json.Unmarshal(invoiceJSON, &order.Invoice); err != nil {
		return nil, fmt.Errorf("failed to decode invoice record: %w", err)
	}

	amounts, err := decodeAmounts(subtotal, tax, shipping, discount, grandTotal)
	if err != nil {
		return nil, err
	}
	order.Amounts = amounts

	order.PaymentMethod = models.PaymentMethod(paymentMethod)
	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	order.OrderStatus = models.OrderStatus(orderStatus)
	if paidAt.Valid {
		order.PaidAt = paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = deliveredAt.Time
	}

	return &order, nil
}

func decodeAmounts(subtotal, tax, shipping, discount, grandTotal string) (models.Amounts, error) {
	var (
		amounts models.Amounts
		err     error
	)
	if amounts.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return amounts, fmt.Errorf("bad subtotal %q: %w", subtotal, err)
	}
	if amounts.Tax, err = decimal.NewFromString(tax); err != nil {
		return amounts, fmt.Errorf("bad tax %q: %w", tax, err)
	}
	if amounts.Shipping, err = decimal.NewFromString(shipping); err != nil {
		return amounts, fmt.Errorf("bad shipping %q: %w", shipping, err)
	}
	if amounts.Discount, err = decimal.NewFromString(discount); err != nil {
		return amounts, fmt.Errorf("bad discount %q: %w", discount, err)
	}
	if amounts.GrandTotal, err = decimal.NewFromString(grandTotal); err != nil {
		return amounts, fmt.Errorf("bad grand total %q: %w", grandTotal, err)
	}
	return amounts, nil
}
