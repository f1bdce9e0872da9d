package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type PaymentMethod string

const (
	PaymentCOD     PaymentMethod = "cod"
	PaymentGateway PaymentMethod = "gateway"
)

// ValidOrderStatus reports whether value is a known order status.
func ValidOrderStatus(value OrderStatus) bool {
	switch value {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// LineItem is a snapshot of a catalog product at order-creation time.
// Snapshots are never re-read from the catalog, so the displayed name
// and price stay stable even if the product later changes.
type LineItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageURL  string          `json:"image_url"`
}

// Amounts is the pricing breakdown derived once at order creation.
type Amounts struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Shipping   decimal.Decimal `json:"shipping"`
	Discount   decimal.Decimal `json:"discount"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

type ShippingAddress struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone"`
}

// InvoiceRecord tracks the invoice artifact generated for an order.
type InvoiceRecord struct {
	InvoiceNumber string    `json:"invoice_number"`
	Generated     bool      `json:"generated"`
	DocumentPath  string    `json:"document_path"`
	GeneratedAt   time.Time `json:"generated_at"`
	DownloadCount int       `json:"download_count"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	BuyerID         uuid.UUID       `json:"buyer_id"`
	Items           []LineItem      `json:"items"`
	Amounts         Amounts         `json:"amounts"`
	CouponCode      string          `json:"coupon_code"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	OrderStatus     OrderStatus     `json:"order_status"`
	IsPaid          bool            `json:"is_paid"`
	PaidAt          time.Time       `json:"paid_at"`
	IsDelivered     bool            `json:"is_delivered"`
	DeliveredAt     time.Time       `json:"delivered_at"`

	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	GatewaySignature string `json:"gateway_signature"`

	TrackingNumber string `json:"tracking_number"`
	CourierName    string `json:"courier_name"`
	AdminNotes     string `json:"admin_notes"`
	Notes          string `json:"notes"`

	Invoice InvoiceRecord `json:"invoice"`

	// Version is the optimistic-concurrency counter; every persisted
	// update bumps it and fails if the stored version moved underneath.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarkPaid records a completed payment on the order.
func (o *Order) MarkPaid(now time.Time) {
	o.PaymentStatus = PaymentCompleted
	o.IsPaid = true
	o.PaidAt = now
}

// AttachGatewayPayment stores the verified gateway identifiers.
func (o *Order) AttachGatewayPayment(gatewayOrderID, gatewayPaymentID, signature string) {
	o.GatewayOrderID = gatewayOrderID
	o.GatewayPaymentID = gatewayPaymentID
	o.GatewaySignature = signature
}

// StatusUpdate carries the optional fulfillment fields merged during a
// status transition. Empty strings leave the stored values untouched.
type StatusUpdate struct {
	TrackingNumber string
	CourierName    string
	AdminNotes     string
}

// ApplyStatus transitions the order to status and merges tracking fields.
// Moving to delivered sets the delivery flags and, for a cash-on-delivery
// order still awaiting payment, promotes the payment to completed because
// COD is collected at the door. Unpaid gateway orders are never promoted.
func (o *Order) ApplyStatus(status OrderStatus, update StatusUpdate, now time.Time) {
	o.OrderStatus = status

	if update.TrackingNumber != "" {
		o.TrackingNumber = update.TrackingNumber
	}
	if update.CourierName != "" {
		o.CourierName = update.CourierName
	}
	if update.AdminNotes != "" {
		o.AdminNotes = update.AdminNotes
	}

	if status == OrderDelivered {
		o.IsDelivered = true
		o.DeliveredAt = now
		if o.PaymentMethod == PaymentCOD && o.PaymentStatus == PaymentPending {
			o.MarkPaid(now)
		}
	}
}

// RecordInvoice replaces the order's invoice record with a freshly
// generated artifact. The previous invoice number is superseded, not
// reused; the download counter survives regeneration.
func (o *Order) RecordInvoice(invoiceNumber, documentPath string, now time.Time) {
	o.Invoice = InvoiceRecord{
		InvoiceNumber: invoiceNumber,
		Generated:     true,
		DocumentPath:  documentPath,
		GeneratedAt:   now,
		DownloadCount: o.Invoice.DownloadCount,
	}
}
