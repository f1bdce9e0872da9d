package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shopkartapp/shopkart/internal/models"
	"github.com/shopkartapp/shopkart/internal/services"
)

// Request DTOs accept both the canonical snake_case field names and the
// legacy names older clients still send (qty, pincode, razorpay_*).
// Mapping onto the canonical service input happens here and nowhere
// else; the core never sees the aliases.

type orderItemRequest struct {
	ProductID     uuid.UUID `json:"product_id"`
	LegacyProduct uuid.UUID `json:"product"`
	Quantity      int       `json:"quantity"`
	LegacyQty     int       `json:"qty"`
}

func (r orderItemRequest) canonical() services.OrderItemInput {
	item := services.OrderItemInput{ProductID: r.ProductID, Quantity: r.Quantity}
	if item.ProductID == uuid.Nil {
		item.ProductID = r.LegacyProduct
	}
	if item.Quantity == 0 {
		item.Quantity = r.LegacyQty
	}
	return item
}

type addressRequest struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	City          string `json:"city"`
	State         string `json:"state"`
	Country       string `json:"country"`
	PostalCode    string `json:"postal_code"`
	LegacyPincode string `json:"pincode"`
	Phone         string `json:"phone"`
}

func (r addressRequest) canonical() models.ShippingAddress {
	postalCode := r.PostalCode
	if postalCode == "" {
		postalCode = r.LegacyPincode
	}
	return models.ShippingAddress{
		Name:       r.Name,
		Address:    r.Address,
		City:       r.City,
		State:      r.State,
		Country:    r.Country,
		PostalCode: postalCode,
		Phone:      r.Phone,
	}
}

type createOrderRequest struct {
	Items           []orderItemRequest `json:"items"`
	ShippingAddress addressRequest     `json:"shipping_address"`
	PaymentMethod   string             `json:"payment_method"`
	CouponCode      string             `json:"coupon_code"`
	Notes           string             `json:"notes"`
}

func normalizePaymentMethod(raw string) models.PaymentMethod {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cod", "cash_on_delivery", "cash on delivery":
		return models.PaymentCOD
	case "gateway", "online", "razorpay", "prepaid":
		return models.PaymentGateway
	}
	return models.PaymentMethod(raw)
}

type paymentIntentResponse struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id,omitempty"`
}

type createOrderResponse struct {
	Order   *models.Order          `json:"order"`
	Payment *paymentIntentResponse `json:"payment,omitempty"`
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	input := services.CreateOrderInput{
		ShippingAddress: req.ShippingAddress.canonical(),
		PaymentMethod:   normalizePaymentMethod(req.PaymentMethod),
		CouponCode:      req.CouponCode,
		Notes:           req.Notes,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, item.canonical())
	}

	order, intent, err := h.orderService.CreateOrder(ctx, identity, input)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	resp := createOrderResponse{Order: order}
	if intent != nil {
		resp.Payment = &paymentIntentResponse{
			GatewayOrderID: intent.GatewayOrderID,
			Amount:         intent.AmountMinorUnits,
			Currency:       intent.Currency,
			KeyID:          h.config.RazorpayKeyID,
		}
	}
	h.writeJSON(ctx, w, http.StatusCreated, resp)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	orders, err := h.orderService.ListOrdersForBuyer(ctx, identity)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderIDFromRequest(w, r)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(ctx, identity, orderID)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`

	LegacyOrderID   string `json:"razorpay_order_id"`
	LegacyPaymentID string `json:"razorpay_payment_id"`
	LegacySignature string `json:"razorpay_signature"`
}

func (r verifyPaymentRequest) canonical() services.PaymentCallback {
	cb := services.PaymentCallback{
		GatewayOrderID:   r.GatewayOrderID,
		GatewayPaymentID: r.GatewayPaymentID,
		Signature:        r.Signature,
	}
	if cb.GatewayOrderID == "" {
		cb.GatewayOrderID = r.LegacyOrderID
	}
	if cb.GatewayPaymentID == "" {
		cb.GatewayPaymentID = r.LegacyPaymentID
	}
	if cb.Signature == "" {
		cb.Signature = r.LegacySignature
	}
	return cb
}

func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderIDFromRequest(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	order, err := h.orderService.VerifyAndMarkPaid(ctx, identity, orderID, req.canonical())
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}

func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	orders, err := h.orderService.ListAllOrders(ctx, identity, limit)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"orders": orders})
}

type updateStatusRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
	CourierName    string `json:"courier_name"`
	AdminNotes     string `json:"admin_notes"`
}

func (h *Handlers) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderIDFromRequest(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	status := models.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	order, err := h.orderService.UpdateStatus(ctx, identity, orderID, status, models.StatusUpdate{
		TrackingNumber: req.TrackingNumber,
		CourierName:    req.CourierName,
		AdminNotes:     req.AdminNotes,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}

type markPaidRequest struct {
	ExternalPaymentID string `json:"external_payment_id"`
}

func (h *Handlers) AdminMarkPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderIDFromRequest(w, r)
	if !ok {
		return
	}

	// Body is optional; an empty body marks the order paid without a
	// provider reference.
	var req markPaidRequest
	if r.ContentLength > 0 {
		if err := h.decodeJSON(w, r, &req); err != nil {
			h.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	order, err := h.orderService.MarkPaid(ctx, identity, orderID, req.ExternalPaymentID)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}

func (h *Handlers) orderIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["id"]
	orderID, err := uuid.Parse(raw)
	if err != nil {
		h.writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{Error: "invalid order id"})
		return uuid.Nil, false
	}
	return orderID, true
}
