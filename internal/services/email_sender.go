package services

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/shopkartapp/shopkart/internal/email"
	"github.com/shopkartapp/shopkart/internal/models"
)

// OrderEmailSender notifies the buyer about order milestones. Sending
// is always best-effort; failures never fail the transition.
type OrderEmailSender interface {
	SendPaymentConfirmation(ctx context.Context, order *models.Order, buyer *models.User) error
}

type noopOrderEmailSender struct{}

func (noopOrderEmailSender) SendPaymentConfirmation(context.Context, *models.Order, *models.User) error {
	return nil
}

var paymentConfirmationText = template.Must(template.New("payment_confirmation").Parse(`Hi {{.BuyerName}},

We've received your payment of Rs. {{.GrandTotal}} for order {{.OrderID}}.
{{range .Items}}  - {{.Name}} x{{.Quantity}} @ Rs. {{.UnitPrice}}
{{end}}
We'll let you know as soon as your order ships.

{{.ShopName}}
`))

type paymentConfirmationData struct {
	BuyerName  string
	OrderID    string
	GrandTotal string
	Items      []paymentConfirmationItem
	ShopName   string
}

type paymentConfirmationItem struct {
	Name      string
	Quantity  int
	UnitPrice string
}

// shopOrderEmailSender renders and sends order emails through the
// configured email provider.
type shopOrderEmailSender struct {
	provider email.Provider
	shopName string
}

func NewShopOrderEmailSender(provider email.Provider, shopName string) OrderEmailSender {
	if provider == nil {
		return noopOrderEmailSender{}
	}
	return &shopOrderEmailSender{provider: provider, shopName: shopName}
}

func (s *shopOrderEmailSender) SendPaymentConfirmation(ctx context.Context, order *models.Order, buyer *models.User) error {
	if buyer.Email == "" {
		return nil
	}

	data := paymentConfirmationData{
		BuyerName:  buyer.Name,
		OrderID:    order.ID.String(),
		GrandTotal: order.Amounts.GrandTotal.StringFixed(2),
		ShopName:   s.shopName,
	}
	for _, item := range order.Items {
		data.Items = append(data.Items, paymentConfirmationItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		})
	}

	var body bytes.Buffer
	if err := paymentConfirmationText.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render payment confirmation: %w", err)
	}

	return s.provider.SendEmail(ctx, &email.Email{
		To:      buyer.Email,
		Subject: fmt.Sprintf("Payment received for order %s - %s", shortOrderID(order), s.shopName),
		Text:    body.String(),
	})
}

func shortOrderID(order *models.Order) string {
	id := order.ID.String()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
