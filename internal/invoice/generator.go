// Package invoice renders and stores order invoice documents.
package invoice

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/shopkartapp/shopkart/internal/models"
)

// Generator renders invoice PDFs for orders. The summary block reads
// the amounts breakdown stored on the order at creation time; it never
// recomputes tax or shipping from the grand total.
type Generator struct {
	seller SellerProfile
}

func NewGenerator(seller SellerProfile) *Generator {
	return &Generator{seller: seller}
}

func (g *Generator) SellerName() string {
	return g.seller.Name
}

// Render produces the PDF bytes for an order under the given invoice
// number. buyer is the authoritative buyer record, not a snapshot.
func (g *Generator) Render(order *models.Order, buyer *models.User, invoiceNumber string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Invoice %s", invoiceNumber), true)
	pdf.AliasNbPages("")

	terms := g.seller.Terms
	pdf.SetFooterFunc(func() {
		pdf.SetY(-28)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(110, 110, 110)
		pdf.MultiCell(0, 4, terms, "", "C", false)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	pdf.AddPage()

	g.renderHeader(pdf, invoiceNumber, order)
	g.renderParties(pdf, order, buyer)
	g.renderItems(pdf, order)
	g.renderSummary(pdf, order)
	g.renderPaymentInfo(pdf, order)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) renderHeader(pdf *gofpdf.Fpdf, invoiceNumber string, order *models.Order) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(120, 10, g.seller.Name, "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "TAX INVOICE", "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(90, 90, 90)
	for _, line := range g.sellerLines() {
		pdf.CellFormat(0, 4.5, line, "", 1, "L", false, 0, "")
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 5, fmt.Sprintf("Invoice No: %s", invoiceNumber), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Invoice Date: %s", time.Now().Format("02 Jan 2006")), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Order ID: %s", order.ID), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Order Date: %s", order.CreatedAt.Format("02 Jan 2006")), "", 1, "R", false, 0, "")
	pdf.Ln(4)
}

func (g *Generator) sellerLines() []string {
	var lines []string
	if g.seller.Address != "" {
		lines = append(lines, g.seller.Address)
	}
	locality := joinNonEmpty(", ", g.seller.City, g.seller.State, g.seller.PostalCode)
	if locality != "" {
		lines = append(lines, locality)
	}
	if g.seller.Country != "" {
		lines = append(lines, g.seller.Country)
	}
	contact := joinNonEmpty(" | ", g.seller.Email, g.seller.Phone)
	if contact != "" {
		lines = append(lines, contact)
	}
	if g.seller.GSTIN != "" {
		lines = append(lines, "GSTIN: "+g.seller.GSTIN)
	}
	return lines
}

func (g *Generator) renderParties(pdf *gofpdf.Fpdf, order *models.Order, buyer *models.User) {
	startY := pdf.GetY()

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(95, 6, "Billed To", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(95, 4.5, buyer.Name, "", 1, "L", false, 0, "")
	if buyer.Email != "" {
		pdf.CellFormat(95, 4.5, buyer.Email, "", 1, "L", false, 0, "")
	}
	if buyer.Phone != "" {
		pdf.CellFormat(95, 4.5, buyer.Phone, "", 1, "L", false, 0, "")
	}
	buyerEndY := pdf.GetY()

	addr := order.ShippingAddress
	pdf.SetY(startY)
	pdf.SetX(115)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, "Shipped To", "", 1, "L", false, 0, "")
	shipLines := []string{addr.Name, addr.Address, joinNonEmpty(", ", addr.City, addr.State, addr.PostalCode)}
	if addr.Country != "" {
		shipLines = append(shipLines, addr.Country)
	}
	if addr.Phone != "" {
		shipLines = append(shipLines, "Phone: "+addr.Phone)
	}
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range shipLines {
		if line == "" {
			continue
		}
		pdf.SetX(115)
		pdf.CellFormat(0, 4.5, line, "", 1, "L", false, 0, "")
	}

	if pdf.GetY() < buyerEndY {
		pdf.SetY(buyerEndY)
	}
	pdf.Ln(6)
}

func (g *Generator) renderItems(pdf *gofpdf.Fpdf, order *models.Order) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(10, 7, "#", "1", 0, "C", true, 0, "")
	pdf.CellFormat(90, 7, "Item", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 7, "Qty", "1", 0, "C", true, 0, "")
	pdf.CellFormat(35, 7, "Unit Price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 7, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for i, item := range order.Items {
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		pdf.CellFormat(10, 6, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(90, 6, item.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, money(item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, money(lineTotal), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(3)
}

func (g *Generator) renderSummary(pdf *gofpdf.Fpdf, order *models.Order) {
	amounts := order.Amounts

	rows := []struct {
		label string
		value decimal.Decimal
	}{
		{"Subtotal", amounts.Subtotal},
		{"Tax (18% GST)", amounts.Tax},
		{"Shipping", amounts.Shipping},
	}
	if amounts.Discount.IsPositive() {
		rows = append(rows, struct {
			label string
			value decimal.Decimal
		}{"Discount", amounts.Discount.Neg()})
	}

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		pdf.CellFormat(120, 6, "", "", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, row.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, money(row.value), "", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(120, 7, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(35, 7, "Grand Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, money(amounts.GrandTotal), "T", 1, "R", false, 0, "")
	pdf.Ln(5)
}

func (g *Generator) renderPaymentInfo(pdf *gofpdf.Fpdf, order *models.Order) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, "Payment Details", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)

	method := "Cash on Delivery"
	if order.PaymentMethod == models.PaymentGateway {
		method = "Online Payment"
	}
	pdf.CellFormat(0, 4.5, "Method: "+method, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 4.5, "Status: "+strings.ToUpper(string(order.PaymentStatus)), "", 1, "L", false, 0, "")
	if order.IsPaid {
		pdf.CellFormat(0, 4.5, "Paid On: "+order.PaidAt.Format("02 Jan 2006 15:04"), "", 1, "L", false, 0, "")
	}
	if order.GatewayPaymentID != "" {
		pdf.CellFormat(0, 4.5, "Payment Reference: "+order.GatewayPaymentID, "", 1, "L", false, 0, "")
	}
}

func money(value decimal.Decimal) string {
	return "Rs. " + value.StringFixed(2)
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, sep)
}
