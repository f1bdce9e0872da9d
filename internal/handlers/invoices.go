package handlers

import (
	"fmt"
	"io"
	"net/http"
)

// DownloadInvoice streams the order's invoice PDF, generating it first
// when needed.
func (h *Handlers) DownloadInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderIDFromRequest(w, r)
	if !ok {
		return
	}

	doc, err := h.invoiceService.FetchInvoiceDocument(ctx, identity, orderID)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	defer doc.Reader.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	if _, err := io.Copy(w, doc.Reader); err != nil {
		h.loggerFromContext(ctx).Error("failed to stream invoice",
			"error", err, "order_id", orderID)
	}
}

func (h *Handlers) InvoiceStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderIDFromRequest(w, r)
	if !ok {
		return
	}

	status, err := h.invoiceService.GetInvoiceStatus(ctx, identity, orderID)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, status)
}
