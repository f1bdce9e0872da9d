// Package observability exposes the service's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OrdersCreated     *prometheus.CounterVec
	OrderFailures     *prometheus.CounterVec
	PaymentsCompleted *prometheus.CounterVec
	InvoicesGenerated prometheus.Counter
	InvoiceDownloads  prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewNop returns metrics backed by a throwaway registry, for tests and
// callers that do not expose a scrape endpoint.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// New registers the service metrics on the given registerer. Passing
// prometheus.DefaultRegisterer wires them into the default /metrics
// handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OrdersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopkart_orders_created_total",
			Help: "Orders created, by payment method.",
		}, []string{"payment_method"}),
		OrderFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopkart_order_failures_total",
			Help: "Rejected order creations, by reason.",
		}, []string{"reason"}),
		PaymentsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopkart_payments_completed_total",
			Help: "Payments marked completed, by source.",
		}, []string{"source"}),
		InvoicesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopkart_invoices_generated_total",
			Help: "Invoice documents generated, including regenerations.",
		}),
		InvoiceDownloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopkart_invoice_downloads_total",
			Help: "Invoice document downloads served.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopkart_http_requests_total",
			Help: "HTTP requests served, by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopkart_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
