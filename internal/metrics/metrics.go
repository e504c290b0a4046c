package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for InvoicesCreated.
const (
	OutcomeDestination   = "destination"
	OutcomeLightningOnly = "onchain_unavailable"
	OutcomeCheckoutLink  = "checkout_link"
	OutcomeFailed        = "failed"
)

var (
	InvoicesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_invoices_total",
			Help: "Invoice creation requests by requested method and outcome",
		},
		[]string{"method", "outcome"},
	)

	PaymentMethodPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_payment_method_polls_total",
			Help: "Payment-method poll attempts by result",
		},
		[]string{"result"},
	)

	InvoiceCreationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkout_invoice_creation_duration_seconds",
			Help:    "End-to-end duration of invoice creation including polling",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 6, 8, 10, 15},
		},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_webhook_deliveries_total",
			Help: "Webhook deliveries by result",
		},
		[]string{"result"},
	)

	StatusLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_status_lookups_total",
			Help: "Status lookups by source",
		},
		[]string{"source"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(InvoicesCreated)
		prometheus.MustRegister(PaymentMethodPolls)
		prometheus.MustRegister(InvoiceCreationDuration)
		prometheus.MustRegister(WebhookDeliveries)
		prometheus.MustRegister(StatusLookups)
		prometheus.MustRegister(HTTPRequestDuration)
	})
}
