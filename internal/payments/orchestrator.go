package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"satoshicheckout/internal/btcpay"
	"satoshicheckout/internal/logging"
	"satoshicheckout/internal/metrics"
	"satoshicheckout/internal/store"
)

// Poll budgets. On-chain addresses are populated asynchronously by the provider,
// Lightning invoices are normally present right after creation.
const (
	DefaultLightningAttempts = 1
	DefaultOnchainAttempts   = 5
	DefaultPollInterval      = 2 * time.Second
)

const (
	msgCheckoutFallback   = "Payment details are not available yet. Please complete the payment on the checkout page."
	msgOnchainUnavailable = "On-chain payment is not available for this invoice. Please use the checkout page to pay."
	msgOnchainToLightning = "On-chain payment is not available for this invoice. Pay with the Lightning invoice instead."
)

// Upstream is the part of the provider client the orchestrator depends on.
type Upstream interface {
	CreateInvoice(ctx context.Context, req btcpay.CreateInvoiceRequest) (*btcpay.Invoice, error)
	GetPaymentMethods(ctx context.Context, invoiceID string) ([]btcpay.PaymentMethod, error)
}

// InvoiceCreationError is returned when the provider refused or failed the
// invoice-create call. It is terminal for the request.
type InvoiceCreationError struct {
	Err error
}

func (e *InvoiceCreationError) Error() string {
	return "failed to create invoice: " + e.Err.Error()
}

func (e *InvoiceCreationError) Unwrap() error {
	return e.Err
}

// Details returns the most specific upstream error text available.
func (e *InvoiceCreationError) Details() string {
	var apiErr *btcpay.APIError
	if errors.As(e.Err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.Body != "" {
			return apiErr.Body
		}
	}
	return e.Err.Error()
}

// InvoiceResult is the normalized outcome of CreateInvoice, whichever branch fired.
type InvoiceResult struct {
	OrderID             string     `json:"orderId"`
	InvoiceID           string     `json:"invoiceId"`
	CheckoutURL         string     `json:"checkoutURL"`
	ExpiresAt           *time.Time `json:"expiresAt,omitempty"`
	Status              string     `json:"status"`
	LightningInvoice    string     `json:"lightningInvoice,omitempty"`
	Address             string     `json:"address,omitempty"`
	BTCAmount           string     `json:"btcAmount,omitempty"`
	UseCheckoutLink     bool       `json:"useCheckoutLink,omitempty"`
	OnchainNotAvailable bool       `json:"onchainNotAvailable,omitempty"`
	Message             string     `json:"message,omitempty"`
}

// Options tunes the orchestrator. Zero values select the defaults.
type Options struct {
	// FallbackToLightning offers the Lightning invoice when an on-chain request
	// cannot be served. When false the user is sent to the checkout page instead.
	FallbackToLightning bool

	LightningAttempts int
	OnchainAttempts   int
	PollInterval      time.Duration
}

// Orchestrator creates invoices and waits, within a fixed budget, for the
// settlement details the provider fills in after creation.
type Orchestrator struct {
	upstream Upstream
	store    store.Store
	opts     Options

	sleep func(time.Duration)
	now   func() time.Time
}

// NewOrchestrator creates an orchestrator. st may be nil in stateless deployments.
func NewOrchestrator(upstream Upstream, st store.Store, opts Options) *Orchestrator {
	if opts.LightningAttempts <= 0 {
		opts.LightningAttempts = DefaultLightningAttempts
	}
	if opts.OnchainAttempts <= 0 {
		opts.OnchainAttempts = DefaultOnchainAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Orchestrator{
		upstream: upstream,
		store:    st,
		opts:     opts,
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// CreateInvoice creates a provider invoice for req and returns the settlement
// details that became available within the poll budget. Validation failures wrap
// ErrInvalidRequest; provider failures on creation are *InvoiceCreationError.
// Missing settlement details are not an error: the result then asks the caller
// to fall back to the hosted checkout page.
func (o *Orchestrator) CreateInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceResult, error) {
	start := time.Now()
	defer func() {
		metrics.InvoiceCreationDuration.Observe(time.Since(start).Seconds())
	}()

	if err := req.Normalize(); err != nil {
		return nil, err
	}
	methodLabel := string(req.PaymentMethod)
	if methodLabel == "" {
		methodLabel = "unspecified"
	}

	orderID := o.newOrderID()
	metadata := map[string]string{"orderId": orderID}
	if desc := SanitizeDescription(req.Description); desc != "" {
		metadata["itemDesc"] = desc
	}

	inv, err := o.upstream.CreateInvoice(ctx, btcpay.CreateInvoiceRequest{
		Amount:   string(req.Amount),
		Currency: req.Currency,
		Metadata: metadata,
		Checkout: btcpay.CheckoutOptions{
			PaymentMethods: checkoutMethods(req.PaymentMethod, o.opts.FallbackToLightning),
		},
	})
	if err != nil {
		metrics.InvoicesCreated.WithLabelValues(methodLabel, metrics.OutcomeFailed).Inc()
		logging.Internal.Printf("invoice creation failed for %s: %v", orderID, err)
		return nil, &InvoiceCreationError{Err: err}
	}

	result := &InvoiceResult{
		OrderID:     orderID,
		InvoiceID:   inv.ID,
		CheckoutURL: inv.CheckoutLink,
		Status:      NormalizeStatus(inv.Status),
	}
	if result.Status == "" {
		result.Status = StatusNew
	}
	if exp := inv.ExpiresAt(); !exp.IsZero() {
		result.ExpiresAt = &exp
	}

	o.remember(ctx, orderID, inv, req)

	found := o.pollPaymentMethods(context.WithoutCancel(ctx), inv.ID, req.PaymentMethod)
	outcome := o.classify(result, found, req.PaymentMethod)
	metrics.InvoicesCreated.WithLabelValues(methodLabel, outcome).Inc()

	logging.Internal.Printf("invoice %s created for order %s (method=%s, outcome=%s)", inv.ID, orderID, methodLabel, outcome)
	return result, nil
}

func (o *Orchestrator) newOrderID() string {
	return fmt.Sprintf("order_%d_%s", o.now().UnixMilli(), uuid.NewString()[:8])
}

// remember records the new order as New. The cache is best-effort, so a store
// failure does not fail invoice creation.
func (o *Orchestrator) remember(ctx context.Context, orderID string, inv *btcpay.Invoice, req InvoiceRequest) {
	if o.store == nil {
		return
	}
	now := o.now().UTC()
	err := o.store.Set(ctx, &store.Order{
		OrderID:   orderID,
		InvoiceID: inv.ID,
		Status:    StatusNew,
		Amount:    string(req.Amount),
		Currency:  req.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		logging.Internal.Printf("failed to cache order %s: %v", orderID, err)
	}
}

func checkoutMethods(method Method, fallbackToLightning bool) []string {
	switch method {
	case MethodLightning:
		return []string{btcpay.MethodLightning}
	case MethodOnchain:
		if fallbackToLightning {
			return []string{btcpay.MethodOnchain, btcpay.MethodLightning}
		}
		return []string{btcpay.MethodOnchain}
	default:
		return []string{btcpay.MethodOnchain, btcpay.MethodLightning}
	}
}

// settlement accumulates what the poll loop has observed.
type settlement struct {
	lightning    *btcpay.PaymentMethod
	onchain      *btcpay.PaymentMethod
	sawLightning bool
	sawOnchain   bool
}

func (s *settlement) observe(methods []btcpay.PaymentMethod) {
	for i := range methods {
		m := methods[i]
		switch {
		case btcpay.IsLightning(m.Method()):
			s.sawLightning = true
			if m.Destination != "" {
				s.lightning = &m
			}
		case btcpay.IsOnchain(m.Method()):
			s.sawOnchain = true
			if m.Destination != "" {
				s.onchain = &m
			}
		}
	}
}

func (s *settlement) satisfies(method Method) bool {
	switch method {
	case MethodLightning:
		return s.lightning != nil
	case MethodOnchain:
		return s.onchain != nil
	default:
		return s.lightning != nil || s.onchain != nil
	}
}

// pollPaymentMethods polls with a fixed delay between attempts until a usable
// destination for method appears or the budget runs out. Errors count as
// "no data yet".
func (o *Orchestrator) pollPaymentMethods(ctx context.Context, invoiceID string, method Method) *settlement {
	attempts := o.opts.LightningAttempts
	if method == MethodOnchain {
		attempts = o.opts.OnchainAttempts
	}

	found := &settlement{}
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			o.sleep(o.opts.PollInterval)
		}

		methods, err := o.upstream.GetPaymentMethods(ctx, invoiceID)
		if err != nil {
			metrics.PaymentMethodPolls.WithLabelValues("error").Inc()
			logging.Internal.Printf("payment methods for %s (attempt %d/%d) failed: %v", invoiceID, attempt, attempts, err)
			continue
		}

		found.observe(methods)
		if found.satisfies(method) {
			metrics.PaymentMethodPolls.WithLabelValues("found").Inc()
			return found
		}
		metrics.PaymentMethodPolls.WithLabelValues("empty").Inc()
	}
	return found
}

func (o *Orchestrator) classify(result *InvoiceResult, found *settlement, method Method) string {
	switch method {
	case MethodOnchain:
		if found.onchain != nil {
			result.Address = found.onchain.Destination
			result.BTCAmount = string(found.onchain.Amount)
			return metrics.OutcomeDestination
		}
		// Only Lightning offered: an on-chain entry without a destination is
		// still pending and falls through to the checkout link.
		if found.sawLightning && !found.sawOnchain {
			result.OnchainNotAvailable = true
			if o.opts.FallbackToLightning && found.lightning != nil {
				result.LightningInvoice = found.lightning.Destination
				result.BTCAmount = string(found.lightning.Amount)
				result.Message = msgOnchainToLightning
			} else {
				result.Message = msgOnchainUnavailable
			}
			return metrics.OutcomeLightningOnly
		}

	case MethodLightning:
		if found.lightning != nil {
			result.LightningInvoice = found.lightning.Destination
			result.BTCAmount = string(found.lightning.Amount)
			return metrics.OutcomeDestination
		}

	default:
		if found.lightning != nil || found.onchain != nil {
			if found.lightning != nil {
				result.LightningInvoice = found.lightning.Destination
				result.BTCAmount = string(found.lightning.Amount)
			}
			if found.onchain != nil {
				result.Address = found.onchain.Destination
				if result.BTCAmount == "" {
					result.BTCAmount = string(found.onchain.Amount)
				}
			}
			return metrics.OutcomeDestination
		}
	}

	result.UseCheckoutLink = true
	result.Message = msgCheckoutFallback
	return metrics.OutcomeCheckoutLink
}
