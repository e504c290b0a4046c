package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"satoshicheckout/internal/btcpay"
	"satoshicheckout/internal/logging"
	"satoshicheckout/internal/metrics"
	"satoshicheckout/internal/store"
	"satoshicheckout/internal/webhook"
)

// StatusView is the status answer exposed to the checkout.
type StatusView struct {
	Status    string     `json:"status"`
	OrderID   string     `json:"orderId,omitempty"`
	InvoiceID string     `json:"invoiceId,omitempty"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
	Amount    string     `json:"amount,omitempty"`
	Currency  string     `json:"currency,omitempty"`
}

func notFound() *StatusView {
	return &StatusView{Status: StatusNotFound}
}

// Reconciler merges pushed webhook state and on-demand provider queries into
// one status view. Unknown ids yield StatusNotFound, never an error.
type Reconciler interface {
	OnWebhookEvent(ctx context.Context, ev *webhook.Event) error
	Status(ctx context.Context, id string) (*StatusView, error)
}

// InvoiceFetcher reads a single provider invoice by invoice id or order id.
type InvoiceFetcher interface {
	GetInvoice(ctx context.Context, invoiceID string) (*btcpay.Invoice, error)
	FindInvoiceByOrderID(ctx context.Context, orderID string) (*btcpay.Invoice, error)
}

// PaymentCallback is called with the order id when an order first becomes paid.
type PaymentCallback func(orderID string)

// CachedReconciler answers from the status store, which is written on invoice
// creation and by authenticated paid events.
type CachedReconciler struct {
	store    store.Store
	fallback Reconciler
	now      func() time.Time

	mu        sync.RWMutex
	onPayment PaymentCallback
}

// NewCachedReconciler creates a store-backed reconciler. When fallback is
// non-nil, cache misses are answered by it instead of StatusNotFound.
func NewCachedReconciler(st store.Store, fallback Reconciler) *CachedReconciler {
	return &CachedReconciler{
		store:    st,
		fallback: fallback,
		now:      time.Now,
	}
}

// SetPaymentCallback sets a callback invoked when an order is marked paid.
func (r *CachedReconciler) SetPaymentCallback(cb PaymentCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPayment = cb
}

// OnWebhookEvent marks the referenced order as paid for paid events. Redelivery
// of the same event leaves the stored order untouched.
//
// The duplicate check is best-effort: it reads then writes without a lock, so
// two deliveries racing on the same order may both write and both fire the
// payment callback. Both writes set Paid, and the callback must be idempotent.
func (r *CachedReconciler) OnWebhookEvent(ctx context.Context, ev *webhook.Event) error {
	if !ev.IsPaid() {
		logging.Webhook.Printf("event %q for invoice %s acknowledged without state change", ev.Type, ev.InvoiceID)
		return nil
	}

	key := ev.OrderID
	if key == "" {
		key = ev.InvoiceID
	}
	if key == "" {
		logging.Webhook.Printf("paid event without order or invoice reference ignored (delivery %s)", ev.DeliveryID)
		return nil
	}

	order, err := r.store.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if ev.OrderID == "" {
			logging.Webhook.Printf("paid event for unknown invoice %s ignored", ev.InvoiceID)
			return nil
		}
		order = &store.Order{OrderID: ev.OrderID, InvoiceID: ev.InvoiceID, CreatedAt: r.now().UTC()}
	case err != nil:
		return fmt.Errorf("failed to load order %s: %w", key, err)
	}

	if order.Status == StatusPaid && order.PaidAt != nil {
		logging.Webhook.Printf("order %s already paid, duplicate delivery ignored", order.OrderID)
		return nil
	}

	now := r.now().UTC()
	order.Status = StatusPaid
	order.UpdatedAt = now
	if order.PaidAt == nil {
		order.PaidAt = &now
	}
	if order.InvoiceID == "" {
		order.InvoiceID = ev.InvoiceID
	}
	if err := r.store.Set(ctx, order); err != nil {
		return fmt.Errorf("failed to mark order %s as paid: %w", order.OrderID, err)
	}
	logging.Webhook.Printf("order %s (invoice %s) marked as paid", order.OrderID, order.InvoiceID)

	r.mu.RLock()
	cb := r.onPayment
	r.mu.RUnlock()
	if cb != nil {
		func() {
			defer func() {
				if p := recover(); p != nil {
					logging.Internal.Printf("payment callback panic for order %s: %v", order.OrderID, p)
				}
			}()
			cb(order.OrderID)
		}()
	}
	return nil
}

// Status returns the cached status for an order or invoice id.
func (r *CachedReconciler) Status(ctx context.Context, id string) (*StatusView, error) {
	if id == "" {
		return notFound(), nil
	}

	order, err := r.store.Get(ctx, id)
	if err == nil {
		metrics.StatusLookups.WithLabelValues("cache").Inc()
		return &StatusView{
			Status:    order.Status,
			OrderID:   order.OrderID,
			InvoiceID: order.InvoiceID,
			PaidAt:    order.PaidAt,
			Amount:    order.Amount,
			Currency:  order.Currency,
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to read status for %s: %w", id, err)
	}

	if r.fallback != nil {
		return r.fallback.Status(ctx, id)
	}
	metrics.StatusLookups.WithLabelValues("miss").Inc()
	return notFound(), nil
}

// LiveReconciler is the stateless variant: every status query goes to the provider.
type LiveReconciler struct {
	upstream InvoiceFetcher
}

// NewLiveReconciler creates a reconciler that always queries upstream.
func NewLiveReconciler(upstream InvoiceFetcher) *LiveReconciler {
	return &LiveReconciler{upstream: upstream}
}

// OnWebhookEvent keeps no state; the next status query reads the provider.
func (r *LiveReconciler) OnWebhookEvent(ctx context.Context, ev *webhook.Event) error {
	logging.Webhook.Printf("event %q for invoice %s received (stateless mode)", ev.Type, ev.InvoiceID)
	return nil
}

// Status fetches the invoice and maps the provider status onto the normalized set.
// The id is tried as an invoice id first, then as an order id.
func (r *LiveReconciler) Status(ctx context.Context, id string) (*StatusView, error) {
	if id == "" {
		return notFound(), nil
	}

	inv, err := r.upstream.GetInvoice(ctx, id)
	if btcpay.IsNotFound(err) {
		inv, err = r.upstream.FindInvoiceByOrderID(ctx, id)
	}
	if btcpay.IsNotFound(err) {
		metrics.StatusLookups.WithLabelValues("miss").Inc()
		return notFound(), nil
	}
	if err != nil {
		metrics.StatusLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to fetch invoice %s: %w", id, err)
	}

	metrics.StatusLookups.WithLabelValues("live").Inc()
	return &StatusView{
		Status:    NormalizeStatus(inv.Status),
		OrderID:   inv.OrderID(),
		InvoiceID: inv.ID,
		Amount:    string(inv.Amount),
		Currency:  inv.Currency,
	}, nil
}
