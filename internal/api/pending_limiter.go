package api

import (
	"sync"
	"time"
)

// PendingTimeout is how long an unpaid invoice counts against its IP. It
// matches the provider's default invoice expiry.
const PendingTimeout = 15 * time.Minute

// PendingInvoiceLimiter tracks unpaid invoices per IP address and caps how many
// a single IP may hold at once.
type PendingInvoiceLimiter struct {
	mu          sync.RWMutex
	maxPending  int
	pendingByIP map[string]map[string]time.Time // IP -> orderID -> tracked time
	orderToIP   map[string]string               // orderID -> IP
	now         func() time.Time
}

// NewPendingInvoiceLimiter creates a limiter allowing maxPending unpaid
// invoices per IP.
func NewPendingInvoiceLimiter(maxPending int) *PendingInvoiceLimiter {
	return &PendingInvoiceLimiter{
		maxPending:  maxPending,
		pendingByIP: make(map[string]map[string]time.Time),
		orderToIP:   make(map[string]string),
		now:         time.Now,
	}
}

// CanCreate reports whether ip is under the limit.
func (l *PendingInvoiceLimiter) CanCreate(ip string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.pendingByIP[ip]) < l.maxPending
}

// PendingCount returns the number of unpaid invoices held by ip.
func (l *PendingInvoiceLimiter) PendingCount(ip string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.pendingByIP[ip])
}

// MaxPending returns the configured per-IP maximum.
func (l *PendingInvoiceLimiter) MaxPending() int {
	return l.maxPending
}

// TrackPendingInvoice records a new unpaid order for ip. Tracking an order
// again moves it to the new IP.
func (l *PendingInvoiceLimiter) TrackPendingInvoice(ip, orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.untrack(orderID)
	if l.pendingByIP[ip] == nil {
		l.pendingByIP[ip] = make(map[string]time.Time)
	}
	l.pendingByIP[ip][orderID] = l.now()
	l.orderToIP[orderID] = ip
}

// OnPaymentReceived releases an order. It is the reconciler's payment callback.
func (l *PendingInvoiceLimiter) OnPaymentReceived(orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.untrack(orderID)
}

func (l *PendingInvoiceLimiter) untrack(orderID string) {
	ip, ok := l.orderToIP[orderID]
	if !ok {
		return
	}
	delete(l.orderToIP, orderID)
	if orders := l.pendingByIP[ip]; orders != nil {
		delete(orders, orderID)
		if len(orders) == 0 {
			delete(l.pendingByIP, ip)
		}
	}
}

// CleanupExpired drops orders tracked longer than maxAge and returns how many
// were removed.
func (l *PendingInvoiceLimiter) CleanupExpired(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)
	removed := 0

	for ip, orders := range l.pendingByIP {
		for orderID, trackedAt := range orders {
			if trackedAt.Before(cutoff) {
				delete(orders, orderID)
				delete(l.orderToIP, orderID)
				removed++
			}
		}
		if len(orders) == 0 {
			delete(l.pendingByIP, ip)
		}
	}

	return removed
}
