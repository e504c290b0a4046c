package payments

import (
	"context"
	"sync"
	"time"

	"satoshicheckout/internal/btcpay"
)

// fakeUpstream scripts provider responses per poll attempt.
type fakeUpstream struct {
	mu sync.Mutex

	invoice   *btcpay.Invoice
	createErr error
	created   []btcpay.CreateInvoiceRequest

	// polls[i] is returned on attempt i+1; the last entry repeats.
	polls     [][]btcpay.PaymentMethod
	pollErrs  map[int]error
	pollCalls int

	invoices map[string]*btcpay.Invoice
	getErr   error
}

func (f *fakeUpstream) CreateInvoice(ctx context.Context, req btcpay.CreateInvoiceRequest) (*btcpay.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	inv := *f.invoice
	return &inv, nil
}

func (f *fakeUpstream) GetPaymentMethods(ctx context.Context, invoiceID string) ([]btcpay.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.pollErrs[f.pollCalls]; err != nil {
		return nil, err
	}
	if len(f.polls) == 0 {
		return nil, nil
	}
	idx := f.pollCalls - 1
	if idx >= len(f.polls) {
		idx = len(f.polls) - 1
	}
	return f.polls[idx], nil
}

func (f *fakeUpstream) GetInvoice(ctx context.Context, invoiceID string) (*btcpay.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, &btcpay.APIError{StatusCode: 404, Message: "invoice not found"}
	}
	return inv, nil
}

func (f *fakeUpstream) FindInvoiceByOrderID(ctx context.Context, orderID string) (*btcpay.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, inv := range f.invoices {
		if inv.OrderID() == orderID {
			return inv, nil
		}
	}
	return nil, &btcpay.APIError{StatusCode: 404, Message: "no invoice for order"}
}

func (f *fakeUpstream) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCalls
}

// sleepRecorder replaces time.Sleep so poll tests run instantly.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
}

var (
	lightningEntry = btcpay.PaymentMethod{PaymentMethod: btcpay.MethodLightning, Destination: "lnbc1...", Amount: "0.00015"}
	onchainEntry   = btcpay.PaymentMethod{PaymentMethod: btcpay.MethodOnchain, Destination: "bc1qexampleaddress", Amount: "0.00015"}
	emptyOnchain   = btcpay.PaymentMethod{PaymentMethod: btcpay.MethodOnchain, Destination: ""}
)

func testInvoice() *btcpay.Invoice {
	return &btcpay.Invoice{
		ID:             "inv_1",
		Status:         "New",
		CheckoutLink:   "https://pay.example.com/i/inv_1",
		ExpirationTime: 1700000900,
		Amount:         "10",
		Currency:       "USD",
	}
}
