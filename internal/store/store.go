package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Order is the locally cached view of an invoice, keyed by order id.
type Order struct {
	OrderID   string     `json:"orderId"`
	InvoiceID string     `json:"invoiceId,omitempty"`
	Status    string     `json:"status"`
	Amount    string     `json:"amount,omitempty"`
	Currency  string     `json:"currency,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

// Stats contains aggregate statistics about cached orders.
type Stats struct {
	TotalOrders int
	PaidOrders  int
	NewOrders   int
	OtherOrders int
	OldestOrder time.Time
	NewestOrder time.Time
	DailyPaid   []DailyStat
}

// DailyStat is the number of orders paid on one calendar day.
type DailyStat struct {
	Date       string
	PaidOrders int
}

// Store is the key-value status cache. Get accepts either an order id or an
// invoice id; Set is keyed by Order.OrderID and overwrites unconditionally.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (*Order, error)
	Set(ctx context.Context, order *Order) error
	Delete(ctx context.Context, orderID string) error
	Close() error
}
