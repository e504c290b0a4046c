package store

import (
	"context"
	"sync"
)

// MemoryStore is the in-process default Store.
type MemoryStore struct {
	mu        sync.RWMutex
	orders    map[string]Order
	byInvoice map[string]string // invoice id -> order id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[string]Order),
		byInvoice: make(map[string]string),
	}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		orderID, found := m.byInvoice[id]
		if !found {
			return nil, ErrNotFound
		}
		o = m.orders[orderID]
	}
	return &o, nil
}

func (m *MemoryStore) Set(ctx context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.orders[order.OrderID]; ok && prev.InvoiceID != "" && prev.InvoiceID != order.InvoiceID {
		delete(m.byInvoice, prev.InvoiceID)
	}
	m.orders[order.OrderID] = *order
	if order.InvoiceID != "" {
		m.byInvoice[order.InvoiceID] = order.OrderID
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	delete(m.orders, orderID)
	if o.InvoiceID != "" {
		delete(m.byInvoice, o.InvoiceID)
	}
	return nil
}

// Len returns the number of cached orders.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}

func (m *MemoryStore) Close() error {
	return nil
}
