package store

import (
	"context"
	"testing"
	"time"
)

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		o := &Order{
			OrderID:   "order_1",
			InvoiceID: "inv_1",
			Status:    "New",
			Amount:    "10",
			Currency:  "USD",
			CreatedAt: time.Now(),
		}
		if err := store.Set(ctx, o); err != nil {
			t.Fatalf("failed to set: %v", err)
		}

		got, err := store.Get(ctx, "order_1")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.OrderID != o.OrderID || got.InvoiceID != o.InvoiceID || got.Status != o.Status {
			t.Errorf("got %+v, want %+v", got, o)
		}
		if got.Amount != "10" || got.Currency != "USD" {
			t.Errorf("unexpected amount/currency %s %s", got.Amount, got.Currency)
		}
		if got.PaidAt != nil {
			t.Error("expected PaidAt to be nil")
		}
	})

	t.Run("GetByInvoiceID", func(t *testing.T) {
		got, err := store.Get(ctx, "inv_1")
		if err != nil {
			t.Fatalf("failed to get by invoice id: %v", err)
		}
		if got.OrderID != "order_1" {
			t.Errorf("expected order_1, got %s", got.OrderID)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("EmptyInvoiceIDDoesNotMatch", func(t *testing.T) {
		store.Set(ctx, &Order{OrderID: "order_no_invoice", Status: "New"})
		_, err := store.Get(ctx, "")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for empty id, got %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		paidAt := time.Now()
		if err := store.Set(ctx, &Order{
			OrderID:   "order_1",
			InvoiceID: "inv_1",
			Status:    "Paid",
			Amount:    "10",
			Currency:  "USD",
			PaidAt:    &paidAt,
		}); err != nil {
			t.Fatalf("failed to overwrite: %v", err)
		}

		got, _ := store.Get(ctx, "order_1")
		if got.Status != "Paid" {
			t.Errorf("expected Paid, got %s", got.Status)
		}
		if got.PaidAt == nil || got.PaidAt.Unix() != paidAt.Unix() {
			t.Errorf("expected PaidAt %v, got %v", paidAt, got.PaidAt)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store.Set(ctx, &Order{OrderID: "order_del", InvoiceID: "inv_del", Status: "New"})

		if err := store.Delete(ctx, "order_del"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if _, err := store.Get(ctx, "inv_del"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := store.Delete(ctx, "order_del"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound deleting twice, got %v", err)
		}
	})
}

func TestSQLiteStore_GetStats(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	t.Run("empty database", func(t *testing.T) {
		stats, err := store.GetStats(ctx)
		if err != nil {
			t.Fatalf("GetStats failed: %v", err)
		}
		if stats.TotalOrders != 0 {
			t.Errorf("expected 0 total orders, got %d", stats.TotalOrders)
		}
		if len(stats.DailyPaid) != 0 {
			t.Errorf("expected no daily stats, got %v", stats.DailyPaid)
		}
	})

	t.Run("with orders", func(t *testing.T) {
		paidAt := time.Now()
		store.Set(ctx, &Order{OrderID: "stats-paid", InvoiceID: "inv-a", Status: "Paid", CreatedAt: time.Now().Add(-time.Hour), PaidAt: &paidAt})
		store.Set(ctx, &Order{OrderID: "stats-new", InvoiceID: "inv-b", Status: "New", CreatedAt: time.Now()})
		store.Set(ctx, &Order{OrderID: "stats-expired", InvoiceID: "inv-c", Status: "Expired", CreatedAt: time.Now()})

		stats, err := store.GetStats(ctx)
		if err != nil {
			t.Fatalf("GetStats failed: %v", err)
		}
		if stats.TotalOrders != 3 {
			t.Errorf("expected 3 total orders, got %d", stats.TotalOrders)
		}
		if stats.PaidOrders != 1 {
			t.Errorf("expected 1 paid order, got %d", stats.PaidOrders)
		}
		if stats.NewOrders != 1 {
			t.Errorf("expected 1 new order, got %d", stats.NewOrders)
		}
		if stats.OtherOrders != 1 {
			t.Errorf("expected 1 other order, got %d", stats.OtherOrders)
		}
		if stats.OldestOrder.IsZero() || stats.NewestOrder.IsZero() {
			t.Error("expected oldest/newest to be set")
		}
		if len(stats.DailyPaid) != 1 || stats.DailyPaid[0].PaidOrders != 1 {
			t.Errorf("expected one day with one paid order, got %v", stats.DailyPaid)
		}
	})
}
