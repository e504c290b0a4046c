package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// :memory: databases are per-connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			invoice_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			amount TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			paid_at DATETIME
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_orders_invoice_id ON orders (invoice_id)`)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_id, status, amount, currency, created_at, updated_at, paid_at
		FROM orders WHERE id = ? OR (invoice_id = ? AND invoice_id != '')
		ORDER BY id = ? DESC
		LIMIT 1
	`, id, id, id)

	var o Order
	var paidAt sql.NullTime
	err := row.Scan(&o.OrderID, &o.InvoiceID, &o.Status, &o.Amount, &o.Currency, &o.CreatedAt, &o.UpdatedAt, &paidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	return &o, nil
}

func (s *SQLiteStore) Set(ctx context.Context, o *Order) error {
	now := time.Now().UTC()
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := o.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	var paidAt any
	if o.PaidAt != nil {
		paidAt = o.PaidAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, invoice_id, status, amount, currency, created_at, updated_at, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			invoice_id = excluded.invoice_id,
			status = excluded.status,
			amount = excluded.amount,
			currency = excluded.currency,
			updated_at = excluded.updated_at,
			paid_at = excluded.paid_at
	`, o.OrderID, o.InvoiceID, o.Status, o.Amount, o.Currency, createdAt.UTC(), updatedAt.UTC(), paidAt)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, orderID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, orderID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN status = 'Paid' THEN 1 ELSE 0 END), 0) as paid_count,
			COALESCE(SUM(CASE WHEN status = 'New' THEN 1 ELSE 0 END), 0) as new_count,
			COALESCE(MIN(created_at), '') as oldest,
			COALESCE(MAX(created_at), '') as newest
		FROM orders
	`)

	var oldest, newest string
	if err := row.Scan(&stats.TotalOrders, &stats.PaidOrders, &stats.NewOrders, &oldest, &newest); err != nil {
		return nil, err
	}
	stats.OtherOrders = stats.TotalOrders - stats.PaidOrders - stats.NewOrders
	stats.OldestOrder = parseSQLiteTime(oldest)
	stats.NewestOrder = parseSQLiteTime(newest)

	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(paid_at, 1, 10) as day, COUNT(*)
		FROM orders
		WHERE paid_at IS NOT NULL AND paid_at >= ?
		GROUP BY day
		ORDER BY day DESC
	`, time.Now().UTC().AddDate(0, 0, -14))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ds DailyStat
		if err := rows.Scan(&ds.Date, &ds.PaidOrders); err != nil {
			return nil, err
		}
		stats.DailyPaid = append(stats.DailyPaid, ds)
	}
	return stats, rows.Err()
}

func parseSQLiteTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02T15:04:05Z",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
