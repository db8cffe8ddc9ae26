package sales

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore is the SQLite-backed implementation of Queries. Timestamps are
// stored as unix seconds so range comparisons stay numeric.
type SQLiteStore struct {
	db *sql.DB
}

var _ Queries = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open sales db: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seller_id INTEGER NOT NULL,
		product TEXT NOT NULL,
		amount REAL NOT NULL,
		occurred_at INTEGER NOT NULL,
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'completed'
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sales schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sales_occurred_at ON sales(occurred_at);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sales index: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add inserts a sale.
func (s *SQLiteStore) Add(ctx context.Context, sale Sale) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sales (seller_id, product, amount, occurred_at, payment_method, status)
		 VALUES (?,?,?,?,?,?);`,
		sale.SellerID, sale.Product, sale.Amount, sale.OccurredAt.Unix(), sale.PaymentMethod, sale.Status)
	return err
}

// Count returns the number of recorded sales.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales;`).Scan(&n)
	return n, err
}

// StatisticsInRange aggregates the sales with occurred_at in [start, end].
func (s *SQLiteStore) StatisticsInRange(ctx context.Context, start, end time.Time) (Statistics, error) {
	var (
		count   int64
		revenue sql.NullFloat64
		last    sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(amount), MAX(occurred_at)
		 FROM sales WHERE occurred_at BETWEEN ? AND ?;`,
		start.Unix(), end.Unix()).Scan(&count, &revenue, &last)
	if err != nil {
		return Statistics{}, fmt.Errorf("aggregate sales: %w", err)
	}
	if count == 0 {
		return Statistics{}, nil
	}

	best, err := s.BestProductInRange(ctx, start, end)
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{
		TotalCount:   count,
		TotalRevenue: round2(revenue.Float64),
		BestProduct:  best,
	}
	stats.AverageTicket = round2(stats.TotalRevenue / float64(count))
	if last.Valid {
		stats.LastSaleAt = time.Unix(last.Int64, 0)
	}
	return stats, nil
}

// BestProductInRange returns the product with the most sales in [start, end].
// Ties go to the group with the lowest first rowid.
func (s *SQLiteStore) BestProductInRange(ctx context.Context, start, end time.Time) (string, error) {
	var product string
	err := s.db.QueryRowContext(ctx,
		`SELECT product FROM sales
		 WHERE occurred_at BETWEEN ? AND ?
		 GROUP BY product
		 ORDER BY COUNT(*) DESC, MIN(id) ASC
		 LIMIT 1;`,
		start.Unix(), end.Unix()).Scan(&product)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("best product: %w", err)
	}
	return product, nil
}

// Compare aggregates both periods and computes the revenue change.
func (s *SQLiteStore) Compare(ctx context.Context, currentStart, currentEnd, previousStart, previousEnd time.Time) (PeriodComparison, error) {
	current, err := s.StatisticsInRange(ctx, currentStart, currentEnd)
	if err != nil {
		return PeriodComparison{}, err
	}
	previous, err := s.StatisticsInRange(ctx, previousStart, previousEnd)
	if err != nil {
		return PeriodComparison{}, err
	}
	return compare(current, previous), nil
}
