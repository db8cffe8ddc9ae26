package sales

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the reference in-memory implementation of Queries. It keeps
// sales in insertion order, which is what gives it its documented tie-break.
type MemoryStore struct {
	mu    sync.RWMutex
	sales []Sale
}

var _ Queries = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add records a sale.
func (s *MemoryStore) Add(sale Sale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale.ID = int64(len(s.sales) + 1)
	s.sales = append(s.sales, sale)
}

// StatisticsInRange aggregates the sales with OccurredAt in [start, end].
func (s *MemoryStore) StatisticsInRange(_ context.Context, start, end time.Time) (Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Statistics
	counts := make(map[string]int64)
	var order []string

	for _, sale := range s.sales {
		if sale.OccurredAt.Before(start) || sale.OccurredAt.After(end) {
			continue
		}
		stats.TotalCount++
		stats.TotalRevenue += sale.Amount
		if sale.OccurredAt.After(stats.LastSaleAt) {
			stats.LastSaleAt = sale.OccurredAt
		}
		if _, seen := counts[sale.Product]; !seen {
			order = append(order, sale.Product)
		}
		counts[sale.Product]++
	}

	if stats.TotalCount == 0 {
		return Statistics{}, nil
	}

	stats.TotalRevenue = round2(stats.TotalRevenue)
	stats.AverageTicket = round2(stats.TotalRevenue / float64(stats.TotalCount))

	var best string
	var bestCount int64
	for _, product := range order {
		if counts[product] > bestCount {
			best, bestCount = product, counts[product]
		}
	}
	stats.BestProduct = best

	return stats, nil
}

// BestProductInRange returns the product with the most sales in [start, end],
// or "" when the period is empty.
func (s *MemoryStore) BestProductInRange(ctx context.Context, start, end time.Time) (string, error) {
	stats, err := s.StatisticsInRange(ctx, start, end)
	if err != nil {
		return "", err
	}
	return stats.BestProduct, nil
}

// Compare aggregates both periods and computes the revenue change.
func (s *MemoryStore) Compare(ctx context.Context, currentStart, currentEnd, previousStart, previousEnd time.Time) (PeriodComparison, error) {
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
