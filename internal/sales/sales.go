// Package sales defines the analytics query port the chat tools are built
// on, plus two implementations: an in-memory store used as the reference
// implementation in tests and a SQLite-backed store used by the binary.
package sales

import (
	"context"
	"math"
	"time"
)

// Sale is a single completed transaction.
type Sale struct {
	ID            int64
	SellerID      int64
	Product       string
	Amount        float64
	OccurredAt    time.Time
	PaymentMethod string
	Status        string
}

// Statistics aggregates the sales inside a period. The zero value describes
// an empty period: no count, no revenue, no best product, zero LastSaleAt.
type Statistics struct {
	TotalCount    int64
	TotalRevenue  float64
	AverageTicket float64
	BestProduct   string
	LastSaleAt    time.Time
}

// PeriodComparison holds the statistics of two periods and the revenue
// change between them. ChangePercentage is 0 when the previous period had no
// revenue; otherwise it is the percent change rounded to two decimals.
type PeriodComparison struct {
	Current          Statistics
	Previous         Statistics
	ChangePercentage float64
}

// Queries is the analytics query port. Range boundaries are inclusive on
// both ends. Implementations must be safe for concurrent use and must hold
// no per-session state.
//
// Best-product ties are broken by the first group encountered (insertion
// order in memory, lowest rowid in SQLite). The order is stable but carries
// no meaning.
type Queries interface {
	StatisticsInRange(ctx context.Context, start, end time.Time) (Statistics, error)
	BestProductInRange(ctx context.Context, start, end time.Time) (string, error)
	Compare(ctx context.Context, currentStart, currentEnd, previousStart, previousEnd time.Time) (PeriodComparison, error)
}

// compare derives a PeriodComparison from two already-computed statistics.
func compare(current, previous Statistics) PeriodComparison {
	var change float64
	if previous.TotalRevenue > 0 {
		change = round2((current.TotalRevenue - previous.TotalRevenue) / previous.TotalRevenue * 100)
	}
	return PeriodComparison{Current: current, Previous: previous, ChangePercentage: change}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
