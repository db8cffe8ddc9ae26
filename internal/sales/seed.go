package sales

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Seed data for demos: one seller, thirty days of sales over a small product
// catalog, weekday-weighted volume. The RNG seed is fixed so repeated runs
// produce identical figures.

const seedSellerID = 1

var seedProducts = []string{
	"Maquininha Smart",
	"Maquininha Pro",
	"Maquininha Plus",
	"Link de Pagamento",
	"QR Code Pix",
}

var seedPaymentMethods = []string{"credit", "debit", "pix"}

// Seed populates the store with mock sales for the 30 days up to today. It
// is a no-op when the store already has data.
func (s *SQLiteStore) Seed(ctx context.Context) error {
	n, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, sale := range GenerateMockSales(time.Now()) {
		if err := s.Add(ctx, sale); err != nil {
			return err
		}
	}
	return nil
}

// GenerateMockSales builds the deterministic demo data set relative to now.
func GenerateMockSales(now time.Time) []Sale {
	rng := rand.New(rand.NewSource(42))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var sales []Sale
	for daysAgo := 0; daysAgo < 30; daysAgo++ {
		day := today.AddDate(0, 0, -daysAgo)

		perDay := 3 + rng.Intn(5)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			perDay = 1 + rng.Intn(3)
		}

		for i := 0; i < perDay; i++ {
			product := seedProducts[rng.Intn(len(seedProducts))]
			var amount float64
			switch product {
			case "Maquininha Smart":
				amount = 50 + rng.Float64()*150
			case "Maquininha Pro":
				amount = 100 + rng.Float64()*200
			case "Maquininha Plus":
				amount = 80 + rng.Float64()*170
			case "Link de Pagamento":
				amount = 20 + rng.Float64()*500
			default: // QR Code Pix
				amount = 10 + rng.Float64()*300
			}

			sales = append(sales, Sale{
				SellerID:      seedSellerID,
				Product:       product,
				Amount:        math.Round(amount*100) / 100,
				OccurredAt:    day.Add(time.Duration(8+rng.Intn(12)) * time.Hour).Add(time.Duration(rng.Intn(60)) * time.Minute),
				PaymentMethod: seedPaymentMethods[rng.Intn(len(seedPaymentMethods))],
				Status:        "completed",
			})
		}
	}
	return sales
}
