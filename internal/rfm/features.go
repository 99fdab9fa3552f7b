// Package rfm builds the per-customer recency/frequency/monetary features and
// scores them into population-relative segments.
package rfm

import (
	"sort"
	"time"

	"github.com/caddydash/lifecycle/internal/models"
)

// BuildFeatures aggregates normalized orders into one CustomerFeature per
// distinct customer name, as of the reference instant. Output is sorted by
// customer name so repeated runs over the same ledger are byte-identical.
func BuildFeatures(orders []models.Order, reference time.Time) ([]models.CustomerFeature, error) {
	if len(orders) == 0 {
		return nil, models.ErrNoData
	}
	reference = reference.UTC()

	byCustomer := make(map[string][]models.Order)
	for _, o := range orders {
		byCustomer[o.CustomerName] = append(byCustomer[o.CustomerName], o)
	}

	out := make([]models.CustomerFeature, 0, len(byCustomer))
	for name, rows := range byCustomer {
		sort.Slice(rows, func(i, j int) bool { return rows[i].OrderDate.Before(rows[j].OrderDate) })

		f := models.CustomerFeature{
			CustomerName:  name,
			CustomerEmail: rows[len(rows)-1].CustomerEmail, // most recent email, display only
			LastOrderDate: rows[len(rows)-1].OrderDate,
			Frequency:     len(rows),
		}
		for _, o := range rows {
			f.Monetary += o.OrderTotal
		}
		f.Recency = reference.Sub(f.LastOrderDate).Hours() / 24
		f.AvgDaysBetweenOrders = avgGapDays(rows)
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CustomerName < out[j].CustomerName })
	return out, nil
}

// avgGapDays is the mean of consecutive order-date deltas in fractional days.
// A single order has no gaps; that is 0, not undefined.
func avgGapDays(rows []models.Order) float64 {
	if len(rows) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(rows); i++ {
		sum += rows[i].OrderDate.Sub(rows[i-1].OrderDate).Hours() / 24
	}
	return sum / float64(len(rows)-1)
}
