// Package ingest turns raw ledger records into the cleaned order set every
// downstream engine consumes.
package ingest

import (
	"log/slog"

	"github.com/caddydash/lifecycle/internal/models"
)

const (
	unknownName  = "Unknown"
	unknownEmail = "unknown@example.com"
)

// Normalize cleans a raw order collection. Steps are order-sensitive:
// dedupe by order ID keeping the first occurrence, fill sentinel name/email,
// zero missing totals, force timestamps to UTC, then min-max normalize the
// totals. An empty input is a NoData condition, not a crash.
func Normalize(raw []models.Order, log *slog.Logger) ([]models.Order, error) {
	if len(raw) == 0 {
		return nil, models.ErrNoData
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]models.Order, 0, len(raw))
	for _, o := range raw {
		if _, dup := seen[o.OrderID]; dup {
			continue
		}
		seen[o.OrderID] = struct{}{}

		if o.CustomerName == "" {
			o.CustomerName = unknownName
		}
		if o.CustomerEmail == "" {
			o.CustomerEmail = unknownEmail
		}
		if o.OrderTotal < 0 {
			o.OrderTotal = 0
		}
		o.OrderDate = o.OrderDate.UTC()
		out = append(out, o)
	}

	normalizeTotals(out)

	if log != nil {
		log.Info("ingest complete",
			slog.Int("raw", len(raw)),
			slog.Int("kept", len(out)),
			slog.Int("dropped_duplicates", len(raw)-len(out)))
	}
	return out, nil
}

// normalizeTotals writes the min-max scaled total onto each row. When every
// total is equal the scaled value is 0 for all rows.
func normalizeTotals(orders []models.Order) {
	if len(orders) == 0 {
		return
	}
	lo, hi := orders[0].OrderTotal, orders[0].OrderTotal
	for _, o := range orders[1:] {
		if o.OrderTotal < lo {
			lo = o.OrderTotal
		}
		if o.OrderTotal > hi {
			hi = o.OrderTotal
		}
	}
	if hi == lo {
		for i := range orders {
			orders[i].NormalizedTotal = 0
		}
		return
	}
	for i := range orders {
		orders[i].NormalizedTotal = (orders[i].OrderTotal - lo) / (hi - lo)
	}
}
