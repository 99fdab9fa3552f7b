// Package source reads the external order ledger. The ledger is treated as a
// read-only collaborator: all records, or records filtered by date range.
package source

import (
	"context"
	"time"

	"github.com/caddydash/lifecycle/internal/models"
)

type Source interface {
	All(ctx context.Context) ([]models.Order, error)
	Between(ctx context.Context, from, to time.Time) ([]models.Order, error)
}

// Static is an in-memory Source, used by tests and the refresh CLI dry-run.
type Static struct{ Orders []models.Order }

func (s Static) All(ctx context.Context) ([]models.Order, error) {
	out := make([]models.Order, len(s.Orders))
	copy(out, s.Orders)
	return out, nil
}

func (s Static) Between(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	var out []models.Order
	for _, o := range s.Orders {
		if !o.OrderDate.Before(from) && !o.OrderDate.After(to) {
			out = append(out, o)
		}
	}
	return out, nil
}
