// Package profile builds the on-demand per-customer lifecycle view from the
// order history plus the published segment snapshot and churn model.
package profile

import (
	"fmt"
	"sort"
	"time"

	"github.com/caddydash/lifecycle/internal/churn"
	"github.com/caddydash/lifecycle/internal/models"
	"github.com/caddydash/lifecycle/internal/rfm"
)

const (
	daysPerMonth = 30.42
	dateLayout   = "02 Jan 2006"
)

// ltvWindows are the cumulative bucket boundaries in days from the first
// order. Each bucket includes everything before it.
var ltvWindows = [5]int{30, 90, 365, 730, 1825}

// Build assembles the profile for one customer. The segment comes from the
// persisted snapshot, the churn probability is scored live against the
// persisted model, and the top-decile flags are ranked against the whole
// population in orders.
func Build(name string, orders []models.Order, segments map[string]models.SegmentLabel,
	model *churn.Model, scaler *churn.Scaler, reference time.Time) (*models.CustomerProfile, error) {

	if model == nil || scaler == nil {
		return nil, fmt.Errorf("profile: %w: churn model", models.ErrMissingArtifact)
	}

	var rows []models.Order
	for _, o := range orders {
		if o.CustomerName == name {
			rows = append(rows, o)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("profile %q: %w", name, models.ErrNotFound)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OrderDate.Before(rows[j].OrderDate) })

	feats, err := rfm.BuildFeatures(rows, reference)
	if err != nil {
		return nil, err
	}
	feat := feats[0]

	first := dateOf(rows[0].OrderDate)
	last := dateOf(rows[len(rows)-1].OrderDate)
	lifespanMonths := round2(float64(daysBetween(first, last)) / daysPerMonth)

	avgDays := round2(feat.AvgDaysBetweenOrders)
	estNext := last
	if avgDays > 0 {
		estNext = last.Add(time.Duration(avgDays * 24 * float64(time.Hour)))
	}

	p := &models.CustomerProfile{
		CustomerName:         name,
		CustomerEmail:        feat.CustomerEmail,
		FirstOrderDate:       first.Format(dateLayout),
		LastOrderDate:        last.Format(dateLayout),
		LTV:                  feat.Monetary,
		LifetimeMonths:       lifespanMonths,
		AvgDaysBetweenOrders: avgDays,
		EstNextOrderDate:     estNext.Format(dateLayout),
		LTVOverTime:          ltvOverTime(rows, first),
	}

	ltvThreshold, lifeThreshold := decileThresholds(orders)
	p.IsTop10LTV = feat.Monetary >= ltvThreshold
	p.IsTop10Lifetime = lifespanMonths >= lifeThreshold

	if lbl, ok := segments[name]; ok {
		p.Segment = lbl.Segment
	} else {
		p.Segment = "Unknown"
	}

	prob, err := model.Score(scaler, churn.Vector(feat))
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	p.ChurnRate = round2(prob * 100)

	return p, nil
}

// ltvOverTime sums order totals into strictly cumulative windows measured
// from the first order.
func ltvOverTime(rows []models.Order, first time.Time) models.LTVOverTime {
	var buckets [5]float64
	for _, o := range rows {
		d := daysBetween(first, dateOf(o.OrderDate))
		for i, limit := range ltvWindows {
			if d <= limit {
				buckets[i] += o.OrderTotal
			}
		}
	}
	return models.LTVOverTime{
		Days30: buckets[0],
		Days90: buckets[1],
		Year1:  buckets[2],
		Years2: buckets[3],
		Years5: buckets[4],
	}
}

// decileThresholds ranks every customer's LTV and lifespan descending and
// takes the value at rank n/10 (at least rank 1, so populations under 10
// collapse to the single top customer).
func decileThresholds(orders []models.Order) (ltv, lifetime float64) {
	type span struct {
		total       float64
		first, last time.Time
	}
	byName := make(map[string]*span)
	for _, o := range orders {
		s, ok := byName[o.CustomerName]
		if !ok {
			s = &span{first: o.OrderDate, last: o.OrderDate}
			byName[o.CustomerName] = s
		}
		s.total += o.OrderTotal
		if o.OrderDate.Before(s.first) {
			s.first = o.OrderDate
		}
		if o.OrderDate.After(s.last) {
			s.last = o.OrderDate
		}
	}

	ltvs := make([]float64, 0, len(byName))
	lifetimes := make([]float64, 0, len(byName))
	for _, s := range byName {
		ltvs = append(ltvs, s.total)
		lifetimes = append(lifetimes, float64(daysBetween(dateOf(s.first), dateOf(s.last)))/daysPerMonth)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ltvs)))
	sort.Sort(sort.Reverse(sort.Float64Slice(lifetimes)))

	rank := len(ltvs) / 10
	if rank < 1 {
		rank = 1
	}
	return ltvs[rank-1], lifetimes[rank-1]
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func round2(f float64) float64 { return float64(int64(f*100+0.5)) / 100 }
