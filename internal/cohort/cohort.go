// Package cohort groups customers by first-purchase month and builds the
// month-aligned revenue matrix with derived LTV metrics.
package cohort

import (
	"fmt"
	"sort"
	"time"

	"github.com/caddydash/lifecycle/internal/models"
)

// maxMonths is the fixed horizon of the revenue vector: slot 0 holds the
// cohort size, slots 1..maxMonths hold revenue by month offset.
const maxMonths = 12

// Build computes the cohort analysis for orders inside [from, to]. The cohort
// of a customer is the calendar month of their first-ever order across the
// full history, even when that month predates the window; only the revenue is
// window-restricted. The window start is clamped to the first of its month.
func Build(all []models.Order, from, to time.Time, grossMargin float64) (*models.CohortResult, error) {
	if from.After(to) {
		return nil, fmt.Errorf("%w: start date after end date", models.ErrInvalidInput)
	}
	from = monthStart(from)

	// Globally first order per customer.
	firstOrder := make(map[string]time.Time)
	for _, o := range all {
		if t, ok := firstOrder[o.CustomerName]; !ok || o.OrderDate.Before(t) {
			firstOrder[o.CustomerName] = o.OrderDate
		}
	}

	var windowed []models.Order
	for _, o := range all {
		if !o.OrderDate.Before(from) && !o.OrderDate.After(to) {
			windowed = append(windowed, o)
		}
	}
	if len(windowed) == 0 {
		return nil, fmt.Errorf("%w: no orders in window", models.ErrNoData)
	}

	type agg struct {
		month     time.Time
		customers map[string]struct{}
		revenue   [maxMonths + 1]float64 // slot 0 replaced by size later
		total     float64
		orders    int
	}
	byCohort := make(map[time.Time]*agg)
	overallCustomers := make(map[string]struct{})
	var overallRevenue [maxMonths + 1]float64

	for _, o := range windowed {
		cm := monthStart(firstOrder[o.CustomerName])
		a, ok := byCohort[cm]
		if !ok {
			a = &agg{month: cm, customers: make(map[string]struct{})}
			byCohort[cm] = a
		}
		a.customers[o.CustomerName] = struct{}{}
		a.total += o.OrderTotal
		a.orders++
		overallCustomers[o.CustomerName] = struct{}{}

		off := monthOffset(cm, monthStart(o.OrderDate))
		if off >= 1 && off <= maxMonths {
			a.revenue[off] += o.OrderTotal
			overallRevenue[off] += o.OrderTotal
		}
	}

	months := make([]time.Time, 0, len(byCohort))
	for m := range byCohort {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	res := &models.CohortResult{
		Cohorts:   make([]string, 0, len(months)+1),
		Metrics:   make([]models.CohortMetrics, 0, len(months)),
		Customers: make(map[string][]string, len(months)),
	}

	overall := make([]float64, maxMonths+1)
	overall[0] = float64(len(overallCustomers))
	for i := 1; i <= maxMonths; i++ {
		overall[i] = round2(overallRevenue[i])
	}
	res.Cohorts = append(res.Cohorts, "Overall")
	res.RevenueMatrix = append(res.RevenueMatrix, overall)

	for _, m := range months {
		a := byCohort[m]
		label := m.Format("Jan 2006")
		size := len(a.customers)

		row := make([]float64, maxMonths+1)
		row[0] = float64(size)
		for i := 1; i <= maxMonths; i++ {
			row[i] = round2(a.revenue[i])
		}
		res.Cohorts = append(res.Cohorts, label)
		res.RevenueMatrix = append(res.RevenueMatrix, row)

		freq := float64(a.orders) / float64(size)
		aov := 0.0
		if a.orders > 0 {
			aov = a.total / float64(a.orders)
		}
		res.Metrics = append(res.Metrics, models.CohortMetrics{
			Cohort:             label,
			CohortSize:         size,
			PurchaseFrequency:  round2(freq),
			AOV:                round2(aov),
			RevenuePerCustomer: round2(a.total / float64(size)),
			LTV:                round2(aov * freq * grossMargin),
		})

		names := make([]string, 0, size)
		for n := range a.customers {
			names = append(names, n)
		}
		sort.Strings(names)
		res.Customers[label] = names
	}

	for i := 1; i <= maxMonths; i++ {
		res.MonthLabels = append(res.MonthLabels, fmt.Sprintf("After %d Months", i))
	}
	return res, nil
}

// monthOffset is the day difference between the two month starts, floor
// divided by 30. This approximates calendar-month arithmetic and diverges
// near month-length boundaries; kept as-is for parity with historical cohort
// output.
func monthOffset(cohortMonth, orderMonth time.Time) int {
	days := int(orderMonth.Sub(cohortMonth).Hours() / 24)
	if days < 0 {
		return -1
	}
	return days / 30
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func round2(f float64) float64 { return float64(int64(f*100+0.5)) / 100 }
