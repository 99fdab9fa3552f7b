// Package metrics exposes Prometheus instrumentation for the refresh
// pipeline and the query surfaces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RefreshRuns     *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	StageDuration   *prometheus.HistogramVec
	Customers       prometheus.Gauge
	Orders          prometheus.Gauge
	ProfileLookups  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RefreshRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_refresh_runs_total",
			Help: "Refresh runs by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lifecycle_refresh_duration_seconds",
			Help:    "End-to-end refresh duration.",
			Buckets: prometheus.DefBuckets,
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifecycle_refresh_stage_duration_seconds",
			Help:    "Per-stage refresh duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		Customers: f.NewGauge(prometheus.GaugeOpts{
			Name: "lifecycle_customers",
			Help: "Customers in the published feature snapshot.",
		}),
		Orders: f.NewGauge(prometheus.GaugeOpts{
			Name: "lifecycle_orders",
			Help: "Normalized orders in the published snapshot.",
		}),
		ProfileLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_profile_lookups_total",
			Help: "Customer profile lookups by outcome.",
		}, []string{"outcome"}),
	}
}
