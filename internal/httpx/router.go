package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/caddydash/lifecycle/internal/churn"
	"github.com/caddydash/lifecycle/internal/cohort"
	"github.com/caddydash/lifecycle/internal/config"
	"github.com/caddydash/lifecycle/internal/metrics"
	"github.com/caddydash/lifecycle/internal/models"
	"github.com/caddydash/lifecycle/internal/pipeline"
	"github.com/caddydash/lifecycle/internal/profile"
	"github.com/caddydash/lifecycle/internal/rfm"
	"github.com/caddydash/lifecycle/internal/snapshot"
	"github.com/caddydash/lifecycle/internal/store"
	"github.com/caddydash/lifecycle/internal/utils"
)

const cohortsPerPage = 10

type handlers struct {
	log *slog.Logger
	pl  *pipeline.Pipeline
	st  *store.MemoryStore
	m   *metrics.Metrics
	cfg config.Config
}

func NewRouter(log *slog.Logger, pl *pipeline.Pipeline, st *store.MemoryStore,
	m *metrics.Metrics, cfg config.Config, reg *prometheus.Registry) http.Handler {

	h := &handlers{log: log, pl: pl, st: st, m: m, cfg: cfg}

	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))
	mux.Use(cors.AllowAll().Handler)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !st.Ready() {
			http.Error(w, "no artifacts published yet", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.Post("/refresh/run", h.refreshRun)
	mux.Get("/cohorts", h.cohorts)
	mux.Get("/customers/{name}/profile", h.customerProfile)
	mux.Get("/customers/{name}/churn", h.customerChurn)
	mux.Get("/segments/distribution", h.segmentDistribution)
	mux.Get("/rfm/export", h.rfmExport)

	return mux
}

func (h *handlers) refreshRun(w http.ResponseWriter, r *http.Request) {
	set, err := h.pl.Refresh(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"run_id":    set.RunID.String(),
		"version":   set.Version,
		"customers": len(set.Features),
		"orders":    len(set.Orders),
	})
}

func (h *handlers) cohorts(w http.ResponseWriter, r *http.Request) {
	set, err := h.st.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}

	from, to, err := h.cohortWindow(r, set)
	if err != nil {
		h.writeError(w, err)
		return
	}
	res, err := cohort.Build(set.Orders, from, to, h.cfg.Tunables.GrossMargin)
	if err != nil {
		h.writeError(w, err)
		return
	}

	page := atoiDef(r.URL.Query().Get("page"), 1)
	if page < 1 {
		page = 1
	}
	totalPages := (len(res.Metrics) + cohortsPerPage - 1) / cohortsPerPage
	start := (page - 1) * cohortsPerPage
	end := start + cohortsPerPage
	if start > len(res.Metrics) {
		start = len(res.Metrics)
	}
	if end > len(res.Metrics) {
		end = len(res.Metrics)
	}

	writeJSON(w, map[string]any{
		"cohorts":        res.Cohorts,
		"revenue_matrix": res.RevenueMatrix,
		"month_labels":   res.MonthLabels,
		"cohort_metrics": res.Metrics[start:end],
		"total_pages":    totalPages,
		"current_page":   page,
		"export_data":    res.Customers,
	})
}

// cohortWindow resolves start_date/end_date/date_range_option the way the
// dashboard always has: explicit dates win, "all" spans the full ledger, and
// the default is the trailing window ending at the reference instant.
func (h *handlers) cohortWindow(r *http.Request, set *store.ArtifactSet) (time.Time, time.Time, error) {
	q := r.URL.Query()
	startStr, endStr := q.Get("start_date"), q.Get("end_date")
	if startStr != "" && endStr != "" {
		from, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, invalidDate(startStr)
		}
		to, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return time.Time{}, time.Time{}, invalidDate(endStr)
		}
		return from.UTC(), to.UTC().Add(24*time.Hour - time.Nanosecond), nil
	}
	if q.Get("date_range_option") == "all" {
		earliest := set.Reference
		for _, o := range set.Orders {
			if o.OrderDate.Before(earliest) {
				earliest = o.OrderDate
			}
		}
		return earliest, set.Reference, nil
	}
	from := set.Reference.AddDate(0, 0, -h.cfg.Tunables.CohortWindowDays)
	return from, set.Reference, nil
}

func (h *handlers) customerProfile(w http.ResponseWriter, r *http.Request) {
	set, err := h.st.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	name := chi.URLParam(r, "name")
	p, err := profile.Build(name, set.Orders, set.Segments, set.Model, set.Scaler, set.Reference)
	if err != nil {
		if h.m != nil {
			h.m.ProfileLookups.WithLabelValues("error").Inc()
		}
		h.writeError(w, err)
		return
	}
	if h.m != nil {
		h.m.ProfileLookups.WithLabelValues("success").Inc()
	}
	writeJSON(w, p)
}

func (h *handlers) customerChurn(w http.ResponseWriter, r *http.Request) {
	set, err := h.st.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	name := chi.URLParam(r, "name")
	var feat *models.CustomerFeature
	for i := range set.Features {
		if set.Features[i].CustomerName == name {
			feat = &set.Features[i]
			break
		}
	}
	if feat == nil {
		h.writeError(w, models.ErrNotFound)
		return
	}
	prob, err := set.Model.Score(set.Scaler, churn.Vector(*feat))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"customer_name": name, "churn_probability": prob})
}

func (h *handlers) segmentDistribution(w http.ResponseWriter, r *http.Request) {
	set, err := h.st.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	dist, err := rfm.Distribution(set.Segments, r.URL.Query().Get("segment"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"total_customers": len(set.Segments), "segments": dist})
}

func (h *handlers) rfmExport(w http.ResponseWriter, r *http.Request) {
	set, err := h.st.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="rfm_features_with_segments.csv"`)
	if err := snapshot.Encode(w, set.Features, set.Segments); err != nil {
		h.log.Error("rfm export", slog.String("err", err.Error()))
	}
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrNoData):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrMissingArtifact):
		status = http.StatusServiceUnavailable
	case errors.Is(err, models.ErrRefreshInFlight):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", slog.String("err", err.Error()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func invalidDate(s string) error {
	return fmt.Errorf("%w: bad date %q, use YYYY-MM-DD", models.ErrInvalidInput, s)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
