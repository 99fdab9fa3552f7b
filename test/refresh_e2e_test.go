package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caddydash/lifecycle/internal/config"
	"github.com/caddydash/lifecycle/internal/httpx"
	"github.com/caddydash/lifecycle/internal/metrics"
	"github.com/caddydash/lifecycle/internal/pipeline"
	"github.com/caddydash/lifecycle/internal/source"
	"github.com/caddydash/lifecycle/internal/store"
)

// ledgerJSON renders the JSON shape the order ledger API serves.
func ledgerJSON() []map[string]any {
	var rows []map[string]any
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("cust%02d", i)
		first := time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC)
		for j, d := range []time.Time{first, first.AddDate(0, 1, 0)} {
			rows = append(rows, map[string]any{
				"order_id":       fmt.Sprintf("%s-%d", name, j+1),
				"order_date":     d.Format(time.RFC3339),
				"order_total":    float64(20 + 10*i + 5*j),
				"customer_name":  name,
				"customer_email": name + "@shop.test",
			})
		}
	}
	return rows
}

// The full path: JSON ledger API -> HTTP source -> refresh pipeline -> query
// endpoints, with nothing stubbed in between.
func TestRefreshEndToEnd(t *testing.T) {
	var hits atomic.Int64
	ledger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ledgerJSON())
	}))
	defer ledger.Close()

	dir := t.TempDir()
	cfg := config.Config{
		SnapshotPath:  filepath.Join(dir, "rfm.csv"),
		ModelPath:     filepath.Join(dir, "model.gob"),
		ScalerPath:    filepath.Join(dir, "scaler.gob"),
		ReferenceTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Tunables:      config.DefaultTunables(),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	st := store.NewMemoryStore()
	src := source.NewHTTPSource(5*time.Second, ledger.URL)
	pl := pipeline.New(src, st, log, m, cfg)

	api := httptest.NewServer(httpx.NewRouter(log, pl, st, m, cfg, reg))
	defer api.Close()

	resp, err := api.Client().Post(api.URL+"/refresh/run", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d: %s", resp.StatusCode, body)
	}
	if hits.Load() == 0 {
		t.Fatal("the ledger API was never queried")
	}

	resp, err = api.Client().Get(api.URL + "/customers/cust05/profile")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile status %d", resp.StatusCode)
	}
	var profile struct {
		CustomerName string  `json:"customer_name"`
		LTV          float64 `json:"ltv"`
		Segment      string  `json:"rfm_segment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatal(err)
	}
	if profile.CustomerName != "cust05" || profile.LTV <= 0 || profile.Segment == "" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestHTTPSourceRetriesTransientErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ledgerJSON())
	}))
	defer srv.Close()

	src := source.NewHTTPSource(5*time.Second, srv.URL)
	orders, err := src.All(context.Background())
	if err != nil {
		t.Fatalf("expected the third attempt to succeed: %v", err)
	}
	if len(orders) != 24 {
		t.Fatalf("orders %d, want 24", len(orders))
	}
	if hits.Load() != 3 {
		t.Fatalf("attempts %d, want 3", hits.Load())
	}
}
