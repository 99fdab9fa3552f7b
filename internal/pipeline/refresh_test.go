package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caddydash/lifecycle/internal/config"
	"github.com/caddydash/lifecycle/internal/models"
	"github.com/caddydash/lifecycle/internal/source"
	"github.com/caddydash/lifecycle/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		SnapshotPath:  filepath.Join(dir, "rfm.csv"),
		ModelPath:     filepath.Join(dir, "model.gob"),
		ScalerPath:    filepath.Join(dir, "scaler.gob"),
		ReferenceTime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Tunables:      config.DefaultTunables(),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ledger() []models.Order {
	var orders []models.Order
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("cust%02d", i)
		first := time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC)
		orders = append(orders,
			models.Order{OrderID: name + "-1", CustomerName: name, CustomerEmail: name + "@shop.test", OrderTotal: float64(20 + 10*i), OrderDate: first},
			models.Order{OrderID: name + "-2", CustomerName: name, CustomerEmail: name + "@shop.test", OrderTotal: float64(15 + 5*i), OrderDate: first.AddDate(0, 1, 0)},
		)
	}
	return orders
}

func TestRefreshPublishesCompleteSet(t *testing.T) {
	cfg := testConfig(t)
	st := store.NewMemoryStore()
	pl := New(source.Static{Orders: ledger()}, st, quietLogger(), nil, cfg)

	set, err := pl.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if set.Version != 1 {
		t.Fatalf("version %d, want 1", set.Version)
	}
	if len(set.Features) != 12 {
		t.Fatalf("features %d, want 12", len(set.Features))
	}
	if len(set.Segments) != 12 || set.Model == nil || set.Scaler == nil || set.Cohorts == nil {
		t.Fatal("published set incomplete")
	}
	for _, p := range []string{cfg.SnapshotPath, cfg.ModelPath, cfg.ScalerPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("artifact %s not persisted: %v", p, err)
		}
	}
}

func TestRefreshIsIdempotentOnUnchangedLedger(t *testing.T) {
	cfg := testConfig(t)
	st := store.NewMemoryStore()
	pl := New(source.Static{Orders: ledger()}, st, quietLogger(), nil, cfg)

	if _, err := pl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	first, err := os.ReadFile(cfg.SnapshotPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	second, err := os.ReadFile(cfg.SnapshotPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatal("snapshots differ across refreshes over an unchanged ledger")
	}
}

func TestRefreshEmptyLedgerIsNoData(t *testing.T) {
	cfg := testConfig(t)
	st := store.NewMemoryStore()
	pl := New(source.Static{}, st, quietLogger(), nil, cfg)

	_, err := pl.Refresh(context.Background())
	if !errors.Is(err, models.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if st.Ready() {
		t.Fatal("nothing must be published for an empty ledger")
	}
}

type failingSource struct{}

func (failingSource) All(ctx context.Context) ([]models.Order, error) {
	return nil, errors.New("ledger unavailable")
}
func (failingSource) Between(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	return nil, errors.New("ledger unavailable")
}

func TestFailedRefreshKeepsPreviousArtifacts(t *testing.T) {
	cfg := testConfig(t)
	st := store.NewMemoryStore()
	pl := New(source.Static{Orders: ledger()}, st, quietLogger(), nil, cfg)
	if _, err := pl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	broken := New(failingSource{}, st, quietLogger(), nil, cfg)
	if _, err := broken.Refresh(context.Background()); err == nil {
		t.Fatal("expected a caller-visible failure")
	}
	cur, err := st.Current()
	if err != nil {
		t.Fatalf("previous artifacts gone: %v", err)
	}
	if cur.Version != 1 {
		t.Fatalf("version %d, want the untouched version 1", cur.Version)
	}
}

func TestCancelledRefreshPublishesNothing(t *testing.T) {
	cfg := testConfig(t)
	st := store.NewMemoryStore()
	pl := New(source.Static{Orders: ledger()}, st, quietLogger(), nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pl.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if st.Ready() {
		t.Fatal("aborted run must not publish")
	}
}

type blockingSource struct {
	orders  []models.Order
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) All(ctx context.Context) ([]models.Order, error) {
	close(b.started)
	<-b.release
	return b.orders, nil
}
func (b *blockingSource) Between(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	return b.orders, nil
}

func TestConcurrentRefreshIsRejected(t *testing.T) {
	cfg := testConfig(t)
	st := store.NewMemoryStore()
	src := &blockingSource{orders: ledger(), started: make(chan struct{}), release: make(chan struct{})}
	pl := New(src, st, quietLogger(), nil, cfg)

	done := make(chan error, 1)
	go func() {
		_, err := pl.Refresh(context.Background())
		done <- err
	}()
	<-src.started

	if _, err := pl.Refresh(context.Background()); !errors.Is(err, models.ErrRefreshInFlight) {
		t.Fatalf("expected ErrRefreshInFlight, got %v", err)
	}

	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}
}

func TestWarmStartRestoresPersistedArtifacts(t *testing.T) {
	cfg := testConfig(t)
	st := store.NewMemoryStore()
	pl := New(source.Static{Orders: ledger()}, st, quietLogger(), nil, cfg)
	if _, err := pl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// fresh process: new store, same persisted files
	st2 := store.NewMemoryStore()
	pl2 := New(source.Static{Orders: ledger()}, st2, quietLogger(), nil, cfg)
	if err := pl2.WarmStart(context.Background()); err != nil {
		t.Fatalf("warm start: %v", err)
	}
	set, err := st2.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Features) != 12 || set.Model == nil {
		t.Fatal("warm start did not restore the full artifact set")
	}
}

func TestWarmStartWithoutArtifactsFails(t *testing.T) {
	cfg := testConfig(t)
	st := store.NewMemoryStore()
	pl := New(source.Static{Orders: ledger()}, st, quietLogger(), nil, cfg)
	if err := pl.WarmStart(context.Background()); !errors.Is(err, models.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
}
