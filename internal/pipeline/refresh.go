// Package pipeline orchestrates the refresh run: fetch, normalize, feature
// build, segmentation, churn training, cohort snapshot, persist, publish.
// The run is one atomic unit; nothing is published until every stage has
// succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caddydash/lifecycle/internal/churn"
	"github.com/caddydash/lifecycle/internal/cohort"
	"github.com/caddydash/lifecycle/internal/config"
	"github.com/caddydash/lifecycle/internal/ingest"
	"github.com/caddydash/lifecycle/internal/metrics"
	"github.com/caddydash/lifecycle/internal/models"
	"github.com/caddydash/lifecycle/internal/rfm"
	"github.com/caddydash/lifecycle/internal/snapshot"
	"github.com/caddydash/lifecycle/internal/source"
	"github.com/caddydash/lifecycle/internal/store"
)

type Pipeline struct {
	src source.Source
	st  *store.MemoryStore
	log *slog.Logger
	m   *metrics.Metrics
	cfg config.Config

	mu sync.Mutex // single-flight guard; concurrent runs are rejected
}

func New(src source.Source, st *store.MemoryStore, log *slog.Logger, m *metrics.Metrics, cfg config.Config) *Pipeline {
	return &Pipeline{src: src, st: st, log: log, m: m, cfg: cfg}
}

// Stages reports how many stages a run executes; the refresh CLI sizes its
// progress bar from it.
const Stages = 7

// Refresh runs the full pipeline end to end. Artifacts are replaced
// wholesale, so two concurrent runs cannot be merged: a run that starts while
// another is active is rejected with ErrRefreshInFlight. The context is
// checked between stages; an aborted run publishes nothing.
func (p *Pipeline) Refresh(ctx context.Context) (*store.ArtifactSet, error) {
	return p.refresh(ctx, nil)
}

// RefreshWithProgress is Refresh with a per-stage callback.
func (p *Pipeline) RefreshWithProgress(ctx context.Context, onStage func(name string)) (*store.ArtifactSet, error) {
	return p.refresh(ctx, onStage)
}

func (p *Pipeline) refresh(ctx context.Context, onStage func(string)) (set *store.ArtifactSet, err error) {
	if !p.mu.TryLock() {
		p.countRun("rejected")
		return nil, models.ErrRefreshInFlight
	}
	defer p.mu.Unlock()

	started := time.Now()
	defer func() {
		if p.m != nil {
			p.m.RefreshDuration.Observe(time.Since(started).Seconds())
		}
		if err != nil {
			p.countRun("error")
		} else {
			p.countRun("success")
		}
	}()

	runID := uuid.New()
	reference := p.cfg.ReferenceTime
	if reference.IsZero() {
		reference = time.Now().UTC()
	}
	p.log.Info("refresh starting", slog.String("run_id", runID.String()),
		slog.Time("reference", reference))

	var raw, orders []models.Order
	if err := p.stage(ctx, "fetch", onStage, func() error {
		var err error
		raw, err = p.src.All(ctx)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(ctx, "normalize", onStage, func() error {
		var err error
		orders, err = ingest.Normalize(raw, p.log)
		return err
	}); err != nil {
		return nil, err
	}

	var features []models.CustomerFeature
	if err := p.stage(ctx, "features", onStage, func() error {
		var err error
		features, err = rfm.BuildFeatures(orders, reference)
		return err
	}); err != nil {
		return nil, err
	}

	var segments map[string]models.SegmentLabel
	if err := p.stage(ctx, "segmentation", onStage, func() error {
		var err error
		segments, err = rfm.ScorePopulation(features, p.cfg.Tunables.ChurnThresholdDays)
		return err
	}); err != nil {
		return nil, err
	}

	var model *churn.Model
	var scaler *churn.Scaler
	if err := p.stage(ctx, "churn_training", onStage, func() error {
		var rep churn.Report
		var err error
		model, scaler, rep, err = churn.Train(features, churn.Options{
			ThresholdDays: p.cfg.Tunables.ChurnThresholdDays,
			Holdout:       p.cfg.Tunables.HoldoutFraction,
			Seed:          p.cfg.Tunables.Seed,
		})
		if err != nil {
			return err
		}
		p.log.Info("churn model trained",
			slog.Int("train_size", rep.TrainSize),
			slog.Int("test_size", rep.TestSize),
			slog.Int("churned", rep.Churned),
			slog.Float64("train_accuracy", rep.TrainAccuracy),
			slog.Float64("test_accuracy", rep.TestAccuracy))
		return nil
	}); err != nil {
		return nil, err
	}

	var cohorts *models.CohortResult
	if err := p.stage(ctx, "cohorts", onStage, func() error {
		var err error
		cohorts, err = p.buildCohorts(orders, reference)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(ctx, "persist", onStage, func() error {
		if err := snapshot.Write(p.cfg.SnapshotPath, features, segments); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		return churn.SaveArtifacts(model, scaler, p.cfg.ModelPath, p.cfg.ScalerPath)
	}); err != nil {
		return nil, err
	}

	set = &store.ArtifactSet{
		RunID:       runID,
		RefreshedAt: time.Now().UTC(),
		Reference:   reference,
		Orders:      orders,
		Features:    features,
		Segments:    segments,
		Model:       model,
		Scaler:      scaler,
		Cohorts:     cohorts,
	}
	p.st.Publish(set)

	if p.m != nil {
		p.m.Customers.Set(float64(len(features)))
		p.m.Orders.Set(float64(len(orders)))
	}
	p.log.Info("refresh published",
		slog.String("run_id", runID.String()),
		slog.Uint64("version", set.Version),
		slog.Int("customers", len(features)),
		slog.Int("orders", len(orders)),
		slog.Duration("took", time.Since(started)))
	return set, nil
}

// buildCohorts uses the default trailing window, falling back to full history
// when the window holds no orders.
func (p *Pipeline) buildCohorts(orders []models.Order, reference time.Time) (*models.CohortResult, error) {
	from := reference.AddDate(0, 0, -p.cfg.Tunables.CohortWindowDays)
	res, err := cohort.Build(orders, from, reference, p.cfg.Tunables.GrossMargin)
	if errors.Is(err, models.ErrNoData) {
		earliest := orders[0].OrderDate
		for _, o := range orders[1:] {
			if o.OrderDate.Before(earliest) {
				earliest = o.OrderDate
			}
		}
		p.log.Warn("no orders in default cohort window, using full history")
		return cohort.Build(orders, earliest, reference, p.cfg.Tunables.GrossMargin)
	}
	return res, err
}

// WarmStart republishes the persisted snapshot and model after a restart so
// queries can be served before the next refresh. It retrains nothing.
func (p *Pipeline) WarmStart(ctx context.Context) error {
	features, segments, err := snapshot.Read(p.cfg.SnapshotPath)
	if err != nil {
		return err
	}
	model, scaler, err := churn.LoadArtifacts(p.cfg.ModelPath, p.cfg.ScalerPath)
	if err != nil {
		return err
	}
	raw, err := p.src.All(ctx)
	if err != nil {
		return err
	}
	orders, err := ingest.Normalize(raw, p.log)
	if err != nil {
		return err
	}
	reference := p.cfg.ReferenceTime
	if reference.IsZero() {
		reference = time.Now().UTC()
	}
	cohorts, err := p.buildCohorts(orders, reference)
	if err != nil {
		return err
	}
	p.st.Publish(&store.ArtifactSet{
		RunID:       uuid.New(),
		RefreshedAt: time.Now().UTC(),
		Reference:   reference,
		Orders:      orders,
		Features:    features,
		Segments:    segments,
		Model:       model,
		Scaler:      scaler,
		Cohorts:     cohorts,
	})
	p.log.Info("warm start complete", slog.Int("customers", len(features)))
	return nil
}

func (p *Pipeline) stage(ctx context.Context, name string, onStage func(string), fn func() error) error {
	if err := ctx.Err(); err != nil {
		p.log.Warn("refresh aborted", slog.String("before_stage", name))
		return err
	}
	if onStage != nil {
		onStage(name)
	}
	started := time.Now()
	err := fn()
	if p.m != nil {
		p.m.StageDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	p.log.Debug("stage complete", slog.String("stage", name),
		slog.Duration("took", time.Since(started)))
	return nil
}

func (p *Pipeline) countRun(outcome string) {
	if p.m != nil {
		p.m.RefreshRuns.WithLabelValues(outcome).Inc()
	}
}
