package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/caddydash/lifecycle/internal/config"
	"github.com/caddydash/lifecycle/internal/httpx"
	"github.com/caddydash/lifecycle/internal/metrics"
	"github.com/caddydash/lifecycle/internal/models"
	"github.com/caddydash/lifecycle/internal/pipeline"
	"github.com/caddydash/lifecycle/internal/source"
	"github.com/caddydash/lifecycle/internal/store"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	src, err := openSource(cfg)
	if err != nil {
		logger.Error("order source", slog.String("err", err.Error()))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	st := store.NewMemoryStore()
	pl := pipeline.New(src, st, logger, m, cfg)

	// Serve from the persisted snapshot right away when one exists; a fresh
	// deployment just waits for the first refresh.
	if err := pl.WarmStart(context.Background()); err != nil {
		if errors.Is(err, models.ErrMissingArtifact) {
			logger.Info("no persisted artifacts, waiting for first refresh")
		} else {
			logger.Warn("warm start failed", slog.String("err", err.Error()))
		}
	}

	r := httpx.NewRouter(logger, pl, st, m, cfg, reg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting server", slog.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func openSource(cfg config.Config) (source.Source, error) {
	if cfg.OrdersURL != "" {
		return source.NewHTTPSource(cfg.HTTPTimeout, cfg.OrdersURL), nil
	}
	return source.OpenSQL(cfg.Driver, cfg.DSN)
}
