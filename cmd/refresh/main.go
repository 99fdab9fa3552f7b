// Command refresh runs one full analytics refresh against the order ledger
// and exits: useful from cron or after a bulk ledger import.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/caddydash/lifecycle/internal/config"
	"github.com/caddydash/lifecycle/internal/pipeline"
	"github.com/caddydash/lifecycle/internal/source"
	"github.com/caddydash/lifecycle/internal/store"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("LEDGER_DSN"), "order ledger DSN (postgres://... or mariadb://...)")
	driver := flag.String("driver", "postgres", "ledger driver (postgres or mysql)")
	ordersURL := flag.String("orders-url", os.Getenv("ORDERS_API_URL"), "order ledger JSON API (overrides dsn)")
	reference := flag.String("reference", "", "reference instant for recency (RFC3339, default now)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *dsn == "" && *ordersURL == "" {
		fmt.Fprintln(os.Stderr, "usage: refresh --dsn postgres://... [--reference 2025-04-01T00:00:00Z]")
		os.Exit(2)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fatal("config: %v", err)
	}
	cfg.Driver = *driver
	cfg.DSN = *dsn
	cfg.OrdersURL = *ordersURL
	if *verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	if *reference != "" {
		t, err := time.Parse(time.RFC3339, *reference)
		if err != nil {
			fatal("bad --reference: %v", err)
		}
		cfg.ReferenceTime = t.UTC()
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	var src source.Source
	if cfg.OrdersURL != "" {
		src = source.NewHTTPSource(cfg.HTTPTimeout, cfg.OrdersURL)
	} else {
		sq, err := source.OpenSQL(cfg.Driver, cfg.DSN)
		if err != nil {
			fatal("open ledger: %v", err)
		}
		defer sq.Close()
		src = sq
	}

	st := store.NewMemoryStore()
	pl := pipeline.New(src, st, logger, nil, cfg)

	bar := progressbar.Default(pipeline.Stages)
	set, err := pl.RefreshWithProgress(context.Background(), func(stage string) {
		bar.Describe(stage)
		_ = bar.Add(1)
	})
	if err != nil {
		fatal("refresh: %v", err)
	}
	_ = bar.Finish()

	fmt.Printf("run %s: %d customers, %d orders, %d cohorts\n",
		set.RunID, len(set.Features), len(set.Orders), len(set.Cohorts.Metrics))
	fmt.Printf("snapshot: %s\nmodel:    %s\nscaler:   %s\n",
		cfg.SnapshotPath, cfg.ModelPath, cfg.ScalerPath)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
