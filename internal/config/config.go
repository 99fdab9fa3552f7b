package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string
	LogLevel    slog.Level
	HTTPTimeout time.Duration

	// Order ledger. Driver is "postgres" or "mysql" when DSN is set; when
	// OrdersURL is set the ledger is read over HTTP instead.
	Driver    string
	DSN       string
	OrdersURL string

	// Artifact locations.
	SnapshotPath string
	ModelPath    string
	ScalerPath   string

	// Reference instant for recency; zero means wall-clock now (UTC).
	ReferenceTime time.Time

	Tunables Tunables
}

// Tunables are the analytics constants, overridable from a YAML file so the
// business side can adjust them without a rebuild.
type Tunables struct {
	ChurnThresholdDays float64 `yaml:"churn_threshold_days"`
	GrossMargin        float64 `yaml:"gross_margin"`
	HoldoutFraction    float64 `yaml:"holdout_fraction"`
	Seed               int64   `yaml:"seed"`
	CohortWindowDays   int     `yaml:"cohort_window_days"`
}

func DefaultTunables() Tunables {
	return Tunables{
		ChurnThresholdDays: 180,
		GrossMargin:        0.4,
		HoldoutFraction:    0.2,
		Seed:               42,
		CohortWindowDays:   365,
	}
}

func FromEnv() (Config, error) {
	// .env is optional; real env always wins.
	_ = godotenv.Load()

	lvl := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		lvl = slog.LevelDebug
	}

	to := 15 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			to = d
		}
	}

	cfg := Config{
		Port:         envOr("PORT", "8080"),
		LogLevel:     lvl,
		HTTPTimeout:  to,
		Driver:       envOr("LEDGER_DRIVER", "postgres"),
		DSN:          os.Getenv("LEDGER_DSN"),
		OrdersURL:    os.Getenv("ORDERS_API_URL"),
		SnapshotPath: envOr("SNAPSHOT_PATH", "data/rfm_features_with_segments.csv"),
		ModelPath:    envOr("CHURN_MODEL_PATH", "data/churn_model.gob"),
		ScalerPath:   envOr("CHURN_SCALER_PATH", "data/scaler.gob"),
		Tunables:     DefaultTunables(),
	}

	if v := os.Getenv("REFERENCE_TIME"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Config{}, fmt.Errorf("REFERENCE_TIME: %w", err)
		}
		cfg.ReferenceTime = t.UTC()
	}

	if path := os.Getenv("TUNABLES_FILE"); path != "" {
		if err := loadTunables(path, &cfg.Tunables); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func loadTunables(path string, t *Tunables) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tunables file: %w", err)
	}
	if err := yaml.Unmarshal(b, t); err != nil {
		return fmt.Errorf("tunables file %s: %w", path, err)
	}
	return nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
