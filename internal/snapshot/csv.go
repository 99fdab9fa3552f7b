// Package snapshot persists the feature/segment table as CSV, one row per
// customer, overwritten wholesale on each refresh.
package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caddydash/lifecycle/internal/models"
)

var header = []string{
	"customer_name", "last_order_date", "frequency", "monetary", "recency",
	"avg_days_between_orders", "customer_email", "R", "F", "M", "RFM_Score",
	"Segment", "Churn",
}

// Write replaces the snapshot file atomically (temp file + rename). Features
// must already be in their canonical order; the file is written as-is so two
// refreshes over an unchanged ledger produce identical bytes.
func Write(path string, features []models.CustomerFeature, labels map[string]models.SegmentLabel) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, features, labels); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Encode writes the snapshot table to w; the export endpoint streams it
// straight from the published artifact set.
func Encode(dst io.Writer, features []models.CustomerFeature, labels map[string]models.SegmentLabel) error {
	w := csv.NewWriter(dst)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, f := range features {
		l := labels[f.CustomerName]
		churn := "0"
		if l.Churned {
			churn = "1"
		}
		rec := []string{
			f.CustomerName,
			f.LastOrderDate.UTC().Format(time.RFC3339),
			strconv.Itoa(f.Frequency),
			formatFloat(f.Monetary),
			formatFloat(f.Recency),
			formatFloat(f.AvgDaysBetweenOrders),
			f.CustomerEmail,
			strconv.Itoa(l.R),
			strconv.Itoa(l.F),
			strconv.Itoa(l.M),
			l.RFMScore,
			l.Segment,
			churn,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Read loads a previously written snapshot, used to warm-start query serving
// after a restart before the first refresh completes.
func Read(path string) ([]models.CustomerFeature, map[string]models.SegmentLabel, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", models.ErrMissingArtifact, path)
		}
		return nil, nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", models.ErrArtifactCorrupt, path, err)
	}
	if len(rows) == 0 || len(rows[0]) != len(header) {
		return nil, nil, fmt.Errorf("%w: %s: bad header", models.ErrArtifactCorrupt, path)
	}

	var features []models.CustomerFeature
	labels := make(map[string]models.SegmentLabel, len(rows)-1)
	for _, rec := range rows[1:] {
		if len(rec) != len(header) {
			return nil, nil, fmt.Errorf("%w: %s: short row", models.ErrArtifactCorrupt, path)
		}
		last, err := time.Parse(time.RFC3339, rec[1])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", models.ErrArtifactCorrupt, path, err)
		}
		feat := models.CustomerFeature{
			CustomerName:  rec[0],
			LastOrderDate: last,
			CustomerEmail: rec[6],
		}
		feat.Frequency, _ = strconv.Atoi(rec[2])
		feat.Monetary, _ = strconv.ParseFloat(rec[3], 64)
		feat.Recency, _ = strconv.ParseFloat(rec[4], 64)
		feat.AvgDaysBetweenOrders, _ = strconv.ParseFloat(rec[5], 64)
		features = append(features, feat)

		lbl := models.SegmentLabel{RFMScore: rec[10], Segment: rec[11], Churned: rec[12] == "1"}
		lbl.R, _ = strconv.Atoi(rec[7])
		lbl.F, _ = strconv.Atoi(rec[8])
		lbl.M, _ = strconv.Atoi(rec[9])
		labels[feat.CustomerName] = lbl
	}
	return features, labels, nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
