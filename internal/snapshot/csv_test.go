package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/caddydash/lifecycle/internal/models"
)

func sample() ([]models.CustomerFeature, map[string]models.SegmentLabel) {
	features := []models.CustomerFeature{
		{
			CustomerName:         "alice",
			CustomerEmail:        "alice@shop.test",
			LastOrderDate:        time.Date(2024, 2, 15, 10, 30, 0, 0, time.UTC),
			Frequency:            3,
			Monetary:             450.5,
			Recency:              45.25,
			AvgDaysBetweenOrders: 18.5,
		},
		{
			CustomerName:  "bob",
			CustomerEmail: "bob@shop.test",
			LastOrderDate: time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
			Frequency:     1,
			Monetary:      200,
			Recency:       152,
		},
	}
	labels := map[string]models.SegmentLabel{
		"alice": {R: 5, F: 4, M: 4, RFMScore: "544", Segment: models.SegmentLoyal},
		"bob":   {R: 1, F: 1, M: 2, RFMScore: "112", Segment: models.SegmentAtRisk, Churned: true},
	}
	return features, labels
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rfm.csv")
	features, labels := sample()
	if err := Write(path, features, labels); err != nil {
		t.Fatalf("write: %v", err)
	}
	gotFeatures, gotLabels, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(features, gotFeatures) {
		t.Fatalf("features changed:\n got %+v\nwant %+v", gotFeatures, features)
	}
	if !reflect.DeepEqual(labels, gotLabels) {
		t.Fatalf("labels changed:\n got %+v\nwant %+v", gotLabels, labels)
	}
}

func TestWriteIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	features, labels := sample()
	p1, p2 := filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")
	if err := Write(p1, features, labels); err != nil {
		t.Fatal(err)
	}
	if err := Write(p2, features, labels); err != nil {
		t.Fatal(err)
	}
	b1, _ := os.ReadFile(p1)
	b2, _ := os.ReadFile(p2)
	if string(b1) != string(b2) {
		t.Fatal("two writes of the same snapshot differ")
	}
}

func TestReadMissingFile(t *testing.T) {
	_, _, err := Read(filepath.Join(t.TempDir(), "absent.csv"))
	if !errors.Is(err, models.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
}

func TestReadRejectsBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("a,b,c\n1,2,3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := Read(path)
	if !errors.Is(err, models.ErrArtifactCorrupt) {
		t.Fatalf("expected ErrArtifactCorrupt, got %v", err)
	}
}
