package churn

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/caddydash/lifecycle/internal/models"
)

// trainingSet builds a population where churn is cleanly separable on
// recency: half long-inactive, half recent.
func trainingSet(n int) []models.CustomerFeature {
	out := make([]models.CustomerFeature, n)
	for i := 0; i < n; i++ {
		f := models.CustomerFeature{
			CustomerName: fmt.Sprintf("c%02d", i),
			Frequency:    1 + i%5,
			Monetary:     float64(50 * (1 + i%7)),
		}
		if i%2 == 0 {
			f.Recency = 200 + float64(10*i)
			f.AvgDaysBetweenOrders = 90
		} else {
			f.Recency = 5 + float64(i)
			f.AvgDaysBetweenOrders = 20
		}
		out[i] = f
	}
	return out
}

func TestTrainEmptyIsNoData(t *testing.T) {
	_, _, _, err := Train(nil, Options{})
	if !errors.Is(err, models.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestTrainIsDeterministic(t *testing.T) {
	feats := trainingSet(40)
	m1, s1, _, err := Train(feats, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m2, s2, _, err := Train(feats, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(m1, m2) || !reflect.DeepEqual(s1, s2) {
		t.Fatal("repeated training with the same seed diverged")
	}
}

func TestTrainSeparatesChurn(t *testing.T) {
	feats := trainingSet(40)
	m, s, rep, err := Train(feats, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.TrainAccuracy < 0.9 {
		t.Fatalf("train accuracy %v on a separable set", rep.TrainAccuracy)
	}

	churned, _ := m.Score(s, []float64{400, 1, 50, 90})
	active, _ := m.Score(s, []float64{3, 5, 300, 15})
	if churned <= 0.5 {
		t.Fatalf("long-inactive customer scored %v, want > 0.5", churned)
	}
	if active >= 0.5 {
		t.Fatalf("recent customer scored %v, want < 0.5", active)
	}
}

// Scoring a training-set row through the public path must reproduce the
// model's own prediction on that row.
func TestScoreRoundTrip(t *testing.T) {
	feats := trainingSet(30)
	m, s, _, err := Train(feats, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := feats[0] // recency 200, churned in the label definition
	got, err := m.Score(s, Vector(row))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scaled, _ := s.Transform(Vector(row))
	want := m.predict(scaled)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("Score=%v, predict=%v", got, want)
	}
	if got < 0 || got > 1 {
		t.Fatalf("probability out of range: %v", got)
	}
}

func TestScoreRejectsWrongShape(t *testing.T) {
	m, s, _, err := Train(trainingSet(20), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Score(s, []float64{1, 2, 3}); err == nil {
		t.Fatal("expected error for short feature vector")
	}
	if _, err := m.Score(nil, []float64{1, 2, 3, 4}); !errors.Is(err, models.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact for nil scaler, got %v", err)
	}
}

func TestScalerConstantColumn(t *testing.T) {
	x := [][]float64{{1, 5, 5, 0}, {2, 5, 7, 0}, {3, 5, 9, 0}}
	s := FitScaler(x)
	out, err := s.Transform([]float64{2, 5, 7, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[1] != 0 || out[3] != 0 {
		t.Fatalf("constant columns should center to 0, got %v", out)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "churn_model.gob")
	scalerPath := filepath.Join(dir, "scaler.gob")

	m, s, _, err := Train(trainingSet(25), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := SaveArtifacts(m, s, modelPath, scalerPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	m2, s2, err := LoadArtifacts(modelPath, scalerPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(m, m2) || !reflect.DeepEqual(s, s2) {
		t.Fatal("artifacts changed across save/load")
	}
}

func TestLoadMissingArtifactFailsExplicitly(t *testing.T) {
	dir := t.TempDir()
	_, _, err := LoadArtifacts(filepath.Join(dir, "nope.gob"), filepath.Join(dir, "nope2.gob"))
	if !errors.Is(err, models.ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
}

func TestLoadCorruptArtifactFailsExplicitly(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "churn_model.gob")
	scalerPath := filepath.Join(dir, "scaler.gob")
	for _, p := range []string{modelPath, scalerPath} {
		if err := os.WriteFile(p, []byte("not a gob blob"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	_, _, err := LoadArtifacts(modelPath, scalerPath)
	if !errors.Is(err, models.ErrArtifactCorrupt) {
		t.Fatalf("expected ErrArtifactCorrupt, got %v", err)
	}
}
