package churn

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caddydash/lifecycle/internal/models"
)

// Model and scaler are persisted as two opaque gob blobs, versionless: the
// newest refresh always overwrites. Loading fails loudly when either blob is
// absent or unreadable; a missing model never silently defaults to a fresh
// untrained one.

func SaveArtifacts(m *Model, s *Scaler, modelPath, scalerPath string) error {
	if err := writeGob(modelPath, m); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if err := writeGob(scalerPath, s); err != nil {
		return fmt.Errorf("save scaler: %w", err)
	}
	return nil
}

func LoadArtifacts(modelPath, scalerPath string) (*Model, *Scaler, error) {
	var m Model
	if err := readGob(modelPath, &m); err != nil {
		return nil, nil, fmt.Errorf("load model: %w", err)
	}
	var s Scaler
	if err := readGob(scalerPath, &s); err != nil {
		return nil, nil, fmt.Errorf("load scaler: %w", err)
	}
	if len(m.Weights) != len(FeatureNames) || len(s.Means) != len(FeatureNames) ||
		len(s.Stds) != len(FeatureNames) ||
		len(m.Features) != len(FeatureNames) || len(s.Features) != len(FeatureNames) {
		return nil, nil, fmt.Errorf("%w: unexpected feature count", models.ErrArtifactCorrupt)
	}
	for i, name := range FeatureNames {
		if m.Features[i] != name || s.Features[i] != name {
			return nil, nil, fmt.Errorf("%w: feature order mismatch", models.ErrArtifactCorrupt)
		}
	}
	return &m, &s, nil
}

// writeGob goes through a temp file and rename so a crashed refresh cannot
// leave a half-written blob behind.
func writeGob(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", models.ErrMissingArtifact, path)
		}
		return err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrArtifactCorrupt, path, err)
	}
	return nil
}
