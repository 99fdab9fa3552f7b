// Package churn trains and scores the binary churn classifier: a standard
// scaler plus a logistic model over the fixed feature vector
// [recency, frequency, monetary, avg_days_between_orders].
package churn

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// FeatureNames is the fixed feature order. Scoring with a vector of any other
// shape fails explicitly.
var FeatureNames = []string{"recency", "frequency", "monetary", "avg_days_between_orders"}

// Scaler standardizes features to zero mean and unit variance. It is fitted
// on the training split only and persisted alongside the model.
type Scaler struct {
	Features []string
	Means    []float64
	Stds     []float64
}

// FitScaler computes per-column mean and population standard deviation.
// Constant columns scale by 1 so they pass through centered.
func FitScaler(x [][]float64) *Scaler {
	cols := len(FeatureNames)
	s := &Scaler{
		Features: append([]string(nil), FeatureNames...),
		Means:    make([]float64, cols),
		Stds:     make([]float64, cols),
	}
	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		s.Means[j] = stat.Mean(col, nil)
		s.Stds[j] = stat.PopStdDev(col, nil)
		if s.Stds[j] == 0 {
			s.Stds[j] = 1
		}
	}
	return s
}

// Transform scales one feature vector. The input is not modified.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Means) {
		return nil, fmt.Errorf("feature vector has %d values, want %d", len(x), len(s.Means))
	}
	out := make([]float64, len(x))
	for j := range x {
		out[j] = (x[j] - s.Means[j]) / s.Stds[j]
	}
	return out, nil
}

func (s *Scaler) transformAll(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i := range x {
		row, err := s.Transform(x[i])
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}
