package churn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/caddydash/lifecycle/internal/models"
)

// Model is a logistic regression over standardized features. Scoring returns
// the probability of the positive (churned) class.
type Model struct {
	Features []string
	Weights  []float64
	Bias     float64
}

// Options control training. Zero values are filled from these defaults.
type Options struct {
	ThresholdDays float64 // churn label boundary, default 180
	Holdout       float64 // evaluation fraction, default 0.2
	Seed          int64   // shuffle seed, default 42
	Iterations    int     // gradient steps, default 1000
	LearningRate  float64 // default 0.1
}

func (o *Options) fill() {
	if o.ThresholdDays == 0 {
		o.ThresholdDays = 180
	}
	if o.Holdout == 0 {
		o.Holdout = 0.2
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	if o.Iterations == 0 {
		o.Iterations = 1000
	}
	if o.LearningRate == 0 {
		o.LearningRate = 0.1
	}
}

// Report carries the informational training diagnostics. Accuracy is not a
// gate; the model is published regardless.
type Report struct {
	TrainAccuracy float64
	TestAccuracy  float64
	TrainSize     int
	TestSize      int
	Churned       int
}

// Train derives the churn label (recency > threshold), splits off a held-out
// fraction with a deterministic shuffle, standardizes on the training split
// only, and fits by batch gradient descent.
func Train(features []models.CustomerFeature, opts Options) (*Model, *Scaler, Report, error) {
	opts.fill()
	if len(features) == 0 {
		return nil, nil, Report{}, models.ErrNoData
	}

	n := len(features)
	x := make([][]float64, n)
	y := make([]float64, n)
	rep := Report{}
	for i, f := range features {
		x[i] = Vector(f)
		if f.Recency > opts.ThresholdDays {
			y[i] = 1
			rep.Churned++
		}
	}

	perm := rand.New(rand.NewSource(opts.Seed)).Perm(n)
	testN := int(float64(n) * opts.Holdout)
	trainIdx, testIdx := perm[testN:], perm[:testN]
	rep.TrainSize, rep.TestSize = len(trainIdx), len(testIdx)

	trainX := make([][]float64, len(trainIdx))
	trainY := make([]float64, len(trainIdx))
	for i, idx := range trainIdx {
		trainX[i] = x[idx]
		trainY[i] = y[idx]
	}

	scaler := FitScaler(trainX)
	scaledTrain, err := scaler.transformAll(trainX)
	if err != nil {
		return nil, nil, Report{}, err
	}

	m := fit(scaledTrain, trainY, opts)
	rep.TrainAccuracy = m.accuracy(scaledTrain, trainY)

	if len(testIdx) > 0 {
		testX := make([][]float64, len(testIdx))
		testY := make([]float64, len(testIdx))
		for i, idx := range testIdx {
			testX[i] = x[idx]
			testY[i] = y[idx]
		}
		scaledTest, err := scaler.transformAll(testX)
		if err != nil {
			return nil, nil, Report{}, err
		}
		rep.TestAccuracy = m.accuracy(scaledTest, testY)
	}

	return m, scaler, rep, nil
}

// Vector lays out one customer's features in the fixed training order.
func Vector(f models.CustomerFeature) []float64 {
	return []float64{f.Recency, float64(f.Frequency), f.Monetary, f.AvgDaysBetweenOrders}
}

// Score applies the persisted scaler then the model to one raw feature
// vector, returning a probability in [0,1].
func (m *Model) Score(s *Scaler, x []float64) (float64, error) {
	if s == nil {
		return 0, fmt.Errorf("score: %w: scaler", models.ErrMissingArtifact)
	}
	if len(x) != len(m.Weights) {
		return 0, fmt.Errorf("score: feature vector has %d values, want %d", len(x), len(m.Weights))
	}
	scaled, err := s.Transform(x)
	if err != nil {
		return 0, fmt.Errorf("score: %w", err)
	}
	return m.predict(scaled), nil
}

func fit(x [][]float64, y []float64, opts Options) *Model {
	m := &Model{
		Features: append([]string(nil), FeatureNames...),
		Weights:  make([]float64, len(FeatureNames)),
	}
	n := float64(len(x))
	if n == 0 {
		return m
	}
	grad := make([]float64, len(m.Weights))
	for it := 0; it < opts.Iterations; it++ {
		for j := range grad {
			grad[j] = 0
		}
		var gradB float64
		for i := range x {
			err := m.predict(x[i]) - y[i]
			for j := range grad {
				grad[j] += err * x[i][j]
			}
			gradB += err
		}
		for j := range m.Weights {
			m.Weights[j] -= opts.LearningRate * grad[j] / n
		}
		m.Bias -= opts.LearningRate * gradB / n
	}
	return m
}

func (m *Model) predict(scaled []float64) float64 {
	z := m.Bias
	for j, w := range m.Weights {
		z += w * scaled[j]
	}
	return 1 / (1 + math.Exp(-z))
}

func (m *Model) accuracy(x [][]float64, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	correct := 0
	for i := range x {
		pred := 0.0
		if m.predict(x[i]) >= 0.5 {
			pred = 1
		}
		if pred == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(x))
}
