package rfm

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/caddydash/lifecycle/internal/models"
)

// ScorePopulation converts the feature snapshot into RFM scores (1-5) and
// segment labels. The binning is population-relative: statistics are fitted
// once over the whole snapshot, then every customer is mapped through them.
// Populations too small or too uniform for 5-way quantile binning fall back
// to a rank-based equal-frequency split instead of failing.
func ScorePopulation(features []models.CustomerFeature, churnThresholdDays float64) (map[string]models.SegmentLabel, error) {
	if len(features) == 0 {
		return nil, models.ErrNoData
	}

	recency := make([]float64, len(features))
	monetary := make([]float64, len(features))
	frequency := make([]float64, len(features))
	for i, f := range features {
		recency[i] = f.Recency
		monetary[i] = f.Monetary
		frequency[i] = float64(f.Frequency)
	}

	// Frequency is heavily repeated-valued, so it is ranked (first-occurrence
	// tie-break) before binning; the ranks are unique by construction.
	freqRanks := rankFirst(frequency)

	rBin := fitBinner(recency)
	fBin := fitBinner(freqRanks)
	mBin := fitBinner(monetary)

	out := make(map[string]models.SegmentLabel, len(features))
	for i, f := range features {
		r := 5 - rBin.assign(recency[i]) // most recent gets 5
		fs := fBin.assign(freqRanks[i]) + 1
		m := mBin.assign(monetary[i]) + 1
		out[f.CustomerName] = models.SegmentLabel{
			R:        r,
			F:        fs,
			M:        m,
			RFMScore: scoreString(r, fs, m),
			Segment:  AssignSegment(r, fs, m),
			Churned:  f.Recency > churnThresholdDays,
		}
	}
	return out, nil
}

// AssignSegment applies the segment rules in strict priority order; the first
// matching rule wins.
func AssignSegment(r, f, m int) string {
	switch {
	case r >= 4 && f >= 4 && m >= 4:
		return models.SegmentLoyal
	case r >= 3 && f >= 3 && m >= 3:
		return models.SegmentActive
	case r >= 2 && f >= 2 && m >= 2:
		return models.SegmentAverage
	case r <= 2 && f <= 2 && m <= 2:
		return models.SegmentAtRisk
	default:
		return models.SegmentNew
	}
}

func scoreString(r, f, m int) string {
	digits := "0123456789"
	return string([]byte{digits[r], digits[f], digits[m]})
}

// binner maps one feature dimension to a bin in 0..4. In quantile mode the
// interior edges come from linearly interpolated population quantiles with
// right-closed intervals; in rank mode (degenerate distributions, populations
// under 5) bins are an equal-frequency split over sorted positions.
type binner struct {
	edges  []float64 // nil in rank mode
	sorted []float64
}

func fitBinner(values []float64) binner {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)

	if len(s) >= 5 {
		edges := make([]float64, 4)
		for i := 1; i <= 4; i++ {
			edges[i-1] = stat.Quantile(float64(i)/5, stat.LinInterp, s, nil)
		}
		if strictlyIncreasing(edges) && edges[0] > s[0] && edges[3] < s[len(s)-1] {
			return binner{edges: edges, sorted: s}
		}
	}
	return binner{sorted: s}
}

func (b binner) assign(v float64) int {
	if b.edges != nil {
		// right-closed: values equal to an edge land in the lower bin
		return sort.SearchFloat64s(b.edges, v)
	}
	pos := sort.SearchFloat64s(b.sorted, v) // ties collapse to the first position
	return pos * 5 / len(b.sorted)
}

func strictlyIncreasing(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return false
		}
	}
	return true
}

// rankFirst assigns 1-based ranks with ties broken by position in the input,
// mirroring a stable sort by value.
func rankFirst(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })
	ranks := make([]float64, len(values))
	for pos, i := range idx {
		ranks[i] = float64(pos + 1)
	}
	return ranks
}
