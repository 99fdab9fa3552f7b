package rfm

import (
	"sort"

	"github.com/caddydash/lifecycle/internal/models"
)

// Distribution counts customers per segment with percentages of the whole
// population. An optional filter narrows the result to one segment; the
// percentage stays relative to the full population. Output order is by count
// descending, name ascending, so pagination downstream is stable.
func Distribution(labels map[string]models.SegmentLabel, filter string) ([]models.SegmentCount, error) {
	if len(labels) == 0 {
		return nil, models.ErrNoData
	}
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l.Segment]++
	}
	total := len(labels)

	out := make([]models.SegmentCount, 0, len(counts))
	for seg, n := range counts {
		if filter != "" && seg != filter {
			continue
		}
		out = append(out, models.SegmentCount{
			Segment:    seg,
			Count:      n,
			Percentage: round2(float64(n) / float64(total) * 100),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Segment < out[j].Segment
	})
	return out, nil
}

func round2(f float64) float64 { return float64(int64(f*100+0.5)) / 100 }
