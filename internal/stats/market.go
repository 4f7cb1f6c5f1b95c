// Package stats computes market-wide percentile and rating aggregates used
// to normalize classifier scoring.
package stats

import (
	"math"
	"sort"
)

// Breakpoints are the percentile ranks MarketStats carries, in order.
var Breakpoints = []float64{
	0, 1, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50,
	55, 60, 65, 70, 75, 80, 85, 90, 95, 99, 99.9,
}

// MarketStats summarizes a market segment's review-count distribution and
// ratings. Computed fresh per scoring batch; never persisted.
type MarketStats struct {
	LeadCount              int       `json:"lead_count"`
	ReviewCountPercentiles []float64 `json:"review_count_percentiles"`
	RatingMean             float64   `json:"rating_mean"`
	RatingMedian           float64   `json:"rating_median"`
}

// Build computes MarketStats from a segment's review counts and ratings.
// Percentiles are monotonically non-decreasing by construction; empty input
// yields the degenerate value (zero) repeated rather than an error.
func Build(reviewCounts []float64, ratings []float64) MarketStats {
	ms := MarketStats{
		LeadCount:              len(reviewCounts),
		ReviewCountPercentiles: make([]float64, len(Breakpoints)),
	}

	if len(reviewCounts) > 0 {
		sorted := make([]float64, len(reviewCounts))
		copy(sorted, reviewCounts)
		sort.Float64s(sorted)

		prev := math.Inf(-1)
		for i, p := range Breakpoints {
			v := percentile(sorted, p)
			// Interpolation on a sorted slice cannot regress, but clamp
			// anyway so the invariant survives NaN-ish inputs.
			if v < prev {
				v = prev
			}
			ms.ReviewCountPercentiles[i] = v
			prev = v
		}
	}

	if len(ratings) > 0 {
		sortedRatings := make([]float64, len(ratings))
		copy(sortedRatings, ratings)
		sort.Float64s(sortedRatings)

		sum := 0.0
		for _, r := range sortedRatings {
			sum += r
		}
		ms.RatingMean = sum / float64(len(sortedRatings))
		ms.RatingMedian = percentile(sortedRatings, 50)
	}

	return ms
}

// percentile returns the p-th percentile of a sorted slice using linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	rank := (p / 100) * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if hi >= n {
		hi = n - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
