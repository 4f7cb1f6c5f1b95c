package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Empty(t *testing.T) {
	ms := Build(nil, nil)

	assert.Equal(t, 0, ms.LeadCount)
	require.Len(t, ms.ReviewCountPercentiles, len(Breakpoints))
	for _, v := range ms.ReviewCountPercentiles {
		assert.Zero(t, v)
	}
	assert.Zero(t, ms.RatingMean)
	assert.Zero(t, ms.RatingMedian)
}

func TestBuild_SingleLead(t *testing.T) {
	ms := Build([]float64{42}, []float64{4.5})

	assert.Equal(t, 1, ms.LeadCount)
	for _, v := range ms.ReviewCountPercentiles {
		assert.Equal(t, 42.0, v)
	}
	assert.Equal(t, 4.5, ms.RatingMean)
	assert.Equal(t, 4.5, ms.RatingMedian)
}

func TestBuild_PercentileInterpolation(t *testing.T) {
	// 0..100 gives percentile(p) == p exactly under linear interpolation.
	counts := make([]float64, 101)
	for i := range counts {
		counts[i] = float64(i)
	}
	ms := Build(counts, nil)

	for i, p := range Breakpoints {
		assert.InDelta(t, p, ms.ReviewCountPercentiles[i], 1e-9, "p%v", p)
	}
}

func TestBuild_MonotoneNonDecreasing(t *testing.T) {
	counts := []float64{3, 940, 12, 12, 0, 77, 512, 4, 4, 4, 68, 1, 230, 9}
	ms := Build(counts, nil)

	require.Len(t, ms.ReviewCountPercentiles, 23)
	for i := 1; i < len(ms.ReviewCountPercentiles); i++ {
		assert.GreaterOrEqual(t, ms.ReviewCountPercentiles[i], ms.ReviewCountPercentiles[i-1],
			"breakpoint p%v regressed", Breakpoints[i])
	}
	assert.Equal(t, 0.0, ms.ReviewCountPercentiles[0])
	assert.InDelta(t, 940.0, ms.ReviewCountPercentiles[len(Breakpoints)-1], 1.0)
}

func TestBuild_Ratings(t *testing.T) {
	ms := Build([]float64{1, 2, 3}, []float64{3.0, 5.0, 4.0, 4.0})

	assert.InDelta(t, 4.0, ms.RatingMean, 1e-9)
	assert.InDelta(t, 4.0, ms.RatingMedian, 1e-9)
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	counts := []float64{9, 1, 5}
	Build(counts, nil)
	assert.Equal(t, []float64{9, 1, 5}, counts)
}
