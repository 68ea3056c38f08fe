package factors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func floats(vs ...*float64) []*float64 { return vs }

func TestEmaSeedsOnFirstNonNullAndCarriesAcrossNulls(t *testing.T) {
	series := floats(nil, f64(1.0), nil, f64(2.0))
	out := ema(series, 3) // k = 0.5

	assert.Nil(t, out[0])
	require.NotNil(t, out[1])
	assert.Equal(t, 1.0, *out[1])
	require.NotNil(t, out[2])
	assert.Equal(t, 1.0, *out[2]) // carried forward across the null
	require.NotNil(t, out[3])
	assert.InDelta(t, 1.5, *out[3], 1e-9) // 1.0 + 0.5*(2.0-1.0)
}

func TestWinsorizeClipsTails(t *testing.T) {
	out := winsorize([]float64{1, 2, 3, 4, 100}, 0.2)
	assert.Less(t, out[len(out)-1], 100.0)
}

func TestRollingSortinoNullUntilNegativeReturnExists(t *testing.T) {
	allPositive := floats(f64(0.01), f64(0.02), f64(0.03))
	out := rollingSortino(allPositive, 30)
	for _, v := range out {
		assert.Nil(t, v)
	}

	withNeg := floats(f64(0.01), f64(-0.02), f64(0.03))
	out2 := rollingSortino(withNeg, 30)
	require.NotNil(t, out2[2])
}

func TestRollingVaR95ParametricVsEmpirical(t *testing.T) {
	rets := floats(f64(-0.05), f64(0.01), f64(0.02), f64(-0.03), f64(0.04))
	param := rollingVaR95(rets, 30, VarParametric)
	emp := rollingVaR95(rets, 30, VarEmpirical)

	require.NotNil(t, param[len(param)-1])
	require.NotNil(t, emp[len(emp)-1])
	assert.NotEqual(t, *param[len(param)-1], *emp[len(emp)-1])
}

func TestNormalizeSeriesZScoreRequiresNonZeroStdDev(t *testing.T) {
	series := floats(f64(1), f64(1), f64(1))
	out := normalizeSeries(series, 30, NormZScore, 0.05, nil, 2)
	assert.Nil(t, out[2]) // zero stddev -> undefined
}

func TestNormalizeSeriesMinMaxMapsToUnitRange(t *testing.T) {
	series := floats(f64(0), f64(10), f64(5))
	out := normalizeSeries(series, 30, NormMinMax, 0.05, nil, 2)
	require.NotNil(t, out[2])
	assert.InDelta(t, 0.0, *out[2], 1e-9) // (5-0)/(10-0)*2-1 = 0
}

func TestNormalizeSeriesWinsorClampsOutliersBeforeZScore(t *testing.T) {
	series := floats(f64(1), f64(2), f64(3), f64(4), f64(1000))
	out := normalizeSeries(series, 30, NormWinsor, 0.2, nil, 2)
	require.NotNil(t, out[4])
	assert.Less(t, *out[4], 5.0) // clamped before scoring, not a wild z-score
}

func TestBuildArticleWeightsNormedZeroesOutZeroCountDays(t *testing.T) {
	day0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	day1 := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	stats := map[time.Time]int{day0: 0, day1: 10}
	weights := buildArticleWeightsNormed(stats, []time.Time{day0, day1}, 0.5, 3.0)

	require.NotNil(t, weights[0])
	assert.Equal(t, 0.0, *weights[0])
	require.NotNil(t, weights[1])
	assert.Greater(t, *weights[1], 0.0)
}

func TestBlendPAlphaDegeneratesOnSingleNull(t *testing.T) {
	out := blendPAlpha(floats(f64(0.5), nil, f64(0.2)), floats(nil, f64(0.3), f64(-0.1)), 0.25)
	require.NotNil(t, out[0])
	assert.Equal(t, 0.5, *out[0]) // sentiment null -> degenerates to exp_return_norm
	require.NotNil(t, out[1])
	assert.Equal(t, 0.3, *out[1]) // exp_return null -> degenerates to sentiment_norm
	require.NotNil(t, out[2])
	assert.InDelta(t, 0.75*0.2+0.25*(-0.1), *out[2], 1e-9)
}

func TestBlendPAlphaBothNullIsNull(t *testing.T) {
	out := blendPAlpha(floats(nil), floats(nil), 0.25)
	assert.Nil(t, out[0])
}
