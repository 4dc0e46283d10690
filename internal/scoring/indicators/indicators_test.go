package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func upwardSeries(n int, start, drift float64) []float64 {
	closes := make([]float64, n)
	p := start
	for i := range closes {
		p *= 1 + drift
		closes[i] = p
	}
	return closes
}

func TestRSI_InsufficientHistory(t *testing.T) {
	closes := upwardSeries(10, 100, 0.01)
	assert.Nil(t, RSI(closes, 14))
}

func TestRSI_UpwardDriftIsBullish(t *testing.T) {
	closes := upwardSeries(60, 100, 0.01)
	v := RSI(closes, 14)
	if assert.NotNil(t, v) {
		assert.Greater(t, *v, 50.0)
	}
}

func TestZScore_FlatSeriesHasNoStdDev(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	assert.Nil(t, ZScore(closes, 20))
}

func TestMaxDrawdown_Basic(t *testing.T) {
	closes := []float64{100, 110, 90, 95}
	dd := MaxDrawdown(closes, 0)
	if assert.NotNil(t, dd) {
		assert.InDelta(t, (110.0-90.0)/110.0*100, *dd, 1e-9)
	}
}

func TestNormalize_ClampsAndInverts(t *testing.T) {
	assert.Equal(t, 100.0, Normalize(1000, 0, 100, false))
	assert.Equal(t, 0.0, Normalize(-50, 0, 100, false))
	assert.Equal(t, 0.0, Normalize(1000, 0, 100, true))
	assert.Equal(t, 50.0, Normalize(50, 0, 100, false))
}

func TestAnnualizedVolatility_NeedsAtLeastTwoPoints(t *testing.T) {
	assert.Nil(t, AnnualizedVolatility([]float64{100}))
	v := AnnualizedVolatility(upwardSeries(300, 100, 0.002))
	assert.NotNil(t, v)
}
