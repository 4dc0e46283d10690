package adjuster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketgps/internal/domain"
)

func usScore(total float64, confidence int) domain.Score {
	return domain.Score{
		AssetID:     "AAPL.US",
		MarketScope: domain.ScopeUSEU,
		ScoreTotal:  &total,
		Confidence:  confidence,
	}
}

func TestAdjust_HighQualityIsEssentiallyUnchanged(t *testing.T) {
	score := usScore(82, 90)
	gating := domain.GatingStatus{
		DataConfidence:  100,
		Liquidity:       2_500_000,
		Coverage:        0.95,
		StaleRatio:      0.01,
		ZeroVolumeRatio: 0,
	}

	New().Adjust(&score, gating)

	require.NotNil(t, score.ScoreTotal)
	assert.InDelta(t, 82, *score.ScoreTotal, 1.0)
	require.NotNil(t, score.Breakdown.Adjuster)
	assert.Empty(t, score.Breakdown.Adjuster.CapsApplied)
	assert.Equal(t, 90, score.Confidence)
}

func TestAdjust_IlliquidStaleNameIsCapped(t *testing.T) {
	// Raw momentum may look neutral-to-good; the caps still pin the
	// final score at 55 (stale) regardless.
	score := usScore(78, 80)
	gating := domain.GatingStatus{
		DataConfidence:  30,
		Liquidity:       100_000,
		Coverage:        0.90,
		StaleRatio:      0.15,
		ZeroVolumeRatio: 0,
	}

	New().Adjust(&score, gating)

	require.NotNil(t, score.ScoreTotal)
	assert.LessOrEqual(t, *score.ScoreTotal, 55.0)
	assert.GreaterOrEqual(t, *score.ScoreTotal, 0.0)

	require.NotNil(t, score.Breakdown.Adjuster)
	dbg := score.Breakdown.Adjuster
	assert.Equal(t, 78.0, dbg.RawScore)
	assert.GreaterOrEqual(t, len(dbg.CapsApplied), 2)
	assert.Contains(t, dbg.CapsApplied, "adv_usd<250000")
	assert.Contains(t, dbg.CapsApplied, "stale_ratio>0.10")
	// Confidence is capped at the gating confidence.
	assert.Equal(t, 30, score.Confidence)
}

func TestAdjust_LiquidityPenaltyScalesToTarget(t *testing.T) {
	tests := []struct {
		name        string
		adv         float64
		wantPenalty float64
	}{
		{name: "at target no penalty", adv: 2_000_000, wantPenalty: 0},
		{name: "halfway to target", adv: 1_000_000, wantPenalty: 17.5},
		{name: "zero ADV takes the full penalty", adv: 0, wantPenalty: 35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := usScore(90, 90)
			New().Adjust(&score, domain.GatingStatus{
				DataConfidence: 100,
				Liquidity:      tt.adv,
				Coverage:       0.95,
			})
			require.NotNil(t, score.Breakdown.Adjuster)
			assert.InDelta(t, tt.wantPenalty, score.Breakdown.Adjuster.LiquidityPenalty, 1e-9)
		})
	}
}

func TestAdjust_AfricaPassesThrough(t *testing.T) {
	total := 75.5
	score := domain.Score{
		AssetID:     "NPN.JSE",
		MarketScope: domain.ScopeAfrica,
		ScoreTotal:  &total,
		Confidence:  60,
	}

	New().Adjust(&score, domain.GatingStatus{DataConfidence: 10, Liquidity: 0})

	assert.Equal(t, 75.5, *score.ScoreTotal)
	assert.Nil(t, score.Breakdown.Adjuster)
	assert.Equal(t, 60, score.Confidence)
}

func TestAdjust_NilScoreTotalIsUntouched(t *testing.T) {
	score := domain.Score{AssetID: "XYZ.US", MarketScope: domain.ScopeUSEU}
	New().Adjust(&score, domain.GatingStatus{DataConfidence: 100})
	assert.Nil(t, score.ScoreTotal)
	assert.Nil(t, score.Breakdown.Adjuster)
}

func TestAdjust_ResultStaysInBounds(t *testing.T) {
	score := usScore(10, 50)
	New().Adjust(&score, domain.GatingStatus{
		DataConfidence: 20,
		Liquidity:      0,
		Coverage:       0.40,
		StaleRatio:     0.50,
	})
	require.NotNil(t, score.ScoreTotal)
	assert.GreaterOrEqual(t, *score.ScoreTotal, 0.0)
	assert.LessOrEqual(t, *score.ScoreTotal, 100.0)
}
