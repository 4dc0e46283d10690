package scoring

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketgps/internal/domain"
)

// driftSeries builds n daily bars with a gentle upward drift and a
// short zig-zag so volatility stays moderate and the z-score never
// spikes.
func driftSeries(assetID string, n int, asOf time.Time) domain.BarSeries {
	zigzag := []float64{0, 0.01, 0.02, 0.01, 0, -0.01, -0.02, -0.01}
	bars := make([]domain.Bar, n)
	base := 100.0
	for i := 0; i < n; i++ {
		base *= 1.0006
		c := base * (1 + zigzag[i%len(zigzag)])
		bars[i] = domain.Bar{
			Date:   asOf.AddDate(0, 0, i-n+1),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return domain.BarSeries{AssetID: assetID, Bars: bars}
}

func eligibleGating(scope domain.MarketScope, lastBar time.Time) domain.GatingStatus {
	return domain.GatingStatus{
		MarketScope:    scope,
		Coverage:       1.0,
		Liquidity:      5_000_000,
		StaleRatio:     0,
		Eligible:       true,
		DataConfidence: 95,
		LastBarDate:    &lastBar,
	}
}

func usEquity() domain.Asset {
	return domain.Asset{AssetID: "AAPL.US", AssetType: domain.AssetEquity, MarketScope: domain.ScopeUSEU}
}

func TestScore_HealthyUSEquity(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	series := driftSeries("AAPL.US", 300, asOf)

	score := New().Score(usEquity(), series, nil, eligibleGating(domain.ScopeUSEU, asOf), asOf)

	require.NotNil(t, score.ScoreTotal)
	assert.GreaterOrEqual(t, *score.ScoreTotal, 60.0)
	assert.LessOrEqual(t, *score.ScoreTotal, 95.0)
	assert.NotNil(t, score.ScoreMomentum)
	assert.NotNil(t, score.ScoreSafety)
	assert.GreaterOrEqual(t, score.Confidence, 70)
	assert.Contains(t, []domain.StateLabel{domain.StateEquilibre, domain.StateExtensionHaute}, score.StateLabel)
	assert.False(t, score.FundamentalsAvailable)
}

func TestScore_WeightsSumToOneOverActivePillars(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		asset domain.Asset
	}{
		{name: "US_EU equity without fundamentals", asset: usEquity()},
		{name: "US_EU ETF", asset: domain.Asset{AssetID: "SPY.US", AssetType: domain.AssetETF, MarketScope: domain.ScopeUSEU}},
		{name: "AFRICA equity", asset: domain.Asset{AssetID: "NPN.JSE", AssetType: domain.AssetEquity, MarketScope: domain.ScopeAfrica}},
		{name: "crypto", asset: domain.Asset{AssetID: "BTC-USD.CC", AssetType: domain.AssetCrypto, MarketScope: domain.ScopeUSEU}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := driftSeries(tt.asset.AssetID, 300, asOf)
			score := New().Score(tt.asset, series, nil, eligibleGating(tt.asset.MarketScope, asOf), asOf)

			require.NotNil(t, score.ScoreTotal)
			var sum float64
			for _, w := range score.Breakdown.Weights {
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}

func TestScore_ValuePillarUsesFundamentals(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	series := driftSeries("AAPL.US", 300, asOf)

	pe := 18.0
	margin := 24.0
	roe := 20.0
	fundamentals := &domain.Fundamentals{
		AssetID:      "AAPL.US",
		PERatio:      &pe,
		ProfitMargin: &margin,
		ROE:          &roe,
	}

	score := New().Score(usEquity(), series, fundamentals, eligibleGating(domain.ScopeUSEU, asOf), asOf)

	require.NotNil(t, score.ScoreValue)
	assert.True(t, score.FundamentalsAvailable)
	assert.InDelta(t, 0.40, score.Breakdown.Weights["momentum"], 1e-9)
	assert.InDelta(t, 0.30, score.Breakdown.Weights["safety"], 1e-9)
	assert.InDelta(t, 0.30, score.Breakdown.Weights["value"], 1e-9)
}

func TestScore_AfricaCarriesRiskPillars(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	asset := domain.Asset{AssetID: "NPN.JSE", AssetType: domain.AssetEquity, MarketScope: domain.ScopeAfrica}
	series := driftSeries("NPN.JSE", 300, asOf)

	gating := eligibleGating(domain.ScopeAfrica, asOf)
	gating.FXRisk = 0.35
	gating.LiquidityRisk = 0.25

	score := New().Score(asset, series, nil, gating, asOf)

	require.NotNil(t, score.ScoreFXRisk)
	assert.InDelta(t, 65.0, *score.ScoreFXRisk, 1e-9)
	require.NotNil(t, score.ScoreLiquidityRisk)
	require.NotNil(t, score.ScoreTotal)
	assert.GreaterOrEqual(t, *score.ScoreTotal, 0.0)
	assert.LessOrEqual(t, *score.ScoreTotal, 100.0)
}

func TestScore_ShortHistoryYieldsNullTotal(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	series := driftSeries("NEW.US", 49, asOf)

	score := New().Score(usEquity(), series, nil, eligibleGating(domain.ScopeUSEU, asOf), asOf)

	assert.Nil(t, score.ScoreTotal)
	assert.Equal(t, domain.StateNA, score.StateLabel)
	// The audit trail still carries whatever features were computable.
	assert.NotNil(t, score.Breakdown.Features.RSI)
}

func TestScore_IneligibleAssetYieldsNullTotal(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	series := driftSeries("XYZ.US", 300, asOf)

	gating := domain.GatingStatus{MarketScope: domain.ScopeUSEU, Eligible: false, Reason: domain.ReasonLowLiquidity}
	score := New().Score(usEquity(), series, nil, gating, asOf)

	assert.Nil(t, score.ScoreTotal)
	assert.Equal(t, domain.StateNA, score.StateLabel)
}

func TestScore_BreakdownRoundTrip(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	series := driftSeries("AAPL.US", 300, asOf)

	score := New().Score(usEquity(), series, nil, eligibleGating(domain.ScopeUSEU, asOf), asOf)

	blob, err := json.Marshal(score.Breakdown)
	require.NoError(t, err)

	var decoded domain.Breakdown
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Equal(t, score.Breakdown.EngineVersion, decoded.EngineVersion)
	assert.Equal(t, score.Breakdown.Weights, decoded.Weights)
	assert.Equal(t, score.Breakdown.PillarScores, decoded.PillarScores)
}

func TestStateLabel(t *testing.T) {
	f := func(z, rsi *float64) domain.Features { return domain.Features{ZScore: z, RSI: rsi} }
	ptr := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		in   domain.Features
		want domain.StateLabel
	}{
		{name: "no data", in: f(nil, nil), want: domain.StateNA},
		{name: "high extension", in: f(ptr(2.5), ptr(60)), want: domain.StateExtensionHaute},
		{name: "low extension", in: f(ptr(-2.3), ptr(45)), want: domain.StateExtensionBasse},
		{name: "bullish stress", in: f(ptr(1.0), ptr(85)), want: domain.StateStressHaussier},
		{name: "bearish stress", in: f(ptr(-0.5), ptr(15)), want: domain.StateStressBaissier},
		{name: "equilibrium", in: f(ptr(0.4), ptr(55)), want: domain.StateEquilibre},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateLabel(tt.in))
		})
	}
}
