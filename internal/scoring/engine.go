// Package scoring orchestrates the indicator and pillar stages into
// the single composite Score a scoring cycle publishes per asset.
// It is the one place that knows how the pillars combine
// — the pillars themselves stay ignorant of weighting, and the US_EU
// quality adjustment runs as a separate pass after this engine, never
// inside it.
package scoring

import (
	"time"

	"github.com/aristath/marketgps/internal/domain"
	"github.com/aristath/marketgps/internal/scoring/indicators"
	"github.com/aristath/marketgps/internal/scoring/pillars"
)

const engineVersion = "marketgps-scoring-v1"

// MinBars is the usable-history floor below which score_total stays
// null.
const MinBars = 50

// baseWeights returns the pillar-weight table row for an asset.
// Pillars with no computed value get their weight redistributed
// proportionally across the rest before the weighted sum.
func baseWeights(asset domain.Asset) map[string]float64 {
	if asset.AssetType.IsAlternative() && asset.AssetType != domain.AssetBond {
		return map[string]float64{"momentum": 0.60, "safety": 0.40}
	}

	if asset.MarketScope == domain.ScopeAfrica {
		switch {
		case asset.AssetType == domain.AssetBond:
			return map[string]float64{
				"momentum": 0.25, "safety": 0.45, "value": 0.10,
				"fx_risk": 0.10, "liquidity_risk": 0.10,
			}
		case asset.AssetType.HasValuePillar():
			return map[string]float64{
				"momentum": 0.35, "safety": 0.25, "value": 0.20,
				"fx_risk": 0.10, "liquidity_risk": 0.10,
			}
		default: // ETF and everything else without a Value pillar
			return map[string]float64{
				"momentum": 0.40, "safety": 0.30,
				"fx_risk": 0.15, "liquidity_risk": 0.15,
			}
		}
	}

	if asset.AssetType.HasValuePillar() {
		return map[string]float64{"momentum": 0.40, "safety": 0.30, "value": 0.30}
	}
	return map[string]float64{"momentum": 0.60, "safety": 0.40}
}

// Engine computes composite scores from bar history, fundamentals and
// gating status.
type Engine struct{}

// New creates a scoring Engine.
func New() *Engine {
	return &Engine{}
}

// Score computes the full composite score for one asset.
// The returned ScoreTotal is nil when the asset has fewer than MinBars
// usable bars or failed gating; raw metrics and the breakdown are
// still populated for the audit trail.
func (e *Engine) Score(asset domain.Asset, series domain.BarSeries, fundamentals *domain.Fundamentals, gating domain.GatingStatus, asOf time.Time) domain.Score {
	closes := series.Closes()

	features := domain.Features{
		RSI:         indicators.RSI(closes, 14),
		ZScore:      indicators.ZScore(closes, 20),
		VolAnnual:   indicators.AnnualizedVolatility(closes),
		MaxDrawdown: indicators.MaxDrawdown(closes, 252),
		SMA200:      indicators.SMA(closes, 200),
		PriceVsSMA:  indicators.PriceVsSMA(closes, 200),
	}

	var lastPrice *float64
	if last, ok := series.Last(); ok {
		v := last.Close
		lastPrice = &v
	}

	score := domain.Score{
		AssetID:               asset.AssetID,
		MarketScope:           asset.MarketScope,
		RSI:                   features.RSI,
		ZScore:                features.ZScore,
		VolAnnual:             features.VolAnnual,
		MaxDrawdown:           features.MaxDrawdown,
		SMA200:                features.SMA200,
		LastPrice:             lastPrice,
		FundamentalsAvailable: fundamentals != nil,
		UpdatedAt:             asOf,
	}

	pillarScores := map[string]float64{}
	momentum := pillars.Momentum(features.RSI, features.PriceVsSMA)
	if momentum.Available {
		pillarScores["momentum"] = momentum.Score
	}
	safety := pillars.Safety(features.VolAnnual, features.MaxDrawdown)
	if safety.Available {
		pillarScores["safety"] = safety.Score
	}

	if asset.AssetType.HasValuePillar() || asset.AssetType == domain.AssetBond {
		if fundamentals != nil {
			features.PERatio = fundamentals.PERatio
			features.ProfitMargin = fundamentals.ProfitMargin
			features.ROE = fundamentals.ROE
			if value := pillars.Value(fundamentals.PERatio, fundamentals.ProfitMargin, fundamentals.ROE); value.Available {
				pillarScores["value"] = value.Score
			}
		}
	}

	if asset.MarketScope == domain.ScopeAfrica {
		fx := pillars.FXRisk(gating.FXRisk)
		liq := pillars.LiquidityRisk(1-gating.LiquidityRisk, advBoost(gating.Liquidity))
		pillarScores["fx_risk"] = fx.Score
		pillarScores["liquidity_risk"] = liq.Score
		score.ScoreFXRisk = &fx.Score
		score.ScoreLiquidityRisk = &liq.Score
	}

	score.StateLabel = stateLabel(features)

	if len(closes) < MinBars || !gating.Eligible {
		score.StateLabel = domain.StateNA
		score.Breakdown = domain.Breakdown{
			EngineVersion: engineVersion,
			ComputedAt:    asOf,
			Features:      features,
			PillarScores:  pillarScores,
		}
		return score
	}

	weights := renormalize(baseWeights(asset), pillarScores)
	total := clamp(weightedSum(pillarScores, weights), 0, 100)
	score.ScoreTotal = &total

	if v, ok := pillarScores["value"]; ok {
		score.ScoreValue = &v
	}
	if v, ok := pillarScores["momentum"]; ok {
		score.ScoreMomentum = &v
	}
	if v, ok := pillarScores["safety"]; ok {
		score.ScoreSafety = &v
	}

	confidenceComponents := domain.ConfidenceComponents{
		Coverage:           gating.Coverage * 100,
		Freshness:          freshness(gating.LastBarDate, asOf),
		PillarAvailability: pillarAvailability(weights, baseWeights(asset)),
	}
	if asset.MarketScope == domain.ScopeAfrica {
		v := (1 - (gating.FXRisk+gating.LiquidityRisk)/2) * 100
		confidenceComponents.FXLiquidity = &v
	}
	score.Confidence = int(clamp(blendConfidence(gating.DataConfidence, confidenceComponents), 0, 100))

	score.Breakdown = domain.Breakdown{
		EngineVersion: engineVersion,
		ComputedAt:    asOf,
		Weights:       weights,
		Features:      features,
		PillarScores:  pillarScores,
		Confidence:    confidenceComponents,
	}

	return score
}

// advBoost maps raw ADV relative to the AFRICA floor to [0,1], feeding
// the liquidity-risk pillar.
func advBoost(adv float64) float64 {
	const floor = 2_000_000.0
	const ceiling = 5 * floor
	if adv >= ceiling {
		return 1
	}
	if adv <= floor {
		return adv / floor * 0.5
	}
	return 0.5 + (adv-floor)/(ceiling-floor)*0.5
}

// renormalize drops weights for pillars with no available score and
// rescales the rest to sum to 1.
func renormalize(base map[string]float64, available map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base))
	var total float64
	for k, w := range base {
		if _, ok := available[k]; ok {
			out[k] = w
			total += w
		}
	}
	if total == 0 {
		return out
	}
	for k := range out {
		out[k] /= total
	}
	return out
}

func weightedSum(scores, weights map[string]float64) float64 {
	var sum float64
	for k, w := range weights {
		sum += scores[k] * w
	}
	return sum
}

// freshness scores the age of the last bar: same-day data is 100,
// decaying linearly to 0 at 30 days old.
func freshness(lastBarDate *time.Time, asOf time.Time) float64 {
	if lastBarDate == nil {
		return 0
	}
	ageDays := asOf.Sub(*lastBarDate).Hours() / 24
	if ageDays <= 0 {
		return 100
	}
	if ageDays >= 30 {
		return 0
	}
	return (1 - ageDays/30) * 100
}

func pillarAvailability(active, base map[string]float64) float64 {
	if len(base) == 0 {
		return 0
	}
	return float64(len(active)) / float64(len(base)) * 100
}

func blendConfidence(dataConfidence float64, c domain.ConfidenceComponents) float64 {
	blend := dataConfidence*0.45 + c.Coverage*0.20 + c.Freshness*0.15 + c.PillarAvailability*0.10
	if c.FXLiquidity != nil {
		blend += *c.FXLiquidity * 0.10
	} else {
		blend += c.PillarAvailability * 0.10
	}
	return blend
}

// stateLabel classifies the asset's position relative to its recent
// range.
func stateLabel(f domain.Features) domain.StateLabel {
	if f.ZScore == nil && f.RSI == nil {
		return domain.StateNA
	}
	if f.ZScore != nil {
		if *f.ZScore > 2 {
			return domain.StateExtensionHaute
		}
		if *f.ZScore < -2 {
			return domain.StateExtensionBasse
		}
	}
	if f.RSI != nil {
		if *f.RSI > 80 {
			return domain.StateStressHaussier
		}
		if *f.RSI < 20 {
			return domain.StateStressBaissier
		}
	}
	return domain.StateEquilibre
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
