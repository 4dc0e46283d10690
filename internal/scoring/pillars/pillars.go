// Package pillars computes the Momentum/Safety/Value/FX-risk/Liquidity-risk
// component scores that feed the composite score. Each
// pillar is an average of whichever of its components have a value;
// components with no value (missing fundamentals, too little history)
// are simply excluded rather than forcing a zero.
package pillars

import (
	"math"

	"github.com/aristath/marketgps/internal/scoring/indicators"
)

// PillarResult carries a pillar's 0..100 score plus the individual
// component scores that went into it, for the breakdown audit trail.
type PillarResult struct {
	Score      float64
	Components map[string]float64
	Available  bool
}

func avg(components map[string]float64) PillarResult {
	if len(components) == 0 {
		return PillarResult{Available: false}
	}
	var sum float64
	for _, v := range components {
		sum += v
	}
	return PillarResult{
		Score:      sum / float64(len(components)),
		Components: components,
		Available:  true,
	}
}

// rsiShaped scores RSI with a peak at 55,
// penalized when below 40 or above 70.
func rsiShaped(rsi float64) float64 {
	switch {
	case rsi >= 45 && rsi <= 65:
		// Near the 55 sweet spot: full marks, tapering toward the edges.
		dist := math.Abs(rsi - 55)
		return 100 - dist*1.5
	case rsi < 45 && rsi >= 40:
		return 70 - (45-rsi)*4
	case rsi > 65 && rsi <= 70:
		return 70 - (rsi-65)*4
	case rsi < 40:
		return math.Max(0, 50-(40-rsi)*2)
	default: // > 70
		return math.Max(0, 50-(rsi-70)*2)
	}
}

// Momentum combines an RSI-shaped score with normalized price-vs-SMA200.
func Momentum(rsi, priceVsSMA200 *float64) PillarResult {
	components := map[string]float64{}
	if rsi != nil {
		components["rsi"] = rsiShaped(*rsi)
	}
	if priceVsSMA200 != nil {
		// ±20% band: -20% -> 0, 0% -> 50, +20% -> 100.
		components["price_vs_sma200"] = indicators.Normalize(*priceVsSMA200, -20, 20, false)
	}
	return avg(components)
}

// Safety combines inverted normalized volatility and inverted
// normalized drawdown.
func Safety(volAnnual, maxDrawdown *float64) PillarResult {
	components := map[string]float64{}
	if volAnnual != nil {
		components["volatility"] = indicators.Normalize(*volAnnual, 5, 50, true)
	}
	if maxDrawdown != nil {
		components["drawdown"] = indicators.Normalize(*maxDrawdown, 0, 40, true)
	}
	return avg(components)
}

// Value combines inverted P/E, normalized profit margin and normalized
// ROE — only meaningful for equities/funds with fundamentals.
func Value(peRatio, profitMarginPct, roePct *float64) PillarResult {
	components := map[string]float64{}
	if peRatio != nil && *peRatio > 0 {
		components["pe_ratio"] = indicators.Normalize(*peRatio, 5, 50, true)
	}
	if profitMarginPct != nil {
		components["profit_margin"] = indicators.Normalize(*profitMarginPct, 0, 30, false)
	}
	if roePct != nil {
		components["roe"] = indicators.Normalize(*roePct, 0, 25, false)
	}
	return avg(components)
}

// FXRisk converts a raw [0,1] FX volatility estimate into a 0..100
// score where lower risk scores higher.
func FXRisk(fxRiskRaw float64) PillarResult {
	score := (1 - clamp01(fxRiskRaw)) * 100
	return PillarResult{
		Score:      score,
		Components: map[string]float64{"fx_risk": score},
		Available:  true,
	}
}

// LiquidityRisk converts a tier-based composite (boosted by ADV) into a
// 0..100 score where higher liquidity/lower risk scores higher.
// tierScore is expected in [0,1] (1 = most liquid tier), advBoost in
// [0,1] (1 = ADV comfortably above the scope floor).
func LiquidityRisk(tierScore, advBoost float64) PillarResult {
	composite := clamp01(tierScore)*0.6 + clamp01(advBoost)*0.4
	score := composite * 100
	return PillarResult{
		Score:      score,
		Components: map[string]float64{"tier": tierScore * 100, "adv_boost": advBoost * 100},
		Available:  true,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
