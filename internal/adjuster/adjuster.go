// Package adjuster implements the QualityAdjuster that scales a raw
// composite score down when its supporting data is thin.
// It applies to US_EU only — AFRICA folds data quality directly into
// its FX/liquidity pillars and is returned unchanged.
package adjuster

import (
	"fmt"
	"math"

	"github.com/aristath/marketgps/internal/domain"
)

// Tuning constants. Hard-coded deliberately: the score
// pipeline stays deterministic and auditable, with the breakdown blob
// as the calibration record.
const (
	alpha      = 1.6
	targetADV  = 2_000_000.0
	penaltyMax = 35.0

	capADVFloor    = 250_000.0
	capADVScore    = 60.0
	capCoverage    = 0.85
	capCovScore    = 65.0
	capStaleRatio  = 0.10
	capStaleScore  = 55.0
	capZeroVolPct  = 0.05
	capZeroVolCeil = 55.0
)

// Adjuster applies confidence-weighted damping, a liquidity penalty
// and hard quality caps to a raw US_EU score.
type Adjuster struct{}

// New creates a QualityAdjuster.
func New() *Adjuster {
	return &Adjuster{}
}

// Adjust transforms an already-scored US_EU result in place: damp by
// data confidence, subtract the liquidity penalty, apply hard caps,
// clamp, merge the audit trail into the breakdown and cap the
// score's confidence at the gating confidence.
// Scores from any other scope pass through untouched.
func (a *Adjuster) Adjust(score *domain.Score, gating domain.GatingStatus) {
	if score.MarketScope != domain.ScopeUSEU || score.ScoreTotal == nil {
		return
	}

	raw := *score.ScoreTotal
	debug := domain.AdjusterDebug{RawScore: raw}

	multiplier := math.Pow(clamp01(gating.DataConfidence/100), alpha)
	debug.ConfidenceMultiplier = multiplier
	adjusted := raw * multiplier

	penalty := clamp01((targetADV-gating.Liquidity)/targetADV) * penaltyMax
	debug.LiquidityPenalty = penalty
	adjusted -= penalty

	var caps []string
	capTo := func(ceiling float64, label string) {
		caps = append(caps, label)
		if adjusted > ceiling {
			adjusted = ceiling
		}
	}
	if gating.Liquidity < capADVFloor {
		capTo(capADVScore, fmt.Sprintf("adv_usd<%.0f", capADVFloor))
	}
	if gating.Coverage < capCoverage {
		capTo(capCovScore, fmt.Sprintf("coverage<%.2f", capCoverage))
	}
	if gating.StaleRatio > capStaleRatio {
		capTo(capStaleScore, fmt.Sprintf("stale_ratio>%.2f", capStaleRatio))
	}
	if gating.ZeroVolumeRatio > capZeroVolPct {
		capTo(capZeroVolCeil, fmt.Sprintf("zero_volume_ratio>%.2f", capZeroVolPct))
	}

	if adjusted < 0 {
		adjusted = 0
	}
	if adjusted > 100 {
		adjusted = 100
	}
	debug.CapsApplied = caps
	debug.FinalScore = adjusted

	score.ScoreTotal = &adjusted
	score.Breakdown.Adjuster = &debug
	if dc := int(gating.DataConfidence); dc < score.Confidence {
		score.Confidence = dc
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
