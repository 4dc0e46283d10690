package domain

import "time"

// StateLabel summarizes where price sits relative to its recent range.
type StateLabel string

const (
	StateEquilibre      StateLabel = "EQUILIBRE"
	StateExtensionHaute StateLabel = "EXTENSION_HAUTE"
	StateExtensionBasse StateLabel = "EXTENSION_BASSE"
	StateStressHaussier StateLabel = "STRESS_HAUSSIER"
	StateStressBaissier StateLabel = "STRESS_BAISSIER"
	StateNA             StateLabel = "NA"
)

// Features is the closed set of raw/normalized values the scoring engine
// computes, serialized explicitly into a Score's breakdown instead of a
// free-form dict.
type Features struct {
	RSI         *float64 `json:"rsi,omitempty"`
	ZScore      *float64 `json:"zscore,omitempty"`
	VolAnnual   *float64 `json:"vol_annual,omitempty"`
	MaxDrawdown *float64 `json:"max_drawdown,omitempty"`
	SMA200      *float64 `json:"sma200,omitempty"`
	PriceVsSMA  *float64 `json:"price_vs_sma,omitempty"`
	PERatio     *float64 `json:"pe_ratio,omitempty"`
	ProfitMargin *float64 `json:"profit_margin,omitempty"`
	ROE         *float64 `json:"roe,omitempty"`
	// Extra carries forward-compatible values the closed feature set
	// above doesn't name yet.
	Extra map[string]float64 `json:"extra,omitempty"`
}

// ConfidenceComponents is the per-input breakdown of the confidence score.
type ConfidenceComponents struct {
	Coverage          float64 `json:"coverage"`
	Freshness         float64 `json:"freshness"`
	PillarAvailability float64 `json:"pillar_availability"`
	FXLiquidity       *float64 `json:"fx_liquidity,omitempty"`
}

// AdjusterDebug is the QualityAdjuster's audit trail, merged into the
// breakdown only for US_EU scores.
type AdjusterDebug struct {
	RawScore            float64  `json:"raw_score"`
	ConfidenceMultiplier float64 `json:"confidence_multiplier"`
	LiquidityPenalty    float64  `json:"liquidity_penalty"`
	CapsApplied         []string `json:"caps_applied,omitempty"`
	FinalScore          float64  `json:"final_score"`
}

// Breakdown is a Score's self-describing audit trail: engine version,
// the exact weights used, the raw features, the normalized pillar
// values, and the confidence contributions.
type Breakdown struct {
	EngineVersion   string               `json:"engine_version"`
	ComputedAt      time.Time            `json:"computed_at"`
	Weights         map[string]float64   `json:"weights"`
	Features        Features             `json:"features"`
	PillarScores    map[string]float64   `json:"pillar_scores"`
	Confidence      ConfidenceComponents `json:"confidence"`
	Adjuster        *AdjusterDebug       `json:"adjuster,omitempty"`
}

// Score is the published (or staged) per-asset composite scoring result.
type Score struct {
	AssetID              string
	MarketScope          MarketScope
	ScoreTotal           *float64 // nil iff <50 usable bars or ineligible
	ScoreValue           *float64
	ScoreMomentum        *float64
	ScoreSafety          *float64
	ScoreFXRisk          *float64 // AFRICA only
	ScoreLiquidityRisk   *float64 // AFRICA only
	Confidence           int      // 0..100
	StateLabel           StateLabel
	RSI                  *float64
	ZScore               *float64
	VolAnnual            *float64
	MaxDrawdown          *float64
	SMA200               *float64
	LastPrice            *float64
	FundamentalsAvailable bool
	Breakdown            Breakdown
	UpdatedAt            time.Time
}
