// Package gating implements the per-scope data-quality gate that
// decides whether an asset is eligible to be scored this cycle. It
// never scores anything itself — it only classifies.
package gating

import (
	"math"
	"time"

	"github.com/aristath/marketgps/internal/domain"
)

// MinUsableBars is the minimum bar count below which no score may be
// computed.
const MinUsableBars = 50

// metricWindow is the trailing window, in bars, over which liquidity,
// staleness, zero-volume and price-floor metrics are measured.
const metricWindow = 60

// Thresholds is the closed set of gating parameters for one scope.
type Thresholds struct {
	MinCoverage  float64 // fraction of expected trading days present
	MinPrice     float64 // penny-stock floor, applied to the window's low
	MaxStale     float64 // fraction of the window repeating the same close
	LookbackDays int     // calendar days the coverage window spans

	// US_EU: ADV floor in USD below which gating refuses outright.
	// The $250K hard floor is enforced downstream by the
	// QualityAdjuster's score cap, so the gate itself sits lower and
	// lets marginal names through for capped scoring.
	MinADVUSD float64

	// AFRICA: raw-ADV floors per asset type (local currency units).
	MinADVEquity float64
	MinADVETF    float64
}

// USEUThresholds are the defaults for scope US_EU. Coverage
// is loose here because the quality adjuster applies further penalties.
var USEUThresholds = Thresholds{
	MinCoverage:  0.60,
	MinPrice:     1.0,
	MaxStale:     0.20,
	LookbackDays: 90,
	MinADVUSD:    100_000,
}

// AfricaThresholds are the defaults for scope AFRICA. The
// ADV floors are raw local-currency units traded, not USD.
var AfricaThresholds = Thresholds{
	MinCoverage:  0.50,
	MinPrice:     0.01,
	MaxStale:     0.20,
	LookbackDays: 90,
	MinADVEquity: 2_000_000,
	MinADVETF:    5_000_000,
}

// ForScope returns the threshold table appropriate to a scope.
func ForScope(scope domain.MarketScope) Thresholds {
	if scope == domain.ScopeAfrica {
		return AfricaThresholds
	}
	return USEUThresholds
}

// currencyFXRisk is the static currency-volatility table backing the
// AFRICA fx_risk field. Values
// are in [0,1]; unlisted currencies get the 0.5 midpoint.
var currencyFXRisk = map[string]float64{
	"ZAR": 0.35,
	"NGN": 0.65,
	"KES": 0.45,
	"EGP": 0.60,
	"GHS": 0.55,
	"MAD": 0.30,
	"TND": 0.40,
	"BWP": 0.30,
	"USD": 0.05,
	"EUR": 0.05,
}

// exchangeLiquidityTier grades AFRICA exchanges by depth, 0 (deepest)
// to 1 (thinnest), feeding liquidity_risk.
var exchangeLiquidityTier = map[string]float64{
	"JSE": 0.15,
	"EG":  0.45,
	"NG":  0.55,
	"KE":  0.60,
	"GH":  0.75,
	"BW":  0.80,
}

// Engine evaluates gating status for assets given their bar history.
type Engine struct{}

// New creates a gating Engine.
func New() *Engine {
	return &Engine{}
}

// Evaluate computes a GatingStatus for one asset's bar series, applying
// the scope-appropriate thresholds.
func (e *Engine) Evaluate(asset domain.Asset, series domain.BarSeries, asOf time.Time) domain.GatingStatus {
	th := ForScope(asset.MarketScope)
	status := domain.GatingStatus{
		AssetID:     asset.AssetID,
		MarketScope: asset.MarketScope,
		UpdatedAt:   asOf,
	}

	if len(series.Bars) == 0 {
		status.Reason = domain.ReasonNoData
		status.DataConfidence = 5
		return status
	}

	last, _ := series.Last()
	status.LastBarDate = &last.Date
	status.HistoryDays = len(series.Bars)

	status.Coverage = coverage(series, asOf, th.LookbackDays)
	status.Liquidity = averageDollarVolume(series, metricWindow)
	status.StaleRatio = staleRatio(series, metricWindow)
	status.ZeroVolumeRatio = zeroVolumeRatio(series, metricWindow)
	status.PriceMin = minLow(series, metricWindow)

	if asset.MarketScope == domain.ScopeAfrica {
		status.FXRisk = fxRisk(asset.Currency)
		status.LiquidityRisk = liquidityRisk(asset.ExchangeCode, status.Liquidity, advFloor(asset.AssetType, th))
		status.DataConfidence = africaConfidence(status, len(series.Bars))
	} else {
		status.DataConfidence = usEUConfidence(status)
	}

	// Check order is fixed: usable bar count, then coverage, then
	// liquidity, then staleness, then the penny-stock floor. Reason
	// reports the first failure.
	switch {
	case len(series.Bars) < MinUsableBars:
		status.Reason = domain.ReasonMinBars
	case status.Coverage < th.MinCoverage:
		status.Reason = domain.ReasonLowCoverage
	case status.Liquidity < advFloor(asset.AssetType, th):
		status.Reason = domain.ReasonLowLiquidity
	case status.StaleRatio > th.MaxStale:
		status.Reason = domain.ReasonStale
	case status.PriceMin < th.MinPrice:
		status.Reason = domain.ReasonPennyStock
	default:
		status.Eligible = true
	}

	return status
}

func advFloor(assetType domain.AssetType, th Thresholds) float64 {
	if th.MinADVUSD > 0 {
		return th.MinADVUSD
	}
	if assetType == domain.AssetETF {
		return th.MinADVETF
	}
	return th.MinADVEquity
}

// coverage counts bars inside the trailing lookback window against the
// expected number of trading days (lookback × 252/365).
func coverage(series domain.BarSeries, asOf time.Time, lookbackDays int) float64 {
	cutoff := asOf.AddDate(0, 0, -lookbackDays)
	present := 0
	for i := len(series.Bars) - 1; i >= 0; i-- {
		if series.Bars[i].Date.Before(cutoff) {
			break
		}
		present++
	}
	expected := float64(lookbackDays) * 252.0 / 365.0
	if expected <= 0 {
		return 0
	}
	cov := float64(present) / expected
	if cov > 1 {
		cov = 1
	}
	return cov
}

// averageDollarVolume computes mean(close × volume) over the last n
// bars — the ADV proxy used throughout gating, universe tiering and
// the quality adjuster.
func averageDollarVolume(series domain.BarSeries, n int) float64 {
	bars := series.Tail(n)
	if len(bars) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bars {
		sum += b.Close * float64(b.Volume)
	}
	return sum / float64(len(bars))
}

// staleRatio is the fraction of the window with zero or near-zero
// percent change in close.
func staleRatio(series domain.BarSeries, window int) float64 {
	bars := series.Tail(window)
	if len(bars) < 2 {
		return 0
	}
	repeats := 0
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		if math.Abs(bars[i].Close-prev)/prev < 1e-4 {
			repeats++
		}
	}
	return float64(repeats) / float64(len(bars)-1)
}

func zeroVolumeRatio(series domain.BarSeries, window int) float64 {
	bars := series.Tail(window)
	if len(bars) == 0 {
		return 0
	}
	zero := 0
	for _, b := range bars {
		if b.Volume == 0 {
			zero++
		}
	}
	return float64(zero) / float64(len(bars))
}

func minLow(series domain.BarSeries, window int) float64 {
	bars := series.Tail(window)
	if len(bars) == 0 {
		return 0
	}
	low := math.MaxFloat64
	for _, b := range bars {
		l := b.Low
		if l == 0 {
			l = b.Close
		}
		if l < low {
			low = l
		}
	}
	return low
}

// US_EU data-confidence targets: coverage ≥ 0.85,
// adv_usd ≥ $2M, stale_ratio ≤ 0.05, zero_volume_ratio ≤ 0.02. Each
// shortfall applies a capped linear penalty; the result clamps to
// [5,100].
const (
	targetCoverage = 0.85
	targetADVUSD   = 2_000_000.0
	targetStale    = 0.05
	targetZeroVol  = 0.02
)

func usEUConfidence(g domain.GatingStatus) float64 {
	conf := 100.0
	conf -= cappedPenalty((targetCoverage-g.Coverage)/targetCoverage*100, 35)
	conf -= cappedPenalty((targetADVUSD-g.Liquidity)/targetADVUSD*100*0.3, 30)
	conf -= cappedPenalty((g.StaleRatio-targetStale)*200, 20)
	conf -= cappedPenalty((g.ZeroVolumeRatio-targetZeroVol)*300, 15)
	return clamp(conf, 5, 100)
}

// africaConfidence blends coverage, FX stability, liquidity tier and
// history length into a single 0..100 figure.
func africaConfidence(g domain.GatingStatus, barCount int) float64 {
	history := float64(barCount) / 252.0
	if history > 1 {
		history = 1
	}
	conf := 100 * (0.30*g.Coverage +
		0.25*(1-g.FXRisk) +
		0.25*(1-g.LiquidityRisk) +
		0.20*history)
	return clamp(conf, 5, 100)
}

func fxRisk(currency string) float64 {
	if risk, ok := currencyFXRisk[currency]; ok {
		return risk
	}
	return 0.5
}

// liquidityRisk combines the exchange's depth tier with the observed
// ADV relative to the scope floor.
func liquidityRisk(exchange string, adv, floor float64) float64 {
	tier, ok := exchangeLiquidityTier[exchange]
	if !ok {
		tier = 0.7
	}

	advRisk := 1.0
	if floor > 0 && adv > 0 {
		ratio := adv / floor
		if ratio >= 5 {
			advRisk = 0
		} else if ratio >= 1 {
			advRisk = (5 - ratio) / 4 * 0.5
		} else {
			advRisk = 1 - ratio*0.5
		}
	}

	return clamp(tier*0.5+advRisk*0.5, 0, 1)
}

func cappedPenalty(p, max float64) float64 {
	if p < 0 {
		return 0
	}
	if p > max {
		return max
	}
	return p
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
