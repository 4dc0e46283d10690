// Package indicators computes the raw technical features the scoring
// engine's pillars consume: RSI, SMA, z-score, annualized volatility and
// max drawdown. Every calculator is tolerant of short history — it
// returns an absent (nil) value instead of an error.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// RSI computes the Relative Strength Index over `length` periods,
// returning the most recent value.
func RSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}
	values := talib.Rsi(closes, length)
	if len(values) == 0 || isNaN(values[len(values)-1]) {
		return nil
	}
	v := values[len(values)-1]
	return &v
}

// SMA computes the simple moving average over `period` days, returning
// the most recent value.
func SMA(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	values := talib.Sma(closes, period)
	if len(values) == 0 || isNaN(values[len(values)-1]) {
		return nil
	}
	v := values[len(values)-1]
	return &v
}

// PriceVsSMA returns the percentage distance of the last close from its
// `period`-day SMA: ((last - sma) / sma) * 100.
func PriceVsSMA(closes []float64, period int) *float64 {
	sma := SMA(closes, period)
	if sma == nil || *sma == 0 || len(closes) == 0 {
		return nil
	}
	last := closes[len(closes)-1]
	pct := (last - *sma) / *sma * 100
	return &pct
}

// ZScore computes (last close - SMA(period)) / StdDev(period) over the
// last `period` closes).
func ZScore(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	window := closes[len(closes)-period:]
	mean := stat.Mean(window, nil)
	sd := stat.StdDev(window, nil)
	if sd == 0 {
		return nil
	}
	last := closes[len(closes)-1]
	z := (last - mean) / sd
	return &z
}

// Returns converts a slice of prices to daily percentage returns.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return out
}

// AnnualizedVolatility computes StdDev(daily returns, last min(252, N))
// * sqrt(252) * 100, expressed as a percentage.
func AnnualizedVolatility(closes []float64) *float64 {
	if len(closes) < 2 {
		return nil
	}
	n := len(closes)
	lookback := n
	if lookback > 253 {
		lookback = 253
	}
	window := closes[n-lookback:]
	rets := Returns(window)
	if len(rets) == 0 {
		return nil
	}
	sd := stat.StdDev(rets, nil)
	vol := sd * math.Sqrt(252) * 100
	return &vol
}

// MaxDrawdown computes the worst peak-to-trough decline over the last
// `lookback` closes, as an absolute percentage).
func MaxDrawdown(closes []float64, lookback int) *float64 {
	if len(closes) < 2 {
		return nil
	}
	n := len(closes)
	if lookback > 0 && lookback < n {
		closes = closes[n-lookback:]
	}

	peak := closes[0]
	maxDD := 0.0
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			dd := (peak - c) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	pct := maxDD * 100
	return &pct
}

// Normalize is the single normalization primitive used across the
// scoring engine: clamp value to [lo, hi], scale to 0..100, and invert
// if lower is better.
func Normalize(value, lo, hi float64, invert bool) float64 {
	if hi <= lo {
		return 0
	}
	v := value
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	scaled := (v - lo) / (hi - lo) * 100
	if invert {
		return 100 - scaled
	}
	return scaled
}

func isNaN(f float64) bool {
	return f != f
}
