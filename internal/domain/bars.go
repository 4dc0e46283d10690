package domain

import (
	"sort"
	"time"
)

// Bar is one daily OHLCV row. AdjClose is optional — the provider
// adapters that don't expose split/dividend-adjusted closes leave it nil.
type Bar struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	AdjClose *float64
}

// BarSeries is a per-asset time series of daily bars, sorted ascending
// and date-unique. The zero value is an empty series.
type BarSeries struct {
	AssetID string
	Bars    []Bar
}

// Closes returns the ascending slice of closing prices.
func (s BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the ascending slice of volumes.
func (s BarSeries) Volumes() []int64 {
	out := make([]int64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// Last returns the most recent bar, or false if the series is empty.
func (s BarSeries) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Tail returns the last n bars (fewer if the series is shorter).
func (s BarSeries) Tail(n int) []Bar {
	if n <= 0 || len(s.Bars) == 0 {
		return nil
	}
	if n >= len(s.Bars) {
		return s.Bars
	}
	return s.Bars[len(s.Bars)-n:]
}

// Merge dedupes by date (last write wins) and returns an ascending,
// date-unique series — the upsert semantics the ColumnarBarStore
// builds on.
func Merge(existing, incoming BarSeries) BarSeries {
	byDate := make(map[int64]Bar, len(existing.Bars)+len(incoming.Bars))
	for _, b := range existing.Bars {
		byDate[b.Date.UTC().Truncate(24*time.Hour).Unix()] = b
	}
	for _, b := range incoming.Bars {
		byDate[b.Date.UTC().Truncate(24*time.Hour).Unix()] = b
	}

	merged := make([]Bar, 0, len(byDate))
	for _, b := range byDate {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })

	assetID := existing.AssetID
	if assetID == "" {
		assetID = incoming.AssetID
	}
	return BarSeries{AssetID: assetID, Bars: merged}
}
