package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidAssetID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{id: "AAPL.US", want: true},
		{id: "npn.jse", want: true},
		{id: "BTC-USD.CC", want: true},
		{id: "EURUSD.FOREX", want: true},
		{id: "AAPL", want: false},
		{id: ".US", want: false},
		{id: "AAPL.", want: false},
		{id: "AA PL.US", want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidAssetID(tt.id), tt.id)
	}
}

func TestSplitAssetID_CryptoPair(t *testing.T) {
	symbol, exchange, ok := SplitAssetID("BTC-USD.CC")
	require.True(t, ok)
	assert.Equal(t, "BTC-USD", symbol)
	assert.Equal(t, "CC", exchange)
}

func TestMerge_DedupesLastWriteWins(t *testing.T) {
	day := func(d string, close float64) Bar {
		ts, _ := time.Parse("2006-01-02", d)
		return Bar{Date: ts, Close: close}
	}
	existing := BarSeries{AssetID: "AAPL.US", Bars: []Bar{day("2026-01-02", 10), day("2026-01-05", 11)}}
	incoming := BarSeries{AssetID: "AAPL.US", Bars: []Bar{day("2026-01-05", 99), day("2026-01-03", 10.5)}}

	merged := Merge(existing, incoming)

	require.Len(t, merged.Bars, 3)
	assert.Equal(t, 10.0, merged.Bars[0].Close)
	assert.Equal(t, 10.5, merged.Bars[1].Close)
	assert.Equal(t, 99.0, merged.Bars[2].Close, "incoming row wins on duplicate date")
	assert.True(t, merged.Bars[0].Date.Before(merged.Bars[1].Date))
}

func TestMerge_Idempotent(t *testing.T) {
	day := func(d string) Bar {
		ts, _ := time.Parse("2006-01-02", d)
		return Bar{Date: ts, Close: 10}
	}
	series := BarSeries{AssetID: "AAPL.US", Bars: []Bar{day("2026-01-02"), day("2026-01-05")}}

	once := Merge(series, series)
	twice := Merge(once, series)
	assert.Equal(t, once, twice)
}

func TestPlanQuotas(t *testing.T) {
	assert.Equal(t, 3, PlanFree.DailyLimit())
	assert.Equal(t, 200, PlanMonthly.DailyLimit())
	assert.True(t, PlanYearly.Unlimited())
	assert.True(t, PlanEnterprise.Unlimited())

	q := UserQuota{Plan: PlanFree, DailyUsed: 3, DailyLimit: 3}
	assert.True(t, q.Exhausted())
	assert.Zero(t, q.Remaining())

	q = UserQuota{Plan: PlanYearly, DailyUsed: 1 << 20, DailyLimit: PlanYearly.DailyLimit()}
	assert.False(t, q.Exhausted())
}

func TestAssetSearchFilter_Validate(t *testing.T) {
	low, high := 20.0, 80.0

	tests := []struct {
		name    string
		filter  AssetSearchFilter
		wantErr bool
	}{
		{name: "empty filter", filter: AssetSearchFilter{}},
		{name: "market code with US_EU", filter: AssetSearchFilter{MarketScope: ScopeUSEU, MarketCode: "US"}},
		{name: "market code with AFRICA", filter: AssetSearchFilter{MarketScope: ScopeAfrica, MarketCode: "US"}, wantErr: true},
		{name: "region with US_EU", filter: AssetSearchFilter{MarketScope: ScopeUSEU, Region: "WEST_AFRICA"}, wantErr: true},
		{name: "country in region", filter: AssetSearchFilter{MarketScope: ScopeAfrica, Region: "WEST_AFRICA", Country: "NG"}},
		{name: "country outside region", filter: AssetSearchFilter{MarketScope: ScopeAfrica, Region: "WEST_AFRICA", Country: "KE"}, wantErr: true},
		{name: "unknown region", filter: AssetSearchFilter{MarketScope: ScopeAfrica, Region: "MOON", Country: "NG"}, wantErr: true},
		{name: "score range ok", filter: AssetSearchFilter{MinScore: &low, MaxScore: &high}},
		{name: "inverted score range", filter: AssetSearchFilter{MinScore: &high, MaxScore: &low}, wantErr: true},
		{name: "whitelisted sort", filter: AssetSearchFilter{Sort: SortScoreTotal}},
		{name: "unknown sort", filter: AssetSearchFilter{Sort: SortField("sql_injection")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
