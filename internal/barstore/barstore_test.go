package barstore

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketgps/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), zerolog.Nop())
}

func bars(dates ...string) []domain.Bar {
	out := make([]domain.Bar, len(dates))
	for i, d := range dates {
		ts, _ := time.Parse("2006-01-02", d)
		out[i] = domain.Bar{Date: ts, Open: 10, High: 11, Low: 9, Close: 10 + float64(i), Volume: 1000}
	}
	return out
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	series := domain.BarSeries{AssetID: "AAPL.US", Bars: bars("2026-01-02", "2026-01-05", "2026-01-06")}

	require.NoError(t, s.Save(domain.ScopeUSEU, "AAPL.US", series))

	loaded, err := s.Load(domain.ScopeUSEU, "AAPL.US")
	require.NoError(t, err)
	assert.Equal(t, series.Bars, loaded.Bars)
}

func TestLoadMissingReturnsEmptySeries(t *testing.T) {
	s := testStore(t)
	loaded, err := s.Load(domain.ScopeUSEU, "NOPE.US")
	require.NoError(t, err)
	assert.Empty(t, loaded.Bars)
	assert.Equal(t, "NOPE.US", loaded.AssetID)
}

func TestUpsertMergesLastWriteWins(t *testing.T) {
	s := testStore(t)
	first := domain.BarSeries{AssetID: "AAPL.US", Bars: bars("2026-01-02", "2026-01-05")}
	require.NoError(t, s.Save(domain.ScopeUSEU, "AAPL.US", first))

	overlap := domain.BarSeries{AssetID: "AAPL.US", Bars: bars("2026-01-05", "2026-01-06")}
	overlap.Bars[0].Close = 99

	merged, err := s.Upsert(domain.ScopeUSEU, "AAPL.US", overlap)
	require.NoError(t, err)
	require.Len(t, merged.Bars, 3)
	assert.Equal(t, 99.0, merged.Bars[1].Close)

	// Upserting identical input leaves the stored series unchanged.
	again, err := s.Upsert(domain.ScopeUSEU, "AAPL.US", overlap)
	require.NoError(t, err)
	assert.Equal(t, merged.Bars, again.Bars)
}

func TestScopeIsolationOnDisk(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(domain.ScopeUSEU, "AAPL.US", domain.BarSeries{AssetID: "AAPL.US", Bars: bars("2026-01-02")}))

	loaded, err := s.Load(domain.ScopeAfrica, "AAPL.US")
	require.NoError(t, err)
	assert.Empty(t, loaded.Bars)

	ids, err := s.ListSymbols(domain.ScopeAfrica)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListSymbolsAndStats(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(domain.ScopeUSEU, "AAPL.US", domain.BarSeries{AssetID: "AAPL.US", Bars: bars("2026-01-02", "2026-01-05")}))
	require.NoError(t, s.Save(domain.ScopeUSEU, "MSFT.US", domain.BarSeries{AssetID: "MSFT.US", Bars: bars("2026-01-02")}))

	ids, err := s.ListSymbols(domain.ScopeUSEU)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL.US", "MSFT.US"}, ids)

	stats, err := s.ScopeStats(domain.ScopeUSEU)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.AssetCount)
	assert.Equal(t, 3, stats.TotalBars)
}

func TestDeleteBars(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(domain.ScopeUSEU, "AAPL.US", domain.BarSeries{AssetID: "AAPL.US", Bars: bars("2026-01-02")}))
	require.NoError(t, s.DeleteBars(domain.ScopeUSEU, "AAPL.US"))

	n, err := s.BarCount(domain.ScopeUSEU, "AAPL.US")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Deleting a missing asset is a no-op.
	require.NoError(t, s.DeleteBars(domain.ScopeUSEU, "AAPL.US"))
}
