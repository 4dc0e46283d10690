package adhoc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketgps/internal/barstore"
	"github.com/aristath/marketgps/internal/coreerrors"
	"github.com/aristath/marketgps/internal/database"
	"github.com/aristath/marketgps/internal/domain"
	"github.com/aristath/marketgps/internal/locking"
	"github.com/aristath/marketgps/internal/provider"
)

// stubProvider serves deterministic synthetic history and counts how
// often it is hit.
type stubProvider struct {
	name     string
	bars     int
	eodCalls int
	eodErr   error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) EOD(ctx context.Context, asset domain.Asset, from, to time.Time) (domain.BarSeries, error) {
	p.eodCalls++
	if p.eodErr != nil {
		return domain.BarSeries{}, p.eodErr
	}
	zigzag := []float64{0, 0.01, 0.02, 0.01, 0, -0.01, -0.02, -0.01}
	bars := make([]domain.Bar, p.bars)
	base := 100.0
	for i := range bars {
		base *= 1.0006
		c := base * (1 + zigzag[i%len(zigzag)])
		bars[i] = domain.Bar{
			Date:   to.AddDate(0, 0, i-p.bars+1),
			Open:   c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume: 1_000_000,
		}
	}
	return domain.BarSeries{AssetID: asset.AssetID, Bars: bars}, nil
}

func (p *stubProvider) Search(context.Context, domain.MarketScope, string) ([]provider.ListingEntry, error) {
	return nil, nil
}
func (p *stubProvider) Listings(context.Context, domain.MarketScope, string) ([]provider.ListingEntry, error) {
	return nil, nil
}
func (p *stubProvider) BulkEOD(context.Context, domain.MarketScope, string, string) (map[string]domain.Bar, error) {
	return nil, nil
}
func (p *stubProvider) Intraday(context.Context, domain.Asset, string, time.Duration) (domain.BarSeries, error) {
	return domain.BarSeries{}, nil
}
func (p *stubProvider) Fundamentals(context.Context, domain.Asset) (*domain.Fundamentals, error) {
	return nil, nil
}
func (p *stubProvider) Health(context.Context) provider.HealthStatus {
	return provider.HealthStatus{Provider: p.name, State: provider.Healthy}
}

func testService(t *testing.T, primary, fallback *stubProvider) (*Service, *database.Store) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "marketgps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	store := database.NewStore(db, zerolog.Nop())

	bars := barstore.New(t.TempDir(), zerolog.Nop())
	resil := provider.NewResilience(0, zerolog.Nop())
	adapter := provider.NewAdapter(primary, fallback, resil, provider.SelectAuto)
	svc := New(store, bars, adapter, locking.NewAssetLocks(16), zerolog.Nop())
	return svc, store
}

func seedUniverseAsset(t *testing.T, store *database.Store, id string, scope domain.MarketScope) {
	t.Helper()
	symbol, exchange, _ := domain.SplitAssetID(id)
	require.NoError(t, store.UpsertAsset(context.Background(), domain.Asset{
		AssetID:      id,
		Symbol:       symbol,
		AssetType:    domain.AssetEquity,
		MarketScope:  scope,
		ExchangeCode: exchange,
		Tier:         domain.Tier1,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}))
}

func TestScoreTicker_FreeUserQuota(t *testing.T) {
	primary := &stubProvider{name: "primary", bars: 300}
	fallback := &stubProvider{name: "fallback", bars: 300}
	svc, store := testService(t, primary, fallback)
	seedUniverseAsset(t, store, "AAPL.US", domain.ScopeUSEU)
	ctx := context.Background()

	req := Request{UserID: "u1", Plan: domain.PlanFree, Ticker: "AAPL", ForceRefresh: true}

	for i := 0; i < 3; i++ {
		res, err := svc.ScoreTicker(ctx, req)
		require.NoError(t, err)
		require.NotNil(t, res.Score.ScoreTotal)
		assert.Equal(t, "primary", res.DataSource)
	}

	quota, err := store.GetUserQuota(ctx, "u1", domain.PlanFree, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, quota.DailyUsed)

	callsBefore := primary.eodCalls
	_, err = svc.ScoreTicker(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerrors.ErrQuotaExceeded)
	assert.Equal(t, callsBefore, primary.eodCalls, "a quota-blocked call must not hit the provider")

	quota, err = store.GetUserQuota(ctx, "u1", domain.PlanFree, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, quota.DailyUsed)
}

func TestScoreTicker_CachedScoreSkipsQuota(t *testing.T) {
	primary := &stubProvider{name: "primary", bars: 300}
	svc, store := testService(t, primary, &stubProvider{name: "fallback", bars: 300})
	seedUniverseAsset(t, store, "AAPL.US", domain.ScopeUSEU)
	ctx := context.Background()

	req := Request{UserID: "u1", Plan: domain.PlanFree, Ticker: "AAPL", ForceRefresh: true}
	_, err := svc.ScoreTicker(ctx, req)
	require.NoError(t, err)

	req.ForceRefresh = false
	res, err := svc.ScoreTicker(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, "cache", res.DataSource)

	quota, err := store.GetUserQuota(ctx, "u1", domain.PlanFree, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, quota.DailyUsed, "cache hits do not consume quota")
}

func TestScoreTicker_FallsBackOnQuotaExhausted(t *testing.T) {
	primary := &stubProvider{
		name:   "primary",
		bars:   300,
		eodErr: &coreerrors.ProviderError{Provider: "primary", Op: "EOD", Err: coreerrors.ErrQuotaExhausted},
	}
	fallback := &stubProvider{name: "fallback", bars: 300}
	svc, store := testService(t, primary, fallback)
	seedUniverseAsset(t, store, "AAPL.US", domain.ScopeUSEU)

	res, err := svc.ScoreTicker(context.Background(), Request{
		UserID: "u1", Plan: domain.PlanMonthly, Ticker: "AAPL", ForceRefresh: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.DataSource)
	assert.Equal(t, 1, fallback.eodCalls)
}

func TestScoreTicker_InsufficientData(t *testing.T) {
	primary := &stubProvider{name: "primary", bars: 30}
	svc, store := testService(t, primary, &stubProvider{name: "fallback", bars: 30})
	seedUniverseAsset(t, store, "AAPL.US", domain.ScopeUSEU)

	_, err := svc.ScoreTicker(context.Background(), Request{
		UserID: "u1", Plan: domain.PlanFree, Ticker: "AAPL", ForceRefresh: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerrors.ErrInsufficientData))
}

func TestScoreTicker_AddToUniverse(t *testing.T) {
	primary := &stubProvider{name: "primary", bars: 300}
	svc, store := testService(t, primary, &stubProvider{name: "fallback", bars: 300})
	ctx := context.Background()

	res, err := svc.ScoreTicker(ctx, Request{
		UserID: "u1", Plan: domain.PlanPro, Ticker: "SHOP", ForceRefresh: true, AddToUniverse: true,
	})
	require.NoError(t, err)
	assert.False(t, res.WasInUniverse)
	assert.True(t, res.AddedToUniverse)

	asset, err := store.GetAsset(ctx, "SHOP.US")
	require.NoError(t, err)
	assert.Equal(t, domain.Tier3, asset.Tier)
	assert.False(t, asset.Active)

	score, err := store.GetScore(ctx, "SHOP.US")
	require.NoError(t, err)
	require.NotNil(t, score)
}
