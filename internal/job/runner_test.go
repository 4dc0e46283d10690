package job

import (
	"context"
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

type stubProvider struct {
	name   string
	eodErr error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) EOD(ctx context.Context, asset domain.Asset, from, to time.Time) (domain.BarSeries, error) {
	if p.eodErr != nil {
		return domain.BarSeries{}, p.eodErr
	}
	return domain.BarSeries{AssetID: asset.AssetID}, nil
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

type fixture struct {
	runner *Runner
	store  *database.Store
	bars   *barstore.Store
}

func newFixture(t *testing.T, primary, fallback *stubProvider) fixture {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "marketgps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	store := database.NewStore(db, zerolog.Nop())

	bars := barstore.New(t.TempDir(), zerolog.Nop())
	resil := provider.NewResilience(0, zerolog.Nop())
	adapter := provider.NewAdapter(primary, fallback, resil, provider.SelectAuto)
	runner := NewRunner(store, bars, adapter, locking.NewAssetLocks(16), zerolog.Nop())
	return fixture{runner: runner, store: store, bars: bars}
}

func seedAsset(t *testing.T, store *database.Store, id string, scope domain.MarketScope, tier domain.Tier) {
	t.Helper()
	symbol, exchange, _ := domain.SplitAssetID(id)
	require.NoError(t, store.UpsertAsset(context.Background(), domain.Asset{
		AssetID:       id,
		Symbol:        symbol,
		AssetType:     domain.AssetEquity,
		MarketScope:   scope,
		ExchangeCode:  exchange,
		Tier:          tier,
		PriorityLevel: int(tier),
		Active:        true,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}))
}

// seedBars writes n days of synthetic upward-drifting history ending
// today, so the run works off the cache without provider fetches.
func seedBars(t *testing.T, bars *barstore.Store, scope domain.MarketScope, assetID string, n int) {
	t.Helper()
	zigzag := []float64{0, 0.01, 0.02, 0.01, 0, -0.01, -0.02, -0.01}
	now := time.Now().UTC().Truncate(24 * time.Hour)
	rows := make([]domain.Bar, n)
	base := 100.0
	for i := 0; i < n; i++ {
		base *= 1.0006
		c := base * (1 + zigzag[i%len(zigzag)])
		rows[i] = domain.Bar{
			Date:   now.AddDate(0, 0, i-n+1),
			Open:   c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume: 1_000_000,
		}
	}
	require.NoError(t, bars.Save(scope, assetID, domain.BarSeries{AssetID: assetID, Bars: rows}))
}

func TestRun_HappyRotation(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "primary"}, &stubProvider{name: "fallback"})
	ctx := context.Background()
	seedAsset(t, f.store, "AAPL.US", domain.ScopeUSEU, domain.Tier1)
	seedBars(t, f.bars, domain.ScopeUSEU, "AAPL.US", 300)

	res, err := f.runner.Run(ctx, Params{
		Scope:     domain.ScopeUSEU,
		Type:      domain.JobRotation,
		Mode:      domain.ModeDailyFull,
		BatchSize: 10,
		CreatedBy: "test",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, res.Status)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Success)
	assert.Zero(t, res.Failed)

	score, err := f.store.GetScore(ctx, "AAPL.US")
	require.NoError(t, err)
	require.NotNil(t, score)
	require.NotNil(t, score.ScoreTotal)
	assert.GreaterOrEqual(t, *score.ScoreTotal, 60.0)
	assert.LessOrEqual(t, *score.ScoreTotal, 95.0)
	assert.NotNil(t, score.ScoreMomentum)
	assert.NotNil(t, score.ScoreSafety)
	assert.GreaterOrEqual(t, score.Confidence, 70)
	assert.Contains(t, []domain.StateLabel{domain.StateEquilibre, domain.StateExtensionHaute}, score.StateLabel)

	run, err := f.store.GetJobRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, run.Status)
	assert.Equal(t, 1, run.AssetsSuccess)

	// Staging is drained after the terminal transition.
	n, err := f.store.CountStagedScores(ctx, res.RunID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRun_ProviderFailureCountsAssetNotRun(t *testing.T) {
	authErr := &coreerrors.ProviderError{
		Provider: "primary", Op: "EOD",
		Err: coreerrors.ErrAuthFailure,
	}
	f := newFixture(t,
		&stubProvider{name: "primary", eodErr: authErr},
		&stubProvider{name: "fallback", eodErr: authErr})
	ctx := context.Background()

	seedAsset(t, f.store, "GOOD.US", domain.ScopeUSEU, domain.Tier1)
	seedBars(t, f.bars, domain.ScopeUSEU, "GOOD.US", 300)
	// BAD.US has no cached bars, so the run must fetch — and the
	// fetch fails on both providers.
	seedAsset(t, f.store, "BAD.US", domain.ScopeUSEU, domain.Tier1)

	res, err := f.runner.Run(ctx, Params{
		Scope:     domain.ScopeUSEU,
		Type:      domain.JobRotation,
		Mode:      domain.ModeDailyFull,
		BatchSize: 10,
		CreatedBy: "test",
	})
	require.NoError(t, err, "per-asset failures never fail the run")
	assert.Equal(t, domain.RunSuccess, res.Status)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failed)

	score, err := f.store.GetScore(ctx, "GOOD.US")
	require.NoError(t, err)
	assert.NotNil(t, score)
}

func TestRun_GatingOnlyPublishesNoScores(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "primary"}, &stubProvider{name: "fallback"})
	ctx := context.Background()
	seedAsset(t, f.store, "AAPL.US", domain.ScopeUSEU, domain.Tier1)
	seedBars(t, f.bars, domain.ScopeUSEU, "AAPL.US", 300)

	res, err := f.runner.Run(ctx, Params{
		Scope:     domain.ScopeUSEU,
		Type:      domain.JobGating,
		Mode:      domain.ModeDailyFull,
		BatchSize: 10,
		CreatedBy: "test",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, res.Status)

	g, err := f.store.GetGating(ctx, "AAPL.US")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.True(t, g.Eligible)

	score, err := f.store.GetScore(ctx, "AAPL.US")
	require.NoError(t, err)
	assert.Nil(t, score, "gating runs must not publish scores")
}

func TestRun_CancelledContextNeverPublishes(t *testing.T) {
	f := newFixture(t, &stubProvider{name: "primary"}, &stubProvider{name: "fallback"})
	bg := context.Background()
	seedAsset(t, f.store, "AAPL.US", domain.ScopeUSEU, domain.Tier1)
	seedBars(t, f.bars, domain.ScopeUSEU, "AAPL.US", 300)

	ctx, cancel := context.WithCancel(bg)
	cancel()

	// Run passes the already-cancelled context to its first store call;
	// the run fails there (or rolls back at the first batch boundary)
	// and never publishes.
	_, err := f.runner.Run(ctx, Params{
		Scope:     domain.ScopeUSEU,
		Type:      domain.JobRotation,
		Mode:      domain.ModeDailyFull,
		BatchSize: 10,
		CreatedBy: "test",
	})
	require.Error(t, err)

	score, scoreErr := f.store.GetScore(bg, "AAPL.US")
	require.NoError(t, scoreErr)
	assert.Nil(t, score)
}
