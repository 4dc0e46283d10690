package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketgps/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "marketgps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return NewStore(db, zerolog.Nop())
}

func seedAsset(t *testing.T, s *Store, id string, scope domain.MarketScope, tier domain.Tier) {
	t.Helper()
	symbol, exchange, _ := domain.SplitAssetID(id)
	require.NoError(t, s.UpsertAsset(context.Background(), domain.Asset{
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

func stagedScore(assetID string, scope domain.MarketScope, total float64) domain.Score {
	return domain.Score{
		AssetID:     assetID,
		MarketScope: scope,
		ScoreTotal:  &total,
		Confidence:  80,
		StateLabel:  domain.StateEquilibre,
		Breakdown: domain.Breakdown{
			EngineVersion: "test",
			Weights:       map[string]float64{"momentum": 0.6, "safety": 0.4},
		},
		UpdatedAt: time.Now().UTC(),
	}
}

func TestUpsertAssetIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedAsset(t, s, "AAPL.US", domain.ScopeUSEU, domain.Tier1)
	seedAsset(t, s, "AAPL.US", domain.ScopeUSEU, domain.Tier1)

	assets, err := s.ListActiveAssets(ctx, domain.ScopeUSEU)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestPublishRun_MovesStagingLive(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedAsset(t, s, "AAPL.US", domain.ScopeUSEU, domain.Tier1)

	runID, err := s.CreateJobRun(ctx, domain.ScopeUSEU, domain.JobRotation, domain.ModeDailyFull, "test")
	require.NoError(t, err)
	require.NoError(t, s.StageScores(ctx, runID, []domain.Score{stagedScore("AAPL.US", domain.ScopeUSEU, 88)}))

	// Nothing is live while the run stages.
	score, err := s.GetScore(ctx, "AAPL.US")
	require.NoError(t, err)
	assert.Nil(t, score)

	counts, err := s.PublishRun(ctx, runID, domain.ScopeUSEU, true, true)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.ScoresPublished)

	score, err = s.GetScore(ctx, "AAPL.US")
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Equal(t, 88.0, *score.ScoreTotal)
	assert.Equal(t, map[string]float64{"momentum": 0.6, "safety": 0.4}, score.Breakdown.Weights)

	// Staging is cleared and the run is terminal.
	n, err := s.CountStagedScores(ctx, runID)
	require.NoError(t, err)
	assert.Zero(t, n)
	run, err := s.GetJobRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, run.Status)
}

func TestPublishRun_ScopeIsolation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedAsset(t, s, "AAPL.US", domain.ScopeUSEU, domain.Tier1)
	seedAsset(t, s, "NPN.JSE", domain.ScopeAfrica, domain.Tier1)

	// Seed AAPL.US with a published score of 90 in US_EU.
	usRun, err := s.CreateJobRun(ctx, domain.ScopeUSEU, domain.JobScoring, domain.ModeDailyFull, "test")
	require.NoError(t, err)
	require.NoError(t, s.StageScores(ctx, usRun, []domain.Score{stagedScore("AAPL.US", domain.ScopeUSEU, 90)}))
	_, err = s.PublishRun(ctx, usRun, domain.ScopeUSEU, true, false)
	require.NoError(t, err)

	// Stage and publish an AFRICA run carrying NPN.JSE=75.5 — plus a
	// stray US_EU row that the AFRICA publish must ignore.
	afRun, err := s.CreateJobRun(ctx, domain.ScopeAfrica, domain.JobScoring, domain.ModeDailyFull, "test")
	require.NoError(t, err)
	require.NoError(t, s.StageScores(ctx, afRun, []domain.Score{
		stagedScore("NPN.JSE", domain.ScopeAfrica, 75.5),
		stagedScore("AAPL.US", domain.ScopeUSEU, 10),
	}))
	counts, err := s.PublishRun(ctx, afRun, domain.ScopeAfrica, true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.ScoresPublished)

	aapl, err := s.GetScore(ctx, "AAPL.US")
	require.NoError(t, err)
	require.NotNil(t, aapl)
	assert.Equal(t, 90.0, *aapl.ScoreTotal, "AFRICA publish must not touch US_EU rows")

	npn, err := s.GetScore(ctx, "NPN.JSE")
	require.NoError(t, err)
	require.NotNil(t, npn)
	assert.Equal(t, 75.5, *npn.ScoreTotal)

	// The stray row is gone with the rest of the staging set.
	n, err := s.CountStagedScores(ctx, afRun)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRollbackRun_ClearsStagingAndCancels(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedAsset(t, s, "AAPL.US", domain.ScopeUSEU, domain.Tier1)
	seedAsset(t, s, "MSFT.US", domain.ScopeUSEU, domain.Tier1)
	seedAsset(t, s, "GOOG.US", domain.ScopeUSEU, domain.Tier1)

	runID, err := s.CreateJobRun(ctx, domain.ScopeUSEU, domain.JobScoring, domain.ModeDailyFull, "test")
	require.NoError(t, err)
	require.NoError(t, s.StageScores(ctx, runID, []domain.Score{
		stagedScore("AAPL.US", domain.ScopeUSEU, 80),
		stagedScore("MSFT.US", domain.ScopeUSEU, 81),
		stagedScore("GOOG.US", domain.ScopeUSEU, 82),
	}))

	require.NoError(t, s.RollbackRun(ctx, runID))

	n, err := s.CountStagedScores(ctx, runID)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, id := range []string{"AAPL.US", "MSFT.US", "GOOG.US"} {
		score, err := s.GetScore(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, score, "%s must not be live after rollback", id)
	}

	run, err := s.GetJobRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, run.Status)
}

func TestQueue_AtomicClaim(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.EnqueueJob(ctx, domain.QueueScoreTickers, domain.ScopeUSEU,
		map[string]any{"asset_ids": []any{"AAPL.US"}}, "test")
	require.NoError(t, err)

	item, err := s.FetchNextJobAtomic(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, domain.QueueProcessing, item.Status)
	assert.Equal(t, []any{"AAPL.US"}, item.Payload["asset_ids"])

	// The claimed item is invisible to a second fetch.
	second, err := s.FetchNextJobAtomic(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, s.MarkJobDone(ctx, item.ID))
}

func TestQueue_ScopeFilter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.EnqueueJob(ctx, domain.QueueFullGating, domain.ScopeUSEU, nil, "test")
	require.NoError(t, err)

	africa := domain.ScopeAfrica
	item, err := s.FetchNextJobAtomic(ctx, &africa)
	require.NoError(t, err)
	assert.Nil(t, item)

	useu := domain.ScopeUSEU
	item, err = s.FetchNextJobAtomic(ctx, &useu)
	require.NoError(t, err)
	require.NotNil(t, item)
}

func TestQuota_IncrementAndDailyReset(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	day1 := time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	for i := 1; i <= 3; i++ {
		used, err := s.IncrementUsage(ctx, "u1", domain.PlanFree, day1)
		require.NoError(t, err)
		assert.Equal(t, i, used)
	}

	quota, err := s.GetUserQuota(ctx, "u1", domain.PlanFree, day1)
	require.NoError(t, err)
	assert.Equal(t, 3, quota.DailyUsed)
	assert.True(t, quota.Exhausted())

	// Crossing midnight: the next day starts from a fresh row.
	quota, err = s.GetUserQuota(ctx, "u1", domain.PlanFree, day2)
	require.NoError(t, err)
	assert.Zero(t, quota.DailyUsed)
	used, err := s.IncrementUsage(ctx, "u1", domain.PlanFree, day2)
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}

func TestGating_StageAndPublish(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedAsset(t, s, "AAPL.US", domain.ScopeUSEU, domain.Tier1)

	runID, err := s.CreateJobRun(ctx, domain.ScopeUSEU, domain.JobGating, domain.ModeDailyFull, "test")
	require.NoError(t, err)

	lastBar := time.Date(2026, 5, 29, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.StageGating(ctx, runID, []domain.GatingStatus{{
		AssetID:        "AAPL.US",
		MarketScope:    domain.ScopeUSEU,
		Coverage:       0.97,
		Liquidity:      80_000_000,
		Eligible:       true,
		DataConfidence: 96,
		LastBarDate:    &lastBar,
		UpdatedAt:      time.Now().UTC(),
	}}))

	_, err = s.PublishRun(ctx, runID, domain.ScopeUSEU, false, true)
	require.NoError(t, err)

	g, err := s.GetGating(ctx, "AAPL.US")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.True(t, g.Eligible)
	assert.InDelta(t, 0.97, g.Coverage, 1e-9)
	require.NotNil(t, g.LastBarDate)
	assert.Equal(t, lastBar, g.LastBarDate.UTC())
}

func TestSearchAssets_FiltersAndValidation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedAsset(t, s, "AAPL.US", domain.ScopeUSEU, domain.Tier1)
	seedAsset(t, s, "NPN.JSE", domain.ScopeAfrica, domain.Tier1)

	res, err := s.SearchAssets(ctx, domain.AssetSearchFilter{MarketScope: domain.ScopeUSEU})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "AAPL.US", res.Results[0].Asset.AssetID)

	// market_code is a US_EU concept: rejected for AFRICA.
	_, err = s.SearchAssets(ctx, domain.AssetSearchFilter{
		MarketScope: domain.ScopeAfrica,
		MarketCode:  "US",
	})
	assert.Error(t, err)

	// Text query matches symbols case-insensitively.
	res, err = s.SearchAssets(ctx, domain.AssetSearchFilter{Query: "aap"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestTop50AndRotationState(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedAsset(t, s, "AAPL.US", domain.ScopeUSEU, domain.Tier1)
	seedAsset(t, s, "MSFT.US", domain.ScopeUSEU, domain.Tier1)

	runID, err := s.CreateJobRun(ctx, domain.ScopeUSEU, domain.JobScoring, domain.ModeDailyFull, "test")
	require.NoError(t, err)
	require.NoError(t, s.StageScores(ctx, runID, []domain.Score{
		stagedScore("AAPL.US", domain.ScopeUSEU, 91),
		stagedScore("MSFT.US", domain.ScopeUSEU, 87),
	}))
	_, err = s.PublishRun(ctx, runID, domain.ScopeUSEU, true, false)
	require.NoError(t, err)

	top, err := s.Top50AssetIDs(ctx, domain.ScopeUSEU)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL.US", "MSFT.US"}, top)

	require.NoError(t, s.TouchRotationState(ctx, "AAPL.US", time.Now().UTC(), nil))
	require.NoError(t, s.TouchRotationState(ctx, "AAPL.US", time.Now().UTC(), nil))
	states, err := s.GetRotationStates(ctx, domain.ScopeUSEU)
	require.NoError(t, err)
	assert.Equal(t, 2, states["AAPL.US"].RefreshCount)
	assert.NotNil(t, states["AAPL.US"].LastRefreshAt)
}

func TestPriorityBoosts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedAsset(t, s, "AAPL.US", domain.ScopeUSEU, domain.Tier2)

	now := time.Now().UTC()
	require.NoError(t, s.AddPriorityBoost(ctx, "AAPL.US", "u1", now.Add(time.Hour)))

	boosted, err := s.ListBoostedAssets(ctx, domain.ScopeUSEU, now)
	require.NoError(t, err)
	require.Len(t, boosted, 1)
	assert.Equal(t, "AAPL.US", boosted[0].AssetID)

	// Expired boosts drop out.
	boosted, err = s.ListBoostedAssets(ctx, domain.ScopeUSEU, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, boosted)
}
