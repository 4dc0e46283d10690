// Package job implements the JobRunner: one orchestrated run over a
// selected set of assets, staging gating and scoring results under a
// run_id and swapping them live in a single per-scope publish, or
// rolling the whole thing back. Per-asset failures are
// counted but never abort the run; only run-level failures (store
// unavailable, publish aborted) fail it.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketgps/internal/adjuster"
	"github.com/aristath/marketgps/internal/barstore"
	"github.com/aristath/marketgps/internal/coreerrors"
	"github.com/aristath/marketgps/internal/database"
	"github.com/aristath/marketgps/internal/domain"
	"github.com/aristath/marketgps/internal/gating"
	"github.com/aristath/marketgps/internal/locking"
	"github.com/aristath/marketgps/internal/provider"
	"github.com/aristath/marketgps/internal/rotation"
	"github.com/aristath/marketgps/internal/scoring"
)

// barStaleAfter is how old a cached bar file may be before the run
// refetches it from the provider.
const barStaleAfter = 7 * 24 * time.Hour

// historyLookbackDays bounds the first fetch for an asset with no
// cached history.
const historyLookbackDays = 420

// Params configures one run.
type Params struct {
	Scope     domain.MarketScope
	Type      domain.JobType
	Mode      domain.JobMode
	BatchSize int
	AssetIDs  []string // on_demand mode only
	CreatedBy string
}

// Runner executes runs against the shared stores and engines.
type Runner struct {
	store    *database.Store
	bars     *barstore.Store
	adapter  *provider.Adapter
	gate     *gating.Engine
	engine   *scoring.Engine
	adjust   *adjuster.Adjuster
	selector *rotation.Selector
	locks    *locking.AssetLocks
	log      zerolog.Logger
}

// NewRunner wires a JobRunner.
func NewRunner(store *database.Store, bars *barstore.Store, adapter *provider.Adapter, locks *locking.AssetLocks, log zerolog.Logger) *Runner {
	return &Runner{
		store:    store,
		bars:     bars,
		adapter:  adapter,
		gate:     gating.New(),
		engine:   scoring.New(),
		adjust:   adjuster.New(),
		selector: rotation.New(),
		locks:    locks,
		log:      log.With().Str("component", "job_runner").Logger(),
	}
}

// Run executes the full stage→publish protocol for one job.
// Cancellation is cooperative: the context is checked at batch
// boundaries and triggers a rollback.
func (r *Runner) Run(ctx context.Context, p Params) (domain.JobResult, error) {
	start := time.Now()

	if p.BatchSize <= 0 {
		p.BatchSize = 50
	}

	runID, err := r.store.CreateJobRun(ctx, p.Scope, p.Type, p.Mode, p.CreatedBy)
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("job: create run: %w", err)
	}
	log := r.log.With().Str("run_id", runID).Str("scope", string(p.Scope)).Str("type", string(p.Type)).Logger()

	assetIDs, err := r.selectAssets(ctx, p)
	if err != nil {
		_ = r.store.FailRun(ctx, runID, err)
		return failedResult(runID, start, err), err
	}
	log.Info().Int("selected", len(assetIDs)).Str("mode", string(p.Mode)).Msg("run started")

	var processed, succeeded, failed int
	refreshBars := p.Type == domain.JobRotation
	stageScores := p.Type == domain.JobRotation || p.Type == domain.JobScoring
	stageGating := true

	for batchStart := 0; batchStart < len(assetIDs); batchStart += p.BatchSize {
		if err := ctx.Err(); err != nil {
			_ = r.store.RollbackRun(context.WithoutCancel(ctx), runID)
			return domain.JobResult{
				RunID: runID, Status: domain.RunCancelled,
				Processed: processed, Success: succeeded, Failed: failed,
				DurationS: time.Since(start).Seconds(), Error: err.Error(),
			}, err
		}

		end := batchStart + p.BatchSize
		if end > len(assetIDs) {
			end = len(assetIDs)
		}
		for _, assetID := range assetIDs[batchStart:end] {
			processed++
			if err := r.processAsset(ctx, runID, p, assetID, refreshBars, stageGating, stageScores); err != nil {
				failed++
				log.Warn().Err(err).Str("asset", assetID).Msg("asset failed")
				_ = r.store.TouchRotationState(ctx, assetID, time.Now().UTC(), err)
				continue
			}
			succeeded++
			_ = r.store.TouchRotationState(ctx, assetID, time.Now().UTC(), nil)
		}
	}

	if err := r.store.UpdateJobRunStatus(ctx, runID, domain.RunStaging, processed, succeeded, failed); err != nil {
		_ = r.store.FailRun(ctx, runID, err)
		return failedResult(runID, start, err), err
	}

	counts, err := r.store.PublishRun(ctx, runID, p.Scope, stageScores, stageGating)
	if err != nil {
		_ = r.store.FailRun(ctx, runID, err)
		return failedResult(runID, start, err), err
	}

	if stageScores {
		if top50, err := r.store.Top50AssetIDs(ctx, p.Scope); err == nil {
			_ = r.store.MarkTop50(ctx, p.Scope, top50)
		}
	}

	log.Info().
		Int("processed", processed).
		Int("success", succeeded).
		Int("failed", failed).
		Int("scores_published", counts.ScoresPublished).
		Int("gating_published", counts.GatingPublished).
		Msg("run published")

	return domain.JobResult{
		RunID:     runID,
		Status:    domain.RunSuccess,
		Processed: processed,
		Success:   succeeded,
		Failed:    failed,
		DurationS: time.Since(start).Seconds(),
	}, nil
}

// selectAssets builds the run's working set.
func (r *Runner) selectAssets(ctx context.Context, p Params) ([]string, error) {
	if p.Mode == domain.ModeOnDemand {
		return r.selector.Select(p.Mode, rotation.Candidates{}, p.AssetIDs, p.BatchSize, time.Now()), nil
	}

	top50, err := r.store.Top50AssetIDs(ctx, p.Scope)
	if err != nil {
		return nil, err
	}
	tier1, err := r.store.ListAssetsByTier(ctx, p.Scope, domain.Tier1)
	if err != nil {
		return nil, err
	}
	tier2, err := r.store.ListAssetsByTier(ctx, p.Scope, domain.Tier2)
	if err != nil {
		return nil, err
	}
	boosted, err := r.store.ListBoostedAssets(ctx, p.Scope, time.Now())
	if err != nil {
		return nil, err
	}
	states, err := r.store.GetRotationStates(ctx, p.Scope)
	if err != nil {
		return nil, err
	}

	c := rotation.Candidates{
		Top50:   top50,
		Tier1:   tier1,
		Tier2:   tier2,
		Boosted: boosted,
		States:  states,
	}
	// The cap bounds one run's working set, not one DB batch: a full
	// daily sweep passes 0, so its working set is not capped.
	cap := p.BatchSize
	if p.Mode == domain.ModeDailyFull {
		cap = 0
	}
	return r.selector.Select(p.Mode, c, nil, cap, time.Now()), nil
}

// processAsset runs the per-asset pipeline: refresh bars if stale,
// gate, and — when the asset clears the gate — score, adjust and
// stage.
func (r *Runner) processAsset(ctx context.Context, runID string, p Params, assetID string, refreshBars, stageGating, stageScores bool) error {
	asset, err := r.store.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}

	return r.locks.WithLock(assetID, func() error {
		series, err := r.bars.Load(p.Scope, assetID)
		if err != nil {
			return err
		}

		if refreshBars && r.barsStale(series) {
			series, err = r.refreshBars(ctx, asset, series)
			if err != nil && len(series.Bars) == 0 {
				return err
			}
			// A failed delta fetch on top of usable cached history is
			// a per-asset warning, not a failure.
		}

		now := time.Now().UTC()
		status := r.gate.Evaluate(asset, series, now)
		if stageGating {
			if err := r.store.StageGating(ctx, runID, []domain.GatingStatus{status}); err != nil {
				return err
			}
		}

		if !stageScores || !status.Eligible {
			return nil
		}

		var fundamentals *domain.Fundamentals
		if asset.AssetType.HasValuePillar() {
			fundamentals, _ = r.adapter.Fundamentals(ctx, asset)
		}

		score := r.engine.Score(asset, series, fundamentals, status, now)
		r.adjust.Adjust(&score, status)
		return r.store.StageScores(ctx, runID, []domain.Score{score})
	})
}

func (r *Runner) barsStale(series domain.BarSeries) bool {
	last, ok := series.Last()
	if !ok {
		return true
	}
	return time.Since(last.Date) > barStaleAfter
}

func (r *Runner) refreshBars(ctx context.Context, asset domain.Asset, existing domain.BarSeries) (domain.BarSeries, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -historyLookbackDays)
	if last, ok := existing.Last(); ok {
		from = last.Date.AddDate(0, 0, 1)
	}

	fetched, err := r.adapter.EOD(ctx, asset, from, to)
	if err != nil {
		if errors.Is(err, coreerrors.ErrInsufficientData) {
			return existing, nil
		}
		return existing, err
	}
	return r.bars.Upsert(asset.MarketScope, asset.AssetID, fetched)
}

func failedResult(runID string, start time.Time, err error) domain.JobResult {
	return domain.JobResult{
		RunID:     runID,
		Status:    domain.RunFailed,
		DurationS: time.Since(start).Seconds(),
		Error:     err.Error(),
	}
}
