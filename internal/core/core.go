// Package core is the dependency-injection context that wires config,
// stores, providers and engines into the callable operation surface
// the HTTP layer, scheduler and CLI consume.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketgps/internal/adhoc"
	"github.com/aristath/marketgps/internal/barstore"
	"github.com/aristath/marketgps/internal/config"
	"github.com/aristath/marketgps/internal/database"
	"github.com/aristath/marketgps/internal/domain"
	"github.com/aristath/marketgps/internal/job"
	"github.com/aristath/marketgps/internal/locking"
	"github.com/aristath/marketgps/internal/provider"
	"github.com/aristath/marketgps/internal/scheduler"
	"github.com/aristath/marketgps/internal/universe"
	"github.com/aristath/marketgps/pkg/logger"
)

// scopeExchanges lists the exchanges a universe rebuild sweeps per
// scope.
var scopeExchanges = map[domain.MarketScope][]string{
	domain.ScopeUSEU:   {"US", "LSE", "PA", "XETRA"},
	domain.ScopeAfrica: {"JSE", "NG", "KE", "EG"},
}

// Core owns every long-lived component of the scoring pipeline.
type Core struct {
	Cfg      *config.Config
	Store    *database.Store
	Bars     *barstore.Store
	Adapter  *provider.Adapter
	Runner   *job.Runner
	Universe *universe.Builder
	AdHoc    *adhoc.Service
	Locks    *locking.AssetLocks
	log      zerolog.Logger

	db *database.DB
}

// New constructs a fully wired Core from configuration.
func New(cfg *config.Config, log zerolog.Logger) (*Core, error) {
	db, err := database.New(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	store := database.NewStore(db, log)
	bars := barstore.New(cfg.BarsDir(), log)

	resil := provider.NewResilience(3, log)
	// Primary: ~5 rps aggregate; fallback: one call per 500ms.
	resil.Configure("eodhd", 5, 1)
	resil.Configure("yahoo_fallback", 2, 1)

	primary := provider.NewEODHDClient(cfg.EODHDAPIKey, cfg.EODHDBaseURL, log)
	fallback := provider.NewYahooFallbackClient(log)
	adapter := provider.NewAdapter(primary, fallback, resil, provider.SelectAuto)

	locks := locking.NewAssetLocks(256)

	c := &Core{
		Cfg:      cfg,
		Store:    store,
		Bars:     bars,
		Adapter:  adapter,
		Runner:   job.NewRunner(store, bars, adapter, locks, log),
		Universe: universe.New(adapter, store, log),
		AdHoc:    adhoc.New(store, bars, adapter, locks, log),
		Locks:    locks,
		log:      logger.Component(log, "core"),
		db:       db,
	}
	return c, nil
}

// Close releases the Core's resources.
func (c *Core) Close() error {
	return c.db.Close()
}

// RunRotation executes a rotation run.
func (c *Core) RunRotation(ctx context.Context, scope domain.MarketScope, mode domain.JobMode, batchSize int, assetIDs []string) (domain.JobResult, error) {
	return c.run(ctx, scope, domain.JobRotation, mode, batchSize, assetIDs)
}

// RunGating executes a gating-only run.
func (c *Core) RunGating(ctx context.Context, scope domain.MarketScope, mode domain.JobMode, batchSize int, assetIDs []string) (domain.JobResult, error) {
	return c.run(ctx, scope, domain.JobGating, mode, batchSize, assetIDs)
}

// RunScoring executes a scoring run over cached bars.
func (c *Core) RunScoring(ctx context.Context, scope domain.MarketScope, mode domain.JobMode, batchSize int, assetIDs []string) (domain.JobResult, error) {
	return c.run(ctx, scope, domain.JobScoring, mode, batchSize, assetIDs)
}

func (c *Core) run(ctx context.Context, scope domain.MarketScope, jobType domain.JobType, mode domain.JobMode, batchSize int, assetIDs []string) (domain.JobResult, error) {
	if batchSize <= 0 {
		batchSize = c.Cfg.RotationBatchSize
	}
	return c.Runner.Run(ctx, job.Params{
		Scope:     scope,
		Type:      jobType,
		Mode:      mode,
		BatchSize: batchSize,
		AssetIDs:  assetIDs,
		CreatedBy: "core",
	})
}

// RebuildUniverse refreshes a scope's asset universe.
func (c *Core) RebuildUniverse(ctx context.Context, scope domain.MarketScope) (int, error) {
	return c.Universe.Rebuild(ctx, scope, scopeExchanges[scope], time.Now().UTC())
}

// ScoreTicker runs on-demand single-asset scoring.
func (c *Core) ScoreTicker(ctx context.Context, req adhoc.Request) (*adhoc.Result, error) {
	return c.AdHoc.ScoreTicker(ctx, req)
}

// SearchAssets runs the filtered, paginated asset listing.
func (c *Core) SearchAssets(ctx context.Context, filter domain.AssetSearchFilter) (domain.SearchResult, error) {
	return c.Store.SearchAssets(ctx, filter)
}

// TopScores returns a scope's best published scores.
func (c *Core) TopScores(ctx context.Context, scope domain.MarketScope, limit int) ([]domain.Score, error) {
	return c.Store.TopScores(ctx, scope, limit)
}

// EnqueueJob appends a work unit to the persistent queue.
func (c *Core) EnqueueJob(ctx context.Context, jobType domain.QueueJobType, scope domain.MarketScope, payload map[string]any, requestedBy string) (string, error) {
	return c.Store.EnqueueJob(ctx, jobType, scope, payload, requestedBy)
}

// GetJobRun returns one run's row.
func (c *Core) GetJobRun(ctx context.Context, runID string) (*domain.JobRun, error) {
	return c.Store.GetJobRun(ctx, runID)
}

// RecentJobs lists the latest runs.
func (c *Core) RecentJobs(ctx context.Context, limit int) ([]domain.JobRun, error) {
	return c.Store.RecentJobs(ctx, limit)
}

// HandleQueueItem dispatches a claimed queue item to its handler.
func (c *Core) HandleQueueItem(ctx context.Context, item domain.QueueItem) error {
	switch item.JobType {
	case domain.QueueScoreTickers:
		assetIDs := payloadAssetIDs(item.Payload)
		if len(assetIDs) == 0 {
			return fmt.Errorf("core: SCORE_TICKERS item %s has no asset_ids", item.ID)
		}
		_, err := c.RunRotation(ctx, item.MarketScope, domain.ModeOnDemand, len(assetIDs), assetIDs)
		return err

	case domain.QueueRefreshUniverse:
		_, err := c.RebuildUniverse(ctx, item.MarketScope)
		return err

	case domain.QueueFullGating:
		_, err := c.RunGating(ctx, item.MarketScope, domain.ModeDailyFull, c.Cfg.RotationBatchSize, nil)
		return err

	default:
		return fmt.Errorf("core: unknown queue job type %q", item.JobType)
	}
}

func payloadAssetIDs(payload map[string]any) []string {
	raw, ok := payload["asset_ids"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// RegisterSchedules wires the four periodic jobs per scope onto a
// scheduler.
func (c *Core) RegisterSchedules(ctx context.Context, sched *scheduler.Scheduler) error {
	cadence := scheduler.Cadence{
		RotationMinutes: c.Cfg.ScheduleRotationMinutes,
		GatingHours:     c.Cfg.ScheduleGatingHours,
		UniverseDays:    c.Cfg.ScheduleUniverseDays,
	}
	rotationSched, gatingSched, universeSched, workerSched := cadence.Schedules()

	for _, scope := range []domain.MarketScope{domain.ScopeUSEU, domain.ScopeAfrica} {
		scope := scope

		if err := sched.AddJob(rotationSched, scheduler.FuncJob{
			JobName: fmt.Sprintf("rotation_%s", scope.Dir()),
			Fn: func() error {
				_, err := c.RunRotation(ctx, scope, domain.ModeHourlyOverlay, c.Cfg.RotationBatchSize, nil)
				return err
			},
		}); err != nil {
			return err
		}

		if err := sched.AddJob(gatingSched, scheduler.FuncJob{
			JobName: fmt.Sprintf("gating_%s", scope.Dir()),
			Fn: func() error {
				_, err := c.RunGating(ctx, scope, domain.ModeDailyFull, c.Cfg.RotationBatchSize, nil)
				return err
			},
		}); err != nil {
			return err
		}

		if err := sched.AddJob(universeSched, scheduler.FuncJob{
			JobName: fmt.Sprintf("universe_%s", scope.Dir()),
			Fn: func() error {
				_, err := c.RebuildUniverse(ctx, scope)
				return err
			},
		}); err != nil {
			return err
		}
	}

	worker := scheduler.NewWorker(c.Store, c, nil, 5, c.log)
	return sched.AddJob(workerSched, scheduler.FuncJob{
		JobName: "queue_worker",
		Fn: func() error {
			_, err := worker.Tick(ctx)
			return err
		},
	})
}
