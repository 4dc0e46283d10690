// Package adhoc implements the on-demand single-asset scoring path:
// resolve a raw ticker, enforce the user's daily quota, fetch history
// primary-first, score, and persist directly to the published table.
// All caller-visible failures are typed — the service
// never returns silent success with a missing score.
package adhoc

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
	"github.com/aristath/marketgps/internal/scoring"
)

// cacheMaxAge is how fresh a published score must be to short-circuit
// a non-forced request without consuming quota.
const cacheMaxAge = 24 * time.Hour

// minBars is the usable-history floor for on-demand scoring.
const minBars = gating.MinUsableBars

// Request is one on-demand scoring call.
type Request struct {
	UserID        string
	Plan          domain.Plan
	Ticker        string
	Exchange      string
	AssetType     domain.AssetType
	ForceRefresh  bool
	AddToUniverse bool
}

// Result is the composite on-demand scoring response.
type Result struct {
	Score           domain.Score
	Gating          domain.GatingStatus
	DataSource      string
	Cached          bool
	WasInUniverse   bool
	AddedToUniverse bool
}

// Service is the AdHocService.
type Service struct {
	store   *database.Store
	bars    *barstore.Store
	adapter *provider.Adapter
	gate    *gating.Engine
	engine  *scoring.Engine
	adjust  *adjuster.Adjuster
	locks   *locking.AssetLocks
	log     zerolog.Logger

	// now is swappable for tests that exercise the midnight rollover.
	now func() time.Time
}

// New wires an AdHocService.
func New(store *database.Store, bars *barstore.Store, adapter *provider.Adapter, locks *locking.AssetLocks, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		bars:    bars,
		adapter: adapter,
		gate:    gating.New(),
		engine:  scoring.New(),
		adjust:  adjuster.New(),
		locks:   locks,
		log:     log.With().Str("component", "adhoc").Logger(),
		now:     time.Now,
	}
}

// ScoreTicker runs the full on-demand pipeline.
func (s *Service) ScoreTicker(ctx context.Context, req Request) (*Result, error) {
	resolved, ok := Resolve(req.Ticker, req.Exchange, req.AssetType, "US")
	if !ok {
		return nil, fmt.Errorf("adhoc: %q: %w", req.Ticker, coreerrors.ErrAssetNotFound)
	}

	wasInUniverse := true
	asset, err := s.store.GetAsset(ctx, resolved.AssetID)
	if errors.Is(err, coreerrors.ErrAssetNotFound) {
		wasInUniverse = false
		asset = domain.Asset{
			AssetID:     resolved.AssetID,
			Symbol:      resolved.Symbol,
			AssetType:   resolved.AssetType,
			MarketScope: resolved.MarketScope,
			ExchangeCode: resolved.Exchange,
			Tier:        domain.Tier3,
		}
	} else if err != nil {
		return nil, err
	}

	now := s.now()

	if !req.ForceRefresh {
		if cached, err := s.store.GetScore(ctx, resolved.AssetID); err == nil && cached != nil {
			if now.Sub(cached.UpdatedAt) < cacheMaxAge {
				return &Result{Score: *cached, DataSource: "cache", Cached: true, WasInUniverse: wasInUniverse}, nil
			}
		}
	}

	quota, err := s.store.GetUserQuota(ctx, req.UserID, req.Plan, now)
	if err != nil {
		return nil, err
	}
	if quota.Exhausted() {
		return nil, &coreerrors.QuotaError{UserID: req.UserID, Date: quota.Date, Limit: quota.DailyLimit}
	}

	to := now.UTC()
	from := to.AddDate(0, 0, -420)
	series, source, err := s.adapter.EODPrimaryFirst(ctx, asset, from, to)
	if err != nil {
		return nil, fmt.Errorf("adhoc: fetch %s: %w", resolved.AssetID, err)
	}
	if len(series.Bars) < minBars {
		return nil, fmt.Errorf("adhoc: %s has %d bars, need %d: %w",
			resolved.AssetID, len(series.Bars), minBars, coreerrors.ErrInsufficientData)
	}

	var merged domain.BarSeries
	if err := s.locks.WithLock(resolved.AssetID, func() error {
		var lockErr error
		merged, lockErr = s.bars.Upsert(asset.MarketScope, resolved.AssetID, series)
		return lockErr
	}); err != nil {
		return nil, err
	}

	var fundamentals *domain.Fundamentals
	if resolved.AssetType == domain.AssetEquity {
		fundamentals, _ = s.adapter.Fundamentals(ctx, asset)
	}

	status := s.gate.Evaluate(asset, merged, now.UTC())
	score := s.engine.Score(asset, merged, fundamentals, status, now.UTC())
	s.adjust.Adjust(&score, status)

	addedToUniverse := false
	if req.AddToUniverse && !wasInUniverse {
		asset.Active = false
		asset.PriorityLevel = int(domain.Tier3)
		asset.CreatedAt = now.UTC()
		asset.UpdatedAt = now.UTC()
		if err := s.store.UpsertAsset(ctx, asset); err != nil {
			return nil, err
		}
		addedToUniverse = true
	}

	if wasInUniverse || addedToUniverse {
		if err := s.store.UpsertGating(ctx, status); err != nil {
			return nil, err
		}
		if err := s.store.UpsertScore(ctx, score); err != nil {
			return nil, err
		}
	}

	if _, err := s.store.IncrementUsage(ctx, req.UserID, req.Plan, now); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("asset", resolved.AssetID).
		Str("source", source).
		Str("user", req.UserID).
		Msg("adhoc score computed")

	return &Result{
		Score:           score,
		Gating:          status,
		DataSource:      source,
		WasInUniverse:   wasInUniverse,
		AddedToUniverse: addedToUniverse,
	}, nil
}
