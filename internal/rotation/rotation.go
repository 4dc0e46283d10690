// Package rotation implements the RotationSelector: the priority-
// ordered, deduplicated working-set builder that decides which assets
// a scoring cycle actually touches without scanning the whole universe.
// The priority order is fixed: current published top-50,
// Tier-1 actives, boosted watchlist names, then the oldest Tier-2
// assets as backfill. hourly_overlay drops the Tier-2 backfill;
// on_demand bypasses selection entirely.
package rotation

import (
	"sort"
	"time"

	"github.com/aristath/marketgps/internal/domain"
)

// Candidates carries the pre-fetched inputs the selector ranks. The
// store hands these over already scope-filtered; the selector itself
// never touches storage.
type Candidates struct {
	// Top50 is the asset-id list of the scope's current published
	// top-50 scores, best first.
	Top50 []string

	// Tier1 is every active Tier-1 asset in the scope.
	Tier1 []domain.Asset

	// Boosted is the set of watchlist/explicit-interest assets whose
	// priority boost has not expired.
	Boosted []BoostedAsset

	// Tier2 is every active Tier-2 asset in the scope, used as
	// backfill in daily_full mode.
	Tier2 []domain.Asset

	// States is the per-asset rotation bookkeeping, keyed by asset id.
	States map[string]domain.RotationState
}

// BoostedAsset is one watchlist/interest entry with its boost expiry.
type BoostedAsset struct {
	AssetID      string
	BoostExpires time.Time
}

// Selector builds the working set of assets for a job run.
type Selector struct{}

// New creates a RotationSelector.
func New() *Selector {
	return &Selector{}
}

// Select returns the deduplicated, priority-ordered list of asset IDs
// to process this run, truncated to batchCap. on_demand
// mode returns the caller's explicit asset list untouched except for
// dedup and the cap.
func (s *Selector) Select(mode domain.JobMode, c Candidates, explicitAssetIDs []string, batchCap int, asOf time.Time) []string {
	if mode == domain.ModeOnDemand {
		return truncate(dedupe(explicitAssetIDs), batchCap)
	}

	var ordered []string

	ordered = append(ordered, c.Top50...)

	for _, a := range c.Tier1 {
		ordered = append(ordered, a.AssetID)
	}

	for _, b := range c.Boosted {
		if b.BoostExpires.After(asOf) {
			ordered = append(ordered, b.AssetID)
		}
	}

	if mode == domain.ModeDailyFull {
		ordered = append(ordered, oldestFirst(c.Tier2, c.States)...)
	}

	return truncate(dedupe(ordered), batchCap)
}

// oldestFirst orders Tier-2 assets by last_refresh_at ascending with
// never-refreshed assets first.
func oldestFirst(assets []domain.Asset, states map[string]domain.RotationState) []string {
	type aged struct {
		assetID string
		at      *time.Time
	}
	candidates := make([]aged, 0, len(assets))
	for _, a := range assets {
		candidates = append(candidates, aged{a.AssetID, states[a.AssetID].LastRefreshAt})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		switch {
		case candidates[i].at == nil:
			return candidates[j].at != nil
		case candidates[j].at == nil:
			return false
		default:
			return candidates[i].at.Before(*candidates[j].at)
		}
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.assetID
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func truncate(ids []string, cap int) []string {
	if cap > 0 && len(ids) > cap {
		return ids[:cap]
	}
	return ids
}
