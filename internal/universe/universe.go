// Package universe rebuilds the tradable asset universe for a scope:
// pull exchange listings, estimate average dollar volume from a
// bulk-EOD snapshot, assign liquidity tiers, and decide which assets
// stay active. Two provider calls per exchange — one list-symbols,
// one bulk-EOD — price the whole universe; no per-asset endpoint is
// ever hit here.
package universe

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/marketgps/internal/domain"
	"github.com/aristath/marketgps/internal/provider"
)

// TierThresholds assigns Tier1..Tier4 by estimated average dollar
// volume and caps how many assets each scope activates.
type TierThresholds struct {
	Tier1ADV float64
	Tier2ADV float64
	Tier3ADV float64

	Tier1Limit int
	Tier2Limit int
}

// USEUTiers are the default liquidity tiers for scope US_EU.
var USEUTiers = TierThresholds{
	Tier1ADV:   5_000_000,
	Tier2ADV:   1_000_000,
	Tier3ADV:   100_000,
	Tier1Limit: 2000,
	Tier2Limit: 1000,
}

// AfricaTiers are the default liquidity tiers for scope AFRICA.
var AfricaTiers = TierThresholds{
	Tier1ADV:   500_000,
	Tier2ADV:   100_000,
	Tier3ADV:   10_000,
	Tier1Limit: 500,
	Tier2Limit: 500,
}

func tiersFor(scope domain.MarketScope) TierThresholds {
	if scope == domain.ScopeAfrica {
		return AfricaTiers
	}
	return USEUTiers
}

// Store is the subset of the relational store the builder needs.
type Store interface {
	UpsertAssets(ctx context.Context, scope domain.MarketScope, assets []domain.Asset) error
	DeactivateMissing(ctx context.Context, scope domain.MarketScope, seenAssetIDs []string) error
}

// Builder rebuilds a scope's universe from provider listings and a
// bulk-EOD ADV snapshot.
type Builder struct {
	adapter *provider.Adapter
	store   Store
	log     zerolog.Logger
}

// New creates a universe Builder.
func New(adapter *provider.Adapter, store Store, log zerolog.Logger) *Builder {
	return &Builder{adapter: adapter, store: store, log: log.With().Str("component", "universe_builder").Logger()}
}

// Rebuild fetches every exchange's listings for a scope, estimates ADV
// from the bulk-EOD snapshot (close × volume), assigns tiers, caps the
// active set at Tier1Limit+Tier2Limit sorted by ADV descending, and
// upserts the result. Tier 3 and 4 assets are
// stored inactive, eligible for on-demand scoring only.
func (b *Builder) Rebuild(ctx context.Context, scope domain.MarketScope, exchanges []string, asOf time.Time) (int, error) {
	th := tiersFor(scope)
	date := asOf.Format("2006-01-02")

	var allAssets []domain.Asset
	advByID := map[string]float64{}

	for _, exchange := range exchanges {
		listings, err := b.adapter.Listings(ctx, scope, exchange)
		if err != nil {
			b.log.Warn().Err(err).Str("exchange", exchange).Msg("listings fetch failed, skipping exchange")
			continue
		}

		bulk, err := b.adapter.BulkEOD(ctx, scope, exchange, date)
		if err != nil {
			b.log.Warn().Err(err).Str("exchange", exchange).Msg("bulk EOD fetch failed; tiers will default to Tier4")
		}

		for _, l := range listings {
			allAssets = append(allAssets, domain.Asset{
				AssetID:      l.AssetID,
				Symbol:       l.Symbol,
				Name:         l.Name,
				AssetType:    l.AssetType,
				MarketScope:  scope,
				MarketCode:   exchange,
				ExchangeCode: exchange,
				Currency:     l.Currency,
				Country:      l.Country,
				CreatedAt:    asOf,
				UpdatedAt:    asOf,
			})
			if bar, ok := bulk[l.AssetID]; ok {
				advByID[l.AssetID] = bar.Close * float64(bar.Volume)
			}
		}
	}

	assignTiers(allAssets, advByID, th)
	activateByADV(allAssets, advByID, th)

	if err := b.store.UpsertAssets(ctx, scope, allAssets); err != nil {
		return 0, fmt.Errorf("universe: upsert: %w", err)
	}

	ids := make([]string, 0, len(allAssets))
	for _, a := range allAssets {
		ids = append(ids, a.AssetID)
	}
	if err := b.store.DeactivateMissing(ctx, scope, ids); err != nil {
		return 0, fmt.Errorf("universe: deactivate missing: %w", err)
	}

	b.log.Info().
		Str("scope", string(scope)).
		Int("assets", len(allAssets)).
		Msg("universe rebuilt")
	return len(allAssets), nil
}

func assignTiers(assets []domain.Asset, advByID map[string]float64, th TierThresholds) {
	for i := range assets {
		adv := advByID[assets[i].AssetID]
		switch {
		case adv >= th.Tier1ADV:
			assets[i].Tier = domain.Tier1
		case adv >= th.Tier2ADV:
			assets[i].Tier = domain.Tier2
		case adv >= th.Tier3ADV:
			assets[i].Tier = domain.Tier3
		default:
			assets[i].Tier = domain.Tier4
		}
		assets[i].PriorityLevel = int(assets[i].Tier)
	}
}

// activateByADV activates at most Tier1Limit tier-1 assets and
// Tier2Limit tier-2 assets, each tier sorted by ADV descending; tiers
// 3 and 4 stay inactive.
func activateByADV(assets []domain.Asset, advByID map[string]float64, th TierThresholds) {
	byTier := map[domain.Tier][]int{}
	for i, a := range assets {
		byTier[a.Tier] = append(byTier[a.Tier], i)
	}

	activate := func(tier domain.Tier, limit int) {
		idxs := byTier[tier]
		sort.SliceStable(idxs, func(i, j int) bool {
			return advByID[assets[idxs[i]].AssetID] > advByID[assets[idxs[j]].AssetID]
		})
		for n, idx := range idxs {
			assets[idx].Active = n < limit
		}
	}
	activate(domain.Tier1, th.Tier1Limit)
	activate(domain.Tier2, th.Tier2Limit)
}
