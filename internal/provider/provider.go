// Package provider is the market-data adapter layer. A Provider
// fetches symbol listings, EOD/intraday bars and fundamentals for one
// upstream data source; Adapter composes a primary (paid,
// quota-limited) and a free fallback behind rate limiting, circuit
// breaking and retry, presenting them as a single source.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/marketgps/internal/coreerrors"
	"github.com/aristath/marketgps/internal/domain"
)

// Selection picks which concrete provider serves per-asset data
// requests.
type Selection string

const (
	// SelectAuto serves per-asset data from the free fallback: stable
	// and unmetered, so scheduled rotation never burns paid quota.
	SelectAuto Selection = "auto"
	// SelectPrimary forces the paid primary.
	SelectPrimary Selection = "primary"
	// SelectFallback forces the free fallback.
	SelectFallback Selection = "fallback"
)

// ListingEntry is one row of a provider's symbol-listing response.
type ListingEntry struct {
	AssetID   string
	Symbol    string
	Name      string
	Exchange  string
	Country   string
	AssetType domain.AssetType
	Currency  string
	ISIN      string
}

// HealthState is a provider's coarse availability classification.
type HealthState string

const (
	Healthy  HealthState = "healthy"
	Degraded HealthState = "degraded"
	Down     HealthState = "down"
)

// HealthStatus is the result of a provider health probe.
type HealthStatus struct {
	Provider string
	State    HealthState
	Latency  time.Duration
}

// Provider is the capability set a market-data source exposes. Not
// every provider implements every method meaningfully — the free
// fallback returns wrapped "unsupported" errors for search, listings
// and bulk EOD.
type Provider interface {
	Name() string

	// Search looks up symbols matching a free-text query, scoped to a
	// market.
	Search(ctx context.Context, scope domain.MarketScope, query string) ([]ListingEntry, error)

	// Listings returns the full symbol list for an exchange.
	Listings(ctx context.Context, scope domain.MarketScope, exchange string) ([]ListingEntry, error)

	// EOD returns daily bars for a single asset between from/to
	// (inclusive), in ascending date order.
	EOD(ctx context.Context, asset domain.Asset, from, to time.Time) (domain.BarSeries, error)

	// BulkEOD returns the latest EOD bar for every symbol on an
	// exchange in one call, keyed by asset_id — the universe
	// builder's ADV estimate.
	BulkEOD(ctx context.Context, scope domain.MarketScope, exchange, date string) (map[string]domain.Bar, error)

	// Intraday returns intraday bars for the on-demand path, not
	// persisted to the columnar store.
	Intraday(ctx context.Context, asset domain.Asset, interval string, lookback time.Duration) (domain.BarSeries, error)

	// Fundamentals returns company financials when available.
	Fundamentals(ctx context.Context, asset domain.Asset) (*domain.Fundamentals, error)

	// Health probes the upstream with a lightweight request.
	Health(ctx context.Context) HealthStatus
}

// Adapter composes a primary and fallback Provider behind shared
// resilience controls, presenting a single surface to the rest of the
// system. Universe operations (search, listings, bulk
// EOD) always route to the primary — the fallback cannot serve them —
// while per-asset data honors the configured Selection.
type Adapter struct {
	primary   Provider
	fallback  Provider
	resil     *Resilience
	selection Selection
}

// NewAdapter wires a primary/fallback pair behind shared resilience
// controls.
func NewAdapter(primary, fallback Provider, resil *Resilience, selection Selection) *Adapter {
	if selection == "" {
		selection = SelectAuto
	}
	return &Adapter{primary: primary, fallback: fallback, resil: resil, selection: selection}
}

func (a *Adapter) Name() string {
	return "adapter(" + a.primary.Name() + "+" + a.fallback.Name() + ")"
}

// dataProvider resolves the Selection for per-asset data calls.
func (a *Adapter) dataProvider() Provider {
	if a.selection == SelectPrimary {
		return a.primary
	}
	return a.fallback
}

func (a *Adapter) call(ctx context.Context, p Provider, fn func(Provider) (interface{}, error)) (interface{}, error) {
	return a.resil.Call(ctx, p.Name(), func() (interface{}, error) {
		return fn(p)
	})
}

// Search routes to the primary; on failure it falls through to the
// fallback's best-effort identity lookup.
func (a *Adapter) Search(ctx context.Context, scope domain.MarketScope, query string) ([]ListingEntry, error) {
	res, err := a.call(ctx, a.primary, func(p Provider) (interface{}, error) {
		return p.Search(ctx, scope, query)
	})
	if err != nil {
		res, err = a.call(ctx, a.fallback, func(p Provider) (interface{}, error) {
			return p.Search(ctx, scope, query)
		})
		if err != nil {
			return nil, err
		}
	}
	return res.([]ListingEntry), nil
}

// Listings is primary-only.
func (a *Adapter) Listings(ctx context.Context, scope domain.MarketScope, exchange string) ([]ListingEntry, error) {
	res, err := a.call(ctx, a.primary, func(p Provider) (interface{}, error) {
		return p.Listings(ctx, scope, exchange)
	})
	if err != nil {
		return nil, err
	}
	return res.([]ListingEntry), nil
}

// BulkEOD is primary-only.
func (a *Adapter) BulkEOD(ctx context.Context, scope domain.MarketScope, exchange, date string) (map[string]domain.Bar, error) {
	res, err := a.call(ctx, a.primary, func(p Provider) (interface{}, error) {
		return p.BulkEOD(ctx, scope, exchange, date)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]domain.Bar), nil
}

// EOD serves daily bars from the selected per-asset provider.
func (a *Adapter) EOD(ctx context.Context, asset domain.Asset, from, to time.Time) (domain.BarSeries, error) {
	res, err := a.call(ctx, a.dataProvider(), func(p Provider) (interface{}, error) {
		return p.EOD(ctx, asset, from, to)
	})
	if err != nil {
		return domain.BarSeries{}, err
	}
	return res.(domain.BarSeries), nil
}

// EODPrimaryFirst tries the paid primary and switches to the free
// fallback on plan-quota exhaustion or auth failure — the ad-hoc
// scoring path's routing rule. The second
// return value names the provider that actually served the data.
func (a *Adapter) EODPrimaryFirst(ctx context.Context, asset domain.Asset, from, to time.Time) (domain.BarSeries, string, error) {
	res, err := a.call(ctx, a.primary, func(p Provider) (interface{}, error) {
		return p.EOD(ctx, asset, from, to)
	})
	if err == nil {
		return res.(domain.BarSeries), a.primary.Name(), nil
	}
	if !errors.Is(err, coreerrors.ErrQuotaExhausted) && !errors.Is(err, coreerrors.ErrAuthFailure) {
		return domain.BarSeries{}, "", err
	}

	res, err = a.call(ctx, a.fallback, func(p Provider) (interface{}, error) {
		return p.EOD(ctx, asset, from, to)
	})
	if err != nil {
		return domain.BarSeries{}, "", err
	}
	return res.(domain.BarSeries), a.fallback.Name(), nil
}

// Intraday serves intraday bars from the selected per-asset provider.
func (a *Adapter) Intraday(ctx context.Context, asset domain.Asset, interval string, lookback time.Duration) (domain.BarSeries, error) {
	res, err := a.call(ctx, a.dataProvider(), func(p Provider) (interface{}, error) {
		return p.Intraday(ctx, asset, interval, lookback)
	})
	if err != nil {
		return domain.BarSeries{}, err
	}
	return res.(domain.BarSeries), nil
}

// Fundamentals tries the primary first (richest data), falling back on
// quota/auth failure.
func (a *Adapter) Fundamentals(ctx context.Context, asset domain.Asset) (*domain.Fundamentals, error) {
	res, err := a.call(ctx, a.primary, func(p Provider) (interface{}, error) {
		return p.Fundamentals(ctx, asset)
	})
	if err == nil {
		if res == nil {
			return nil, nil
		}
		return res.(*domain.Fundamentals), nil
	}
	if !errors.Is(err, coreerrors.ErrQuotaExhausted) && !errors.Is(err, coreerrors.ErrAuthFailure) {
		return nil, err
	}

	res, err = a.call(ctx, a.fallback, func(p Provider) (interface{}, error) {
		return p.Fundamentals(ctx, asset)
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.(*domain.Fundamentals), nil
}

// Health probes both upstreams.
func (a *Adapter) Health(ctx context.Context) []HealthStatus {
	return []HealthStatus{
		a.primary.Health(ctx),
		a.fallback.Health(ctx),
	}
}
