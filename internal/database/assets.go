package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/marketgps/internal/coreerrors"
	"github.com/aristath/marketgps/internal/domain"
)

type assetRow struct {
	AssetID       string       `db:"asset_id"`
	Symbol        string       `db:"symbol"`
	Name          string       `db:"name"`
	AssetType     string       `db:"asset_type"`
	MarketScope   string       `db:"market_scope"`
	MarketCode    string       `db:"market_code"`
	ExchangeCode  string       `db:"exchange_code"`
	Currency      string       `db:"currency"`
	Country       string       `db:"country"`
	Sector        string       `db:"sector"`
	Industry      string       `db:"industry"`
	Tier          int          `db:"tier"`
	PriorityLevel int          `db:"priority_level"`
	Active        bool         `db:"active"`
	CreatedAt     sql.NullTime `db:"created_at"`
	UpdatedAt     sql.NullTime `db:"updated_at"`
}

func toAssetRow(a domain.Asset) assetRow {
	return assetRow{
		AssetID: a.AssetID, Symbol: a.Symbol, Name: a.Name,
		AssetType: string(a.AssetType), MarketScope: string(a.MarketScope),
		MarketCode: a.MarketCode, ExchangeCode: a.ExchangeCode,
		Currency: a.Currency, Country: a.Country, Sector: a.Sector, Industry: a.Industry,
		Tier: int(a.Tier), PriorityLevel: a.PriorityLevel, Active: a.Active,
		CreatedAt: sql.NullTime{Time: a.CreatedAt, Valid: !a.CreatedAt.IsZero()},
		UpdatedAt: sql.NullTime{Time: a.UpdatedAt, Valid: !a.UpdatedAt.IsZero()},
	}
}

func (r assetRow) toDomain() domain.Asset {
	return domain.Asset{
		AssetID:       r.AssetID,
		Symbol:        r.Symbol,
		Name:          r.Name,
		AssetType:     domain.AssetType(r.AssetType),
		MarketScope:   domain.MarketScope(r.MarketScope),
		MarketCode:    r.MarketCode,
		ExchangeCode:  r.ExchangeCode,
		Currency:      r.Currency,
		Country:       r.Country,
		Sector:        r.Sector,
		Industry:      r.Industry,
		Tier:          domain.Tier(r.Tier),
		PriorityLevel: r.PriorityLevel,
		Active:        r.Active,
		CreatedAt:     r.CreatedAt.Time,
		UpdatedAt:     r.UpdatedAt.Time,
	}
}

const upsertAssetStmt = `
	INSERT INTO universe (asset_id, symbol, name, asset_type, market_scope, market_code,
		exchange_code, currency, country, sector, industry, tier, priority_level, active,
		created_at, updated_at)
	VALUES (:asset_id, :symbol, :name, :asset_type, :market_scope, :market_code,
		:exchange_code, :currency, :country, :sector, :industry, :tier, :priority_level, :active,
		:created_at, :updated_at)
	ON CONFLICT(asset_id) DO UPDATE SET
		symbol=excluded.symbol, name=excluded.name, asset_type=excluded.asset_type,
		market_code=excluded.market_code, exchange_code=excluded.exchange_code,
		currency=excluded.currency, country=excluded.country, sector=excluded.sector,
		industry=excluded.industry, tier=excluded.tier, priority_level=excluded.priority_level,
		active=excluded.active, updated_at=excluded.updated_at`

// UpsertAsset inserts or updates a single asset, idempotently keyed by
// asset_id.
func (s *Store) UpsertAsset(ctx context.Context, asset domain.Asset) error {
	if _, err := s.db.Conn().NamedExecContext(ctx, upsertAssetStmt, toAssetRow(asset)); err != nil {
		return fmt.Errorf("database: upsert asset %s: %w", asset.AssetID, err)
	}
	return nil
}

// UpsertAssets inserts or updates a batch of assets in a single
// transaction.
func (s *Store) UpsertAssets(ctx context.Context, scope domain.MarketScope, assets []domain.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	tx, err := s.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: upsert assets: begin: %w", err)
	}
	defer tx.Rollback()

	for _, a := range assets {
		if _, err := tx.NamedExecContext(ctx, upsertAssetStmt, toAssetRow(a)); err != nil {
			return fmt.Errorf("database: upsert asset %s: %w", a.AssetID, err)
		}
	}
	return tx.Commit()
}

// DeactivateMissing marks every active asset in scope not present in
// seenAssetIDs as inactive — the universe rebuild's delisting pass.
func (s *Store) DeactivateMissing(ctx context.Context, scope domain.MarketScope, seenAssetIDs []string) error {
	seen := make(map[string]bool, len(seenAssetIDs))
	for _, id := range seenAssetIDs {
		seen[id] = true
	}

	rows, err := s.db.Conn().QueryxContext(ctx,
		`SELECT asset_id FROM universe WHERE market_scope = ? AND active = 1`, string(scope))
	if err != nil {
		return fmt.Errorf("database: deactivate missing: query: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("database: deactivate missing: scan: %w", err)
		}
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()

	for _, id := range stale {
		if _, err := s.db.Conn().ExecContext(ctx,
			`UPDATE universe SET active = 0 WHERE asset_id = ?`, id); err != nil {
			return fmt.Errorf("database: deactivate %s: %w", id, err)
		}
	}
	return nil
}

// GetAsset fetches a single asset by ID.
func (s *Store) GetAsset(ctx context.Context, assetID string) (domain.Asset, error) {
	var row assetRow
	err := s.db.Conn().GetContext(ctx, &row, `SELECT * FROM universe WHERE asset_id = ?`, assetID)
	if err == sql.ErrNoRows {
		return domain.Asset{}, coreerrors.ErrAssetNotFound
	}
	if err != nil {
		return domain.Asset{}, fmt.Errorf("database: get asset: %w", err)
	}
	return row.toDomain(), nil
}

// ListActiveAssets returns every active asset in a scope.
func (s *Store) ListActiveAssets(ctx context.Context, scope domain.MarketScope) ([]domain.Asset, error) {
	return s.listAssets(ctx,
		`SELECT * FROM universe WHERE market_scope = ? AND active = 1 ORDER BY priority_level ASC, asset_id ASC`,
		string(scope))
}

// ListAssetsByTier returns the active assets of one tier in a scope,
// feeding the rotation selector's Tier-1/Tier-2 pools.
func (s *Store) ListAssetsByTier(ctx context.Context, scope domain.MarketScope, tier domain.Tier) ([]domain.Asset, error) {
	return s.listAssets(ctx,
		`SELECT * FROM universe WHERE market_scope = ? AND tier = ? AND active = 1 ORDER BY asset_id ASC`,
		string(scope), int(tier))
}

// ListEligibleAssets returns active assets whose latest gating verdict
// is eligible.
func (s *Store) ListEligibleAssets(ctx context.Context, scope domain.MarketScope) ([]domain.Asset, error) {
	return s.listAssets(ctx, `
		SELECT u.* FROM universe u
		JOIN gating_status g ON g.asset_id = u.asset_id
		WHERE u.market_scope = ? AND u.active = 1 AND g.eligible = 1
		ORDER BY u.priority_level ASC, u.asset_id ASC`,
		string(scope))
}

// ListPriorityAssets returns the top-priority active assets in a
// scope, up to limit.
func (s *Store) ListPriorityAssets(ctx context.Context, scope domain.MarketScope, limit int) ([]domain.Asset, error) {
	return s.listAssets(ctx,
		`SELECT * FROM universe WHERE market_scope = ? AND active = 1 ORDER BY priority_level ASC, asset_id ASC LIMIT ?`,
		string(scope), limit)
}

func (s *Store) listAssets(ctx context.Context, query string, args ...interface{}) ([]domain.Asset, error) {
	var rows []assetRow
	if err := s.db.Conn().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("database: list assets: %w", err)
	}
	out := make([]domain.Asset, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}
