package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/marketgps/internal/domain"
)

type gatingRow struct {
	AssetID         string       `db:"asset_id"`
	MarketScope     string       `db:"market_scope"`
	RunID           string       `db:"run_id"`
	Coverage        float64      `db:"coverage"`
	Liquidity       float64      `db:"liquidity"`
	PriceMin        float64      `db:"price_min"`
	StaleRatio      float64      `db:"stale_ratio"`
	ZeroVolumeRatio float64      `db:"zero_volume_ratio"`
	Eligible        bool         `db:"eligible"`
	Reason          sql.NullString `db:"reason"`
	DataConfidence  float64      `db:"data_confidence"`
	FXRisk          float64      `db:"fx_risk"`
	LiquidityRisk   float64      `db:"liquidity_risk"`
	HistoryDays     int          `db:"history_days"`
	LastBarDate     sql.NullTime `db:"last_bar_date"`
	UpdatedAt       sql.NullTime `db:"updated_at"`
}

func toGatingRow(runID string, g domain.GatingStatus) gatingRow {
	row := gatingRow{
		AssetID:         g.AssetID,
		MarketScope:     string(g.MarketScope),
		RunID:           runID,
		Coverage:        g.Coverage,
		Liquidity:       g.Liquidity,
		PriceMin:        g.PriceMin,
		StaleRatio:      g.StaleRatio,
		ZeroVolumeRatio: g.ZeroVolumeRatio,
		Eligible:        g.Eligible,
		DataConfidence:  g.DataConfidence,
		FXRisk:          g.FXRisk,
		LiquidityRisk:   g.LiquidityRisk,
		HistoryDays:     g.HistoryDays,
		UpdatedAt:       sql.NullTime{Time: g.UpdatedAt, Valid: !g.UpdatedAt.IsZero()},
	}
	if g.Reason != "" {
		row.Reason = sql.NullString{String: g.Reason, Valid: true}
	}
	if g.LastBarDate != nil {
		row.LastBarDate = sql.NullTime{Time: *g.LastBarDate, Valid: true}
	}
	return row
}

func (r gatingRow) toDomain() domain.GatingStatus {
	g := domain.GatingStatus{
		AssetID:         r.AssetID,
		MarketScope:     domain.MarketScope(r.MarketScope),
		Coverage:        r.Coverage,
		Liquidity:       r.Liquidity,
		PriceMin:        r.PriceMin,
		StaleRatio:      r.StaleRatio,
		ZeroVolumeRatio: r.ZeroVolumeRatio,
		Eligible:        r.Eligible,
		Reason:          r.Reason.String,
		DataConfidence:  r.DataConfidence,
		FXRisk:          r.FXRisk,
		LiquidityRisk:   r.LiquidityRisk,
		HistoryDays:     r.HistoryDays,
		UpdatedAt:       r.UpdatedAt.Time,
	}
	if r.LastBarDate.Valid {
		t := r.LastBarDate.Time
		g.LastBarDate = &t
	}
	return g
}

const gatingColumns = `asset_id, market_scope, coverage, liquidity, price_min,
	stale_ratio, zero_volume_ratio, eligible, reason, data_confidence,
	fx_risk, liquidity_risk, history_days, last_bar_date, updated_at`

// StageGating writes a run's gating verdicts into gating_staging.
func (s *Store) StageGating(ctx context.Context, runID string, statuses []domain.GatingStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	tx, err := s.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: stage gating: begin: %w", err)
	}
	defer tx.Rollback()

	const stmt = `
		INSERT INTO gating_staging (asset_id, market_scope, run_id, coverage, liquidity,
			price_min, stale_ratio, zero_volume_ratio, eligible, reason, data_confidence,
			fx_risk, liquidity_risk, history_days, last_bar_date, updated_at)
		VALUES (:asset_id, :market_scope, :run_id, :coverage, :liquidity,
			:price_min, :stale_ratio, :zero_volume_ratio, :eligible, :reason, :data_confidence,
			:fx_risk, :liquidity_risk, :history_days, :last_bar_date, :updated_at)
		ON CONFLICT(run_id, asset_id) DO UPDATE SET
			coverage=excluded.coverage, liquidity=excluded.liquidity,
			price_min=excluded.price_min, stale_ratio=excluded.stale_ratio,
			zero_volume_ratio=excluded.zero_volume_ratio, eligible=excluded.eligible,
			reason=excluded.reason, data_confidence=excluded.data_confidence,
			fx_risk=excluded.fx_risk, liquidity_risk=excluded.liquidity_risk,
			history_days=excluded.history_days,
			last_bar_date=excluded.last_bar_date, updated_at=excluded.updated_at`

	for _, g := range statuses {
		if _, err := tx.NamedExecContext(ctx, stmt, toGatingRow(runID, g)); err != nil {
			return fmt.Errorf("database: stage gating %s: %w", g.AssetID, err)
		}
	}
	return tx.Commit()
}

// UpsertGating writes a gating verdict directly to the published
// table, used by the on-demand path which bypasses staging.
func (s *Store) UpsertGating(ctx context.Context, g domain.GatingStatus) error {
	const stmt = `
		INSERT INTO gating_status (asset_id, market_scope, coverage, liquidity,
			price_min, stale_ratio, zero_volume_ratio, eligible, reason, data_confidence,
			fx_risk, liquidity_risk, history_days, last_bar_date, updated_at)
		VALUES (:asset_id, :market_scope, :coverage, :liquidity,
			:price_min, :stale_ratio, :zero_volume_ratio, :eligible, :reason, :data_confidence,
			:fx_risk, :liquidity_risk, :history_days, :last_bar_date, :updated_at)
		ON CONFLICT(asset_id) DO UPDATE SET
			market_scope=excluded.market_scope, coverage=excluded.coverage,
			liquidity=excluded.liquidity, price_min=excluded.price_min,
			stale_ratio=excluded.stale_ratio, zero_volume_ratio=excluded.zero_volume_ratio,
			eligible=excluded.eligible, reason=excluded.reason,
			data_confidence=excluded.data_confidence, fx_risk=excluded.fx_risk,
			liquidity_risk=excluded.liquidity_risk, history_days=excluded.history_days,
			last_bar_date=excluded.last_bar_date,
			updated_at=excluded.updated_at`
	if _, err := s.db.Conn().NamedExecContext(ctx, stmt, toGatingRow("", g)); err != nil {
		return fmt.Errorf("database: upsert gating %s: %w", g.AssetID, err)
	}
	return nil
}

// GetGating fetches the published gating status for an asset, or nil.
func (s *Store) GetGating(ctx context.Context, assetID string) (*domain.GatingStatus, error) {
	var row gatingRow
	err := s.db.Conn().GetContext(ctx, &row, `
		SELECT asset_id, market_scope, coverage, liquidity, price_min, stale_ratio,
			zero_volume_ratio, eligible, reason, data_confidence, fx_risk, liquidity_risk,
			history_days, last_bar_date, updated_at, '' AS run_id
		FROM gating_status WHERE asset_id = ?`, assetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database: get gating: %w", err)
	}
	g := row.toDomain()
	return &g, nil
}

// CountStagedGating reports how many staged gating rows a run holds.
func (s *Store) CountStagedGating(ctx context.Context, runID string) (int, error) {
	var n int
	if err := s.db.Conn().GetContext(ctx, &n,
		`SELECT COUNT(*) FROM gating_staging WHERE run_id = ?`, runID); err != nil {
		return 0, fmt.Errorf("database: count staged gating: %w", err)
	}
	return n, nil
}
