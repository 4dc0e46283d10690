package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/marketgps/internal/domain"
	"github.com/aristath/marketgps/internal/rotation"
)

type rotationStateRow struct {
	AssetID       string         `db:"asset_id"`
	LastRefreshAt sql.NullTime   `db:"last_refresh_at"`
	PriorityLevel int            `db:"priority_level"`
	InTop50       bool           `db:"in_top_50"`
	CooldownUntil sql.NullTime   `db:"cooldown_until"`
	LastError     sql.NullString `db:"last_error"`
	RefreshCount  int            `db:"refresh_count"`
}

func (r rotationStateRow) toDomain() domain.RotationState {
	st := domain.RotationState{
		AssetID:       r.AssetID,
		PriorityLevel: r.PriorityLevel,
		InTop50:       r.InTop50,
		RefreshCount:  r.RefreshCount,
	}
	if r.LastRefreshAt.Valid {
		t := r.LastRefreshAt.Time
		st.LastRefreshAt = &t
	}
	if r.CooldownUntil.Valid {
		t := r.CooldownUntil.Time
		st.CooldownUntil = &t
	}
	if r.LastError.Valid {
		e := r.LastError.String
		st.LastError = &e
	}
	return st
}

// TouchRotationState records a refresh attempt for an asset: bumps the
// refresh counter, stamps last_refresh_at, and stores the error text
// when the refresh failed.
func (s *Store) TouchRotationState(ctx context.Context, assetID string, refreshedAt time.Time, refreshErr error) error {
	var errVal interface{}
	if refreshErr != nil {
		errVal = refreshErr.Error()
	}
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO rotation_state (asset_id, last_refresh_at, refresh_count, last_error)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			last_refresh_at = excluded.last_refresh_at,
			refresh_count = refresh_count + 1,
			last_error = excluded.last_error`,
		assetID, refreshedAt.UTC(), errVal)
	if err != nil {
		return fmt.Errorf("database: touch rotation state %s: %w", assetID, err)
	}
	return nil
}

// GetRotationStates loads the rotation bookkeeping rows for a scope's
// assets, keyed by asset id.
func (s *Store) GetRotationStates(ctx context.Context, scope domain.MarketScope) (map[string]domain.RotationState, error) {
	var rows []rotationStateRow
	err := s.db.Conn().SelectContext(ctx, &rows, `
		SELECT rs.* FROM rotation_state rs
		JOIN universe u ON u.asset_id = rs.asset_id
		WHERE u.market_scope = ?`, string(scope))
	if err != nil {
		return nil, fmt.Errorf("database: rotation states: %w", err)
	}
	out := make(map[string]domain.RotationState, len(rows))
	for _, r := range rows {
		out[r.AssetID] = r.toDomain()
	}
	return out, nil
}

// MarkTop50 flips the in_top_50 flag so the rotation selector and
// status surfaces can tell which assets currently sit in the published
// top-50.
func (s *Store) MarkTop50(ctx context.Context, scope domain.MarketScope, assetIDs []string) error {
	tx, err := s.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: mark top50: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE rotation_state SET in_top_50 = 0
		WHERE asset_id IN (SELECT asset_id FROM universe WHERE market_scope = ?)`,
		string(scope)); err != nil {
		return fmt.Errorf("database: mark top50: clear: %w", err)
	}
	for _, id := range assetIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rotation_state (asset_id, in_top_50) VALUES (?, 1)
			ON CONFLICT(asset_id) DO UPDATE SET in_top_50 = 1`, id); err != nil {
			return fmt.Errorf("database: mark top50 %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// AddPriorityBoost registers (or extends) a watchlist/explicit-interest
// boost for an asset.
func (s *Store) AddPriorityBoost(ctx context.Context, assetID, requestedBy string, expiresAt time.Time) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO priority_boosts (asset_id, requested_by, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			requested_by = excluded.requested_by,
			expires_at = MAX(expires_at, excluded.expires_at)`,
		assetID, requestedBy, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("database: add priority boost: %w", err)
	}
	return nil
}

// ListBoostedAssets returns the scope's assets with a non-expired
// priority boost.
func (s *Store) ListBoostedAssets(ctx context.Context, scope domain.MarketScope, asOf time.Time) ([]rotation.BoostedAsset, error) {
	rows, err := s.db.Conn().QueryxContext(ctx, `
		SELECT pb.asset_id, pb.expires_at FROM priority_boosts pb
		JOIN universe u ON u.asset_id = pb.asset_id
		WHERE u.market_scope = ? AND pb.expires_at > ?`,
		string(scope), asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("database: boosted assets: %w", err)
	}
	defer rows.Close()

	var out []rotation.BoostedAsset
	for rows.Next() {
		var assetID string
		var expires time.Time
		if err := rows.Scan(&assetID, &expires); err != nil {
			return nil, fmt.Errorf("database: boosted assets: scan: %w", err)
		}
		out = append(out, rotation.BoostedAsset{AssetID: assetID, BoostExpires: expires})
	}
	return out, rows.Err()
}

// Top50AssetIDs returns the asset ids of the scope's published top-50
// scores, best first — the rotation selector's first priority bucket.
func (s *Store) Top50AssetIDs(ctx context.Context, scope domain.MarketScope) ([]string, error) {
	var ids []string
	err := s.db.Conn().SelectContext(ctx, &ids, `
		SELECT asset_id FROM scores_latest
		WHERE market_scope = ? AND score_total IS NOT NULL
		ORDER BY score_total DESC, asset_id ASC
		LIMIT 50`, string(scope))
	if err != nil {
		return nil, fmt.Errorf("database: top50 asset ids: %w", err)
	}
	return ids, nil
}
