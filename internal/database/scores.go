package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/marketgps/internal/domain"
)

type scoreRow struct {
	AssetID            string          `db:"asset_id"`
	MarketScope        string          `db:"market_scope"`
	RunID              string          `db:"run_id"`
	ScoreTotal         sql.NullFloat64 `db:"score_total"`
	ScoreValue         sql.NullFloat64 `db:"score_value"`
	ScoreMomentum      sql.NullFloat64 `db:"score_momentum"`
	ScoreSafety        sql.NullFloat64 `db:"score_safety"`
	ScoreFXRisk        sql.NullFloat64 `db:"score_fx_risk"`
	ScoreLiquidityRisk sql.NullFloat64 `db:"score_liquidity_risk"`
	Confidence         int             `db:"confidence"`
	StateLabel         string          `db:"state_label"`
	LastPrice          sql.NullFloat64 `db:"last_price"`
	BreakdownJSON      string          `db:"breakdown_json"`
	UpdatedAt          sql.NullTime    `db:"updated_at"`
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func toScoreRow(runID string, s domain.Score) (scoreRow, error) {
	breakdown, err := json.Marshal(s.Breakdown)
	if err != nil {
		return scoreRow{}, fmt.Errorf("database: marshal breakdown: %w", err)
	}
	return scoreRow{
		AssetID:            s.AssetID,
		MarketScope:        string(s.MarketScope),
		RunID:              runID,
		ScoreTotal:         nullFloat(s.ScoreTotal),
		ScoreValue:         nullFloat(s.ScoreValue),
		ScoreMomentum:      nullFloat(s.ScoreMomentum),
		ScoreSafety:        nullFloat(s.ScoreSafety),
		ScoreFXRisk:        nullFloat(s.ScoreFXRisk),
		ScoreLiquidityRisk: nullFloat(s.ScoreLiquidityRisk),
		Confidence:         s.Confidence,
		StateLabel:         string(s.StateLabel),
		LastPrice:          nullFloat(s.LastPrice),
		BreakdownJSON:      string(breakdown),
		UpdatedAt:          sql.NullTime{Time: s.UpdatedAt, Valid: !s.UpdatedAt.IsZero()},
	}, nil
}

func (r scoreRow) toDomain() (domain.Score, error) {
	s := domain.Score{
		AssetID:            r.AssetID,
		MarketScope:        domain.MarketScope(r.MarketScope),
		ScoreTotal:         floatPtr(r.ScoreTotal),
		ScoreValue:         floatPtr(r.ScoreValue),
		ScoreMomentum:      floatPtr(r.ScoreMomentum),
		ScoreSafety:        floatPtr(r.ScoreSafety),
		ScoreFXRisk:        floatPtr(r.ScoreFXRisk),
		ScoreLiquidityRisk: floatPtr(r.ScoreLiquidityRisk),
		Confidence:         r.Confidence,
		StateLabel:         domain.StateLabel(r.StateLabel),
		LastPrice:          floatPtr(r.LastPrice),
		UpdatedAt:          r.UpdatedAt.Time,
	}
	if r.BreakdownJSON != "" {
		if err := json.Unmarshal([]byte(r.BreakdownJSON), &s.Breakdown); err != nil {
			return domain.Score{}, fmt.Errorf("database: unmarshal breakdown: %w", err)
		}
	}
	return s, nil
}

const scoreColumns = `asset_id, market_scope, run_id, score_total, score_value,
	score_momentum, score_safety, score_fx_risk, score_liquidity_risk, confidence,
	state_label, last_price, breakdown_json, updated_at`

const scoreBindings = `:asset_id, :market_scope, :run_id, :score_total, :score_value,
	:score_momentum, :score_safety, :score_fx_risk, :score_liquidity_risk, :confidence,
	:state_label, :last_price, :breakdown_json, :updated_at`

// StageScores writes a run's scores into scores_staging, never
// touching scores_latest.
func (s *Store) StageScores(ctx context.Context, runID string, scores []domain.Score) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := s.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: stage scores: begin: %w", err)
	}
	defer tx.Rollback()

	stmt := `INSERT INTO scores_staging (` + scoreColumns + `) VALUES (` + scoreBindings + `)
		ON CONFLICT(run_id, asset_id) DO UPDATE SET
			score_total=excluded.score_total, score_value=excluded.score_value,
			score_momentum=excluded.score_momentum, score_safety=excluded.score_safety,
			score_fx_risk=excluded.score_fx_risk, score_liquidity_risk=excluded.score_liquidity_risk,
			confidence=excluded.confidence, state_label=excluded.state_label,
			last_price=excluded.last_price, breakdown_json=excluded.breakdown_json,
			updated_at=excluded.updated_at`

	for _, score := range scores {
		row, err := toScoreRow(runID, score)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, stmt, row); err != nil {
			return fmt.Errorf("database: stage score %s: %w", score.AssetID, err)
		}
	}
	return tx.Commit()
}

// PublishCounts reports how many rows a publish moved live.
type PublishCounts struct {
	ScoresPublished int
	GatingPublished int
}

// PublishRun moves a run's staged scores and gating verdicts into the
// published tables and clears all of the run's staging rows, inside
// one transaction serialized per scope, so readers never see a
// half-published scope. Only staging rows whose
// asset belongs to the target scope in the universe are copied —
// rows for any other scope are ignored by this publish and dropped
// with the rest of the staging set.
func (s *Store) PublishRun(ctx context.Context, runID string, scope domain.MarketScope, publishScores, publishGating bool) (PublishCounts, error) {
	mu := s.publishLock(scope)
	mu.Lock()
	defer mu.Unlock()

	var counts PublishCounts

	tx, err := s.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("database: publish run: begin: %w", err)
	}
	defer tx.Rollback()

	if publishScores {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO scores_latest (`+scoreColumns+`)
			SELECT st.asset_id, st.market_scope, st.run_id, st.score_total, st.score_value,
				st.score_momentum, st.score_safety, st.score_fx_risk, st.score_liquidity_risk, st.confidence,
				st.state_label, st.last_price, st.breakdown_json, st.updated_at
			FROM scores_staging st
			JOIN universe u ON u.asset_id = st.asset_id
			WHERE st.run_id = ? AND u.market_scope = ?
			ON CONFLICT(asset_id) DO UPDATE SET
				market_scope=excluded.market_scope, run_id=excluded.run_id,
				score_total=excluded.score_total, score_value=excluded.score_value,
				score_momentum=excluded.score_momentum, score_safety=excluded.score_safety,
				score_fx_risk=excluded.score_fx_risk, score_liquidity_risk=excluded.score_liquidity_risk,
				confidence=excluded.confidence, state_label=excluded.state_label,
				last_price=excluded.last_price, breakdown_json=excluded.breakdown_json,
				updated_at=excluded.updated_at
		`, runID, string(scope))
		if err != nil {
			return counts, fmt.Errorf("database: publish run: copy scores: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			counts.ScoresPublished = int(n)
		}
	}

	if publishGating {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO gating_status (`+gatingColumns+`)
			SELECT st.asset_id, st.market_scope, st.coverage, st.liquidity, st.price_min,
				st.stale_ratio, st.zero_volume_ratio, st.eligible, st.reason, st.data_confidence,
				st.fx_risk, st.liquidity_risk, st.history_days, st.last_bar_date, st.updated_at
			FROM gating_staging st
			JOIN universe u ON u.asset_id = st.asset_id
			WHERE st.run_id = ? AND u.market_scope = ?
			ON CONFLICT(asset_id) DO UPDATE SET
				market_scope=excluded.market_scope, coverage=excluded.coverage,
				liquidity=excluded.liquidity, price_min=excluded.price_min,
				stale_ratio=excluded.stale_ratio, zero_volume_ratio=excluded.zero_volume_ratio,
				eligible=excluded.eligible, reason=excluded.reason,
				data_confidence=excluded.data_confidence, fx_risk=excluded.fx_risk,
				liquidity_risk=excluded.liquidity_risk, history_days=excluded.history_days,
				last_bar_date=excluded.last_bar_date,
				updated_at=excluded.updated_at
		`, runID, string(scope))
		if err != nil {
			return counts, fmt.Errorf("database: publish run: copy gating: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			counts.GatingPublished = int(n)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scores_staging WHERE run_id = ?`, runID); err != nil {
		return counts, fmt.Errorf("database: publish run: clear score staging: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM gating_staging WHERE run_id = ?`, runID); err != nil {
		return counts, fmt.Errorf("database: publish run: clear gating staging: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE job_runs SET status = ?, ended_at = ? WHERE run_id = ?`,
		string(domain.RunSuccess), time.Now().UTC(), runID); err != nil {
		return counts, fmt.Errorf("database: publish run: mark success: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return counts, fmt.Errorf("database: publish run: commit: %w", err)
	}
	return counts, nil
}

// RollbackRun discards a run's staged rows without publishing them and
// marks the run cancelled.
func (s *Store) RollbackRun(ctx context.Context, runID string) error {
	return s.clearStaging(ctx, runID, domain.RunCancelled, "")
}

// FailRun discards a run's staged rows and marks the run failed with
// the exception text persisted on the run row.
func (s *Store) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.clearStaging(ctx, runID, domain.RunFailed, msg)
}

func (s *Store) clearStaging(ctx context.Context, runID string, status domain.RunStatus, errMsg string) error {
	tx, err := s.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: clear staging: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scores_staging WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("database: clear staging: scores: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM gating_staging WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("database: clear staging: gating: %w", err)
	}

	var errVal interface{}
	if errMsg != "" {
		errVal = errMsg
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE job_runs SET status = ?, error = ?, ended_at = ? WHERE run_id = ?`,
		string(status), errVal, time.Now().UTC(), runID); err != nil {
		return fmt.Errorf("database: clear staging: mark run: %w", err)
	}

	return tx.Commit()
}

// UpsertScore writes directly to scores_latest, bypassing staging.
// This is the compatibility path used only by on-demand single-asset
// scoring; batch runs always go through staging + publish.
func (s *Store) UpsertScore(ctx context.Context, score domain.Score) error {
	row, err := toScoreRow("adhoc", score)
	if err != nil {
		return err
	}
	stmt := `INSERT INTO scores_latest (` + scoreColumns + `) VALUES (` + scoreBindings + `)
		ON CONFLICT(asset_id) DO UPDATE SET
			market_scope=excluded.market_scope, run_id=excluded.run_id,
			score_total=excluded.score_total, score_value=excluded.score_value,
			score_momentum=excluded.score_momentum, score_safety=excluded.score_safety,
			score_fx_risk=excluded.score_fx_risk, score_liquidity_risk=excluded.score_liquidity_risk,
			confidence=excluded.confidence, state_label=excluded.state_label,
			last_price=excluded.last_price, breakdown_json=excluded.breakdown_json,
			updated_at=excluded.updated_at`
	if _, err := s.db.Conn().NamedExecContext(ctx, stmt, row); err != nil {
		return fmt.Errorf("database: upsert score %s: %w", score.AssetID, err)
	}
	return nil
}

// GetScore fetches the published score for an asset, or nil if none.
func (s *Store) GetScore(ctx context.Context, assetID string) (*domain.Score, error) {
	var row scoreRow
	err := s.db.Conn().GetContext(ctx, &row,
		`SELECT * FROM scores_latest WHERE asset_id = ?`, assetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database: get score: %w", err)
	}
	score, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &score, nil
}

// TopScores returns the highest-scored assets for a scope, best first.
func (s *Store) TopScores(ctx context.Context, scope domain.MarketScope, limit int) ([]domain.Score, error) {
	var rows []scoreRow
	err := s.db.Conn().SelectContext(ctx, &rows, `
		SELECT * FROM scores_latest
		WHERE market_scope = ? AND score_total IS NOT NULL
		ORDER BY score_total DESC, asset_id ASC
		LIMIT ?`, string(scope), limit)
	if err != nil {
		return nil, fmt.Errorf("database: top scores: %w", err)
	}
	out := make([]domain.Score, 0, len(rows))
	for _, r := range rows {
		score, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, score)
	}
	return out, nil
}

// CountStagedScores reports how many staged score rows a run holds,
// used by run bookkeeping and tests.
func (s *Store) CountStagedScores(ctx context.Context, runID string) (int, error) {
	var n int
	if err := s.db.Conn().GetContext(ctx, &n,
		`SELECT COUNT(*) FROM scores_staging WHERE run_id = ?`, runID); err != nil {
		return 0, fmt.Errorf("database: count staged scores: %w", err)
	}
	return n, nil
}
