package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/marketgps/internal/domain"
)

type quotaRow struct {
	UserID     string       `db:"user_id"`
	QuotaDate  string       `db:"quota_date"`
	Plan       string       `db:"plan"`
	DailyUsed  int          `db:"daily_used"`
	DailyLimit int          `db:"daily_limit"`
	UpdatedAt  sql.NullTime `db:"updated_at"`
}

// GetUserQuota returns the user's quota row for today, synthesizing a
// fresh zero-usage row when none exists yet. The (user_id, quota_date)
// primary key makes "reset daily if new day" implicit: a new day is
// simply a row that doesn't exist yet.
func (s *Store) GetUserQuota(ctx context.Context, userID string, plan domain.Plan, today time.Time) (domain.UserQuota, error) {
	date := today.Format("2006-01-02")
	var row quotaRow
	err := s.db.Conn().GetContext(ctx, &row,
		`SELECT * FROM usage_daily WHERE user_id = ? AND quota_date = ?`, userID, date)
	if err == sql.ErrNoRows {
		return domain.UserQuota{
			UserID:     userID,
			Plan:       plan,
			Date:       date,
			DailyUsed:  0,
			DailyLimit: plan.DailyLimit(),
		}, nil
	}
	if err != nil {
		return domain.UserQuota{}, fmt.Errorf("database: get user quota: %w", err)
	}
	return domain.UserQuota{
		UserID:     row.UserID,
		Plan:       domain.Plan(row.Plan),
		Date:       row.QuotaDate,
		DailyUsed:  row.DailyUsed,
		DailyLimit: row.DailyLimit,
		UpdatedAt:  row.UpdatedAt.Time,
	}, nil
}

// IncrementUsage bumps the user's usage for today by one in a single
// atomic upsert keyed on (user_id, quota_date), so two concurrent
// first-calls-of-the-day cannot double-count or race the midnight
// reset. Returns the post-
// increment usage.
func (s *Store) IncrementUsage(ctx context.Context, userID string, plan domain.Plan, today time.Time) (int, error) {
	date := today.Format("2006-01-02")
	now := time.Now().UTC()
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO usage_daily (user_id, quota_date, plan, daily_used, daily_limit, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(user_id, quota_date) DO UPDATE SET
			daily_used = daily_used + 1, updated_at = excluded.updated_at`,
		userID, date, string(plan), plan.DailyLimit(), now)
	if err != nil {
		return 0, fmt.Errorf("database: increment usage: %w", err)
	}

	var used int
	if err := s.db.Conn().GetContext(ctx, &used,
		`SELECT daily_used FROM usage_daily WHERE user_id = ? AND quota_date = ?`, userID, date); err != nil {
		return 0, fmt.Errorf("database: read usage: %w", err)
	}
	return used, nil
}
