package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/marketgps/internal/domain"
)

type jobRunRow struct {
	RunID           string         `db:"run_id"`
	MarketScope     string         `db:"market_scope"`
	JobType         string         `db:"job_type"`
	Mode            string         `db:"mode"`
	CreatedBy       sql.NullString `db:"created_by"`
	Status          string         `db:"status"`
	AssetsProcessed int            `db:"assets_processed"`
	AssetsSuccess   int            `db:"assets_success"`
	AssetsFailed    int            `db:"assets_failed"`
	StartedAt       sql.NullTime   `db:"started_at"`
	EndedAt         sql.NullTime   `db:"ended_at"`
	Error           sql.NullString `db:"error"`
}

func (r jobRunRow) toDomain() domain.JobRun {
	run := domain.JobRun{
		RunID:           r.RunID,
		MarketScope:     domain.MarketScope(r.MarketScope),
		JobType:         domain.JobType(r.JobType),
		Mode:            domain.JobMode(r.Mode),
		CreatedBy:       r.CreatedBy.String,
		Status:          domain.RunStatus(r.Status),
		AssetsProcessed: r.AssetsProcessed,
		AssetsSuccess:   r.AssetsSuccess,
		AssetsFailed:    r.AssetsFailed,
		StartedAt:       r.StartedAt.Time,
	}
	if r.EndedAt.Valid {
		t := r.EndedAt.Time
		run.EndedAt = &t
	}
	if r.Error.Valid {
		e := r.Error.String
		run.Error = &e
	}
	return run
}

// CreateJobRun opens a new run row in status running and returns its
// run_id.
func (s *Store) CreateJobRun(ctx context.Context, scope domain.MarketScope, jobType domain.JobType, mode domain.JobMode, createdBy string) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO job_runs (run_id, market_scope, job_type, mode, created_by, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, string(scope), string(jobType), string(mode), createdBy,
		string(domain.RunRunning), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("database: create job run: %w", err)
	}
	return runID, nil
}

// UpdateJobRunStatus transitions a run's status and counters.
func (s *Store) UpdateJobRunStatus(ctx context.Context, runID string, status domain.RunStatus, processed, success, failed int) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		UPDATE job_runs
		SET status = ?, assets_processed = ?, assets_success = ?, assets_failed = ?
		WHERE run_id = ?`,
		string(status), processed, success, failed, runID)
	if err != nil {
		return fmt.Errorf("database: update job run %s: %w", runID, err)
	}
	return nil
}

// GetJobRun fetches one run by ID, or nil when unknown.
func (s *Store) GetJobRun(ctx context.Context, runID string) (*domain.JobRun, error) {
	var row jobRunRow
	err := s.db.Conn().GetContext(ctx, &row, `SELECT * FROM job_runs WHERE run_id = ?`, runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database: get job run: %w", err)
	}
	run := row.toDomain()
	return &run, nil
}

// RecentJobs lists the latest runs, newest first.
func (s *Store) RecentJobs(ctx context.Context, limit int) ([]domain.JobRun, error) {
	var rows []jobRunRow
	err := s.db.Conn().SelectContext(ctx, &rows,
		`SELECT * FROM job_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("database: recent jobs: %w", err)
	}
	out := make([]domain.JobRun, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

type queueRow struct {
	ID          string         `db:"id"`
	JobType     string         `db:"job_type"`
	MarketScope string         `db:"market_scope"`
	PayloadJSON string         `db:"payload_json"`
	Status      string         `db:"status"`
	RequestedBy sql.NullString `db:"requested_by"`
	CreatedAt   sql.NullTime   `db:"created_at"`
	UpdatedAt   sql.NullTime   `db:"updated_at"`
	Error       sql.NullString `db:"error"`
}

func (r queueRow) toDomain() (domain.QueueItem, error) {
	item := domain.QueueItem{
		ID:          r.ID,
		JobType:     domain.QueueJobType(r.JobType),
		MarketScope: domain.MarketScope(r.MarketScope),
		Status:      domain.QueueStatus(r.Status),
		RequestedBy: r.RequestedBy.String,
		CreatedAt:   r.CreatedAt.Time,
		UpdatedAt:   r.UpdatedAt.Time,
	}
	if r.Error.Valid {
		e := r.Error.String
		item.Error = &e
	}
	if r.PayloadJSON != "" {
		if err := json.Unmarshal([]byte(r.PayloadJSON), &item.Payload); err != nil {
			return domain.QueueItem{}, fmt.Errorf("database: unmarshal queue payload: %w", err)
		}
	}
	return item, nil
}

// EnqueueJob appends a PENDING work unit to the persistent queue.
// Returns the item's id.
func (s *Store) EnqueueJob(ctx context.Context, jobType domain.QueueJobType, scope domain.MarketScope, payload map[string]any, requestedBy string) (string, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("database: marshal queue payload: %w", err)
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.Conn().ExecContext(ctx, `
		INSERT INTO queue_items (id, job_type, market_scope, payload_json, status, requested_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(jobType), string(scope), string(payloadJSON),
		string(domain.QueuePending), requestedBy, now, now)
	if err != nil {
		return "", fmt.Errorf("database: enqueue job: %w", err)
	}
	return id, nil
}

// FetchNextJobAtomic claims the oldest PENDING item (optionally scope-
// filtered), transitioning it to PROCESSING in one serialized
// transaction so two workers can never claim the same item. Returns
// nil when the queue is empty.
func (s *Store) FetchNextJobAtomic(ctx context.Context, scope *domain.MarketScope) (*domain.QueueItem, error) {
	tx, err := s.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("database: fetch next job: begin: %w", err)
	}
	defer tx.Rollback()

	var row queueRow
	query := `SELECT * FROM queue_items WHERE status = ? ORDER BY created_at ASC LIMIT 1`
	args := []interface{}{string(domain.QueuePending)}
	if scope != nil {
		query = `SELECT * FROM queue_items WHERE status = ? AND market_scope = ? ORDER BY created_at ASC LIMIT 1`
		args = append(args, string(*scope))
	}
	err = tx.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database: fetch next job: select: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE queue_items SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.QueueProcessing), time.Now().UTC(), row.ID, string(domain.QueuePending))
	if err != nil {
		return nil, fmt.Errorf("database: fetch next job: claim: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost the claim race inside busy-wait retry; treat as empty.
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("database: fetch next job: commit: %w", err)
	}

	row.Status = string(domain.QueueProcessing)
	item, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// MarkJobDone transitions a claimed item to COMPLETED.
func (s *Store) MarkJobDone(ctx context.Context, id string) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`UPDATE queue_items SET status = ?, updated_at = ? WHERE id = ?`,
		string(domain.QueueCompleted), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("database: mark job done: %w", err)
	}
	return nil
}

// MarkJobFailed transitions a claimed item to FAILED with its error.
func (s *Store) MarkJobFailed(ctx context.Context, id string, jobErr error) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	_, err := s.db.Conn().ExecContext(ctx,
		`UPDATE queue_items SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(domain.QueueFailed), msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("database: mark job failed: %w", err)
	}
	return nil
}
