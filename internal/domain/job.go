package domain

import "time"

// JobType is the closed set of run kinds a JobRunner executes.
type JobType string

const (
	JobRotation JobType = "rotation"
	JobGating   JobType = "gating"
	JobScoring  JobType = "scoring"
)

// JobMode selects how the RotationSelector builds its working set.
type JobMode string

const (
	ModeDailyFull     JobMode = "daily_full"
	ModeHourlyOverlay JobMode = "hourly_overlay"
	ModeOnDemand      JobMode = "on_demand"
)

// RunStatus is a JobRun's lifecycle state.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunStaging   RunStatus = "staging"
	RunSuccess   RunStatus = "success"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// JobRun is one execution of the orchestrator.
type JobRun struct {
	RunID            string
	MarketScope      MarketScope
	JobType          JobType
	Mode             JobMode
	CreatedBy        string
	Status           RunStatus
	AssetsProcessed  int
	AssetsSuccess    int
	AssetsFailed     int
	StartedAt        time.Time
	EndedAt          *time.Time
	Error            *string
}

// JobResult is what runRotation/runGating/runScoring return to callers.
type JobResult struct {
	RunID      string
	Status     RunStatus
	Processed  int
	Success    int
	Failed     int
	DurationS  float64
	Error      string
}

// RotationState tracks per-asset refresh bookkeeping used by the
// RotationSelector to avoid scanning the whole universe.
type RotationState struct {
	AssetID       string
	LastRefreshAt *time.Time
	PriorityLevel int
	InTop50       bool
	CooldownUntil *time.Time
	LastError     *string
	RefreshCount  int
}

// QueueStatus is a QueueItem's lifecycle state.
type QueueStatus string

const (
	QueuePending    QueueStatus = "PENDING"
	QueueProcessing QueueStatus = "PROCESSING"
	QueueCompleted  QueueStatus = "COMPLETED"
	QueueFailed     QueueStatus = "FAILED"
)

// QueueJobType is the dispatch key the worker tick uses to route a
// queued item to its handler.
type QueueJobType string

const (
	QueueScoreTickers    QueueJobType = "SCORE_TICKERS"
	QueueRefreshUniverse QueueJobType = "REFRESH_UNIVERSE"
	QueueFullGating      QueueJobType = "FULL_GATING"
)

// QueueItem is a pending work unit in the persistent job queue.
type QueueItem struct {
	ID          string
	JobType     QueueJobType
	MarketScope MarketScope
	Payload     map[string]any
	Status      QueueStatus
	RequestedBy string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Error       *string
}
