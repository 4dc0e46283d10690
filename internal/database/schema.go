package database

// schemaStatements are the full set of tables the RelationalStore
// needs: the universe, published and staged scores/gating, job runs,
// the persistent queue, rotation bookkeeping, priority boosts and
// on-demand quotas. Unique indexes back the schema
// invariants: one universe row, one published score and one published
// gating row per asset; staging tables indexed by run_id for fast
// delete/merge.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS universe (
		asset_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		name TEXT,
		asset_type TEXT NOT NULL,
		market_scope TEXT NOT NULL,
		market_code TEXT,
		exchange_code TEXT,
		currency TEXT,
		country TEXT,
		sector TEXT,
		industry TEXT,
		tier INTEGER NOT NULL DEFAULT 4,
		priority_level INTEGER NOT NULL DEFAULT 4,
		active INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_universe_scope_active ON universe(market_scope, active)`,
	`CREATE INDEX IF NOT EXISTS idx_universe_scope_tier ON universe(market_scope, tier, active)`,

	`CREATE TABLE IF NOT EXISTS scores_latest (
		asset_id TEXT PRIMARY KEY,
		market_scope TEXT NOT NULL,
		run_id TEXT NOT NULL,
		score_total REAL,
		score_value REAL,
		score_momentum REAL,
		score_safety REAL,
		score_fx_risk REAL,
		score_liquidity_risk REAL,
		confidence INTEGER,
		state_label TEXT,
		last_price REAL,
		breakdown_json TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scores_latest_scope_total ON scores_latest(market_scope, score_total DESC)`,

	`CREATE TABLE IF NOT EXISTS scores_staging (
		asset_id TEXT NOT NULL,
		market_scope TEXT NOT NULL,
		run_id TEXT NOT NULL,
		score_total REAL,
		score_value REAL,
		score_momentum REAL,
		score_safety REAL,
		score_fx_risk REAL,
		score_liquidity_risk REAL,
		confidence INTEGER,
		state_label TEXT,
		last_price REAL,
		breakdown_json TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, asset_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scores_staging_run ON scores_staging(run_id)`,

	`CREATE TABLE IF NOT EXISTS gating_status (
		asset_id TEXT PRIMARY KEY,
		market_scope TEXT NOT NULL,
		coverage REAL NOT NULL DEFAULT 0,
		liquidity REAL NOT NULL DEFAULT 0,
		price_min REAL NOT NULL DEFAULT 0,
		stale_ratio REAL NOT NULL DEFAULT 0,
		zero_volume_ratio REAL NOT NULL DEFAULT 0,
		eligible INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		data_confidence REAL NOT NULL DEFAULT 0,
		fx_risk REAL NOT NULL DEFAULT 0,
		liquidity_risk REAL NOT NULL DEFAULT 0,
		history_days INTEGER NOT NULL DEFAULT 0,
		last_bar_date TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_gating_scope_eligible ON gating_status(market_scope, eligible)`,

	`CREATE TABLE IF NOT EXISTS gating_staging (
		asset_id TEXT NOT NULL,
		market_scope TEXT NOT NULL,
		run_id TEXT NOT NULL,
		coverage REAL NOT NULL DEFAULT 0,
		liquidity REAL NOT NULL DEFAULT 0,
		price_min REAL NOT NULL DEFAULT 0,
		stale_ratio REAL NOT NULL DEFAULT 0,
		zero_volume_ratio REAL NOT NULL DEFAULT 0,
		eligible INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		data_confidence REAL NOT NULL DEFAULT 0,
		fx_risk REAL NOT NULL DEFAULT 0,
		liquidity_risk REAL NOT NULL DEFAULT 0,
		history_days INTEGER NOT NULL DEFAULT 0,
		last_bar_date TIMESTAMP,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, asset_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_gating_staging_run ON gating_staging(run_id)`,

	`CREATE TABLE IF NOT EXISTS job_runs (
		run_id TEXT PRIMARY KEY,
		market_scope TEXT NOT NULL,
		job_type TEXT NOT NULL,
		mode TEXT NOT NULL,
		created_by TEXT,
		status TEXT NOT NULL,
		assets_processed INTEGER NOT NULL DEFAULT 0,
		assets_success INTEGER NOT NULL DEFAULT 0,
		assets_failed INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_runs_started ON job_runs(started_at DESC)`,

	`CREATE TABLE IF NOT EXISTS queue_items (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		market_scope TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_by TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_status ON queue_items(status, created_at)`,

	`CREATE TABLE IF NOT EXISTS rotation_state (
		asset_id TEXT PRIMARY KEY,
		last_refresh_at TIMESTAMP,
		priority_level INTEGER NOT NULL DEFAULT 4,
		in_top_50 INTEGER NOT NULL DEFAULT 0,
		cooldown_until TIMESTAMP,
		last_error TEXT,
		refresh_count INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS priority_boosts (
		asset_id TEXT PRIMARY KEY,
		requested_by TEXT,
		expires_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS usage_daily (
		user_id TEXT NOT NULL,
		quota_date TEXT NOT NULL,
		plan TEXT NOT NULL,
		daily_used INTEGER NOT NULL DEFAULT 0,
		daily_limit INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, quota_date)
	)`,
}
