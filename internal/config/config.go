// Package config loads the core's runtime configuration from the
// environment, with an
// optional YAML calibration overlay for scheduler cadences and batch
// sizes. Unrecognized environment keys are ignored.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the scoring core needs at construction time.
type Config struct {
	// Provider
	EODHDAPIKey     string
	EODHDBaseURL    string
	DefaultExchange string

	// Storage
	DataDir    string
	SQLitePath string

	// Rotation / scheduling
	RotationBatchSize       int
	RotationPeriodMinutes   int
	ScheduleRotationMinutes int
	ScheduleGatingHours     int
	SchedulePoolHours       int
	ScheduleUniverseDays    int

	// Billing
	BillingMode string

	// Logging
	LogLevel string
	DevMode  bool
}

// Calibration is the optional YAML overlay (calibration.yaml next to
// the data dir). It only covers operational cadences, never scoring
// constants — the scoring engine stays deterministic and auditable.
type Calibration struct {
	RotationBatchSize       int `yaml:"rotation_batch_size"`
	ScheduleRotationMinutes int `yaml:"schedule_rotation_minutes"`
	ScheduleGatingHours     int `yaml:"schedule_gating_hours"`
	SchedulePoolHours       int `yaml:"schedule_pool_hours"`
	ScheduleUniverseDays    int `yaml:"schedule_universe_days"`
}

// Load reads configuration from the environment (and .env if present),
// then applies the calibration overlay when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		EODHDAPIKey:     getEnv("EODHD_API_KEY", ""),
		EODHDBaseURL:    getEnv("EODHD_BASE_URL", "https://eodhd.com/api"),
		DefaultExchange: getEnv("DEFAULT_EXCHANGE", "US"),

		DataDir:    getEnv("DATA_DIR", "./data"),
		SQLitePath: getEnv("SQLITE_PATH", ""),

		RotationBatchSize:       getEnvAsInt("ROTATION_BATCH_SIZE", 50),
		RotationPeriodMinutes:   getEnvAsInt("ROTATION_PERIOD_MINUTES", 15),
		ScheduleRotationMinutes: getEnvAsInt("SCHEDULE_ROTATION_MINUTES", 15),
		ScheduleGatingHours:     getEnvAsInt("SCHEDULE_GATING_HOURS", 6),
		SchedulePoolHours:       getEnvAsInt("SCHEDULE_POOL_HOURS", 1),
		ScheduleUniverseDays:    getEnvAsInt("SCHEDULE_UNIVERSE_DAYS", 7),

		BillingMode: getEnv("BILLING_MODE", "free"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
	}

	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.DataDir, "sqlite", "marketgps.db")
	}

	if err := cfg.applyCalibration(filepath.Join(cfg.DataDir, "calibration.yaml")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the core cannot run without.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: DATA_DIR is required")
	}
	if c.RotationBatchSize <= 0 {
		return fmt.Errorf("config: ROTATION_BATCH_SIZE must be positive")
	}
	return nil
}

// BarsDir is the root of the columnar bar store.
func (c *Config) BarsDir() string {
	return filepath.Join(c.DataDir, "parquet")
}

func (c *Config) applyCalibration(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read calibration: %w", err)
	}

	var cal Calibration
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return fmt.Errorf("config: parse calibration: %w", err)
	}

	if cal.RotationBatchSize > 0 {
		c.RotationBatchSize = cal.RotationBatchSize
	}
	if cal.ScheduleRotationMinutes > 0 {
		c.ScheduleRotationMinutes = cal.ScheduleRotationMinutes
	}
	if cal.ScheduleGatingHours > 0 {
		c.ScheduleGatingHours = cal.ScheduleGatingHours
	}
	if cal.SchedulePoolHours > 0 {
		c.SchedulePoolHours = cal.SchedulePoolHours
	}
	if cal.ScheduleUniverseDays > 0 {
		c.ScheduleUniverseDays = cal.ScheduleUniverseDays
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
