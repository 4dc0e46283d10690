// Package scheduler drives the periodic pipeline jobs — hourly-overlay
// rotation, gating sweeps, universe rebuilds — and the continuous
// queue worker tick. Each {scope, job} pair is exclusive:
// an instance still running when its next tick fires is skipped, so
// missed executions coalesce instead of piling up.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one schedulable unit of work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages the background job set.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a scheduler. The SkipIfStillRunning wrapper enforces
// per-entry exclusivity and coalesces missed executions.
func New(log zerolog.Logger) *Scheduler {
	cronLog := cron.DiscardLogger
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLog))),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers a job with a cron schedule ("@every 15m",
// "0 */6 * * *", ...).
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("running job")

		if err := job.Run(); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Msg("job failed")
		} else {
			s.log.Debug().Str("job", job.Name()).Msg("job completed")
		}
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("running job immediately")
	return job.Run()
}

// FuncJob adapts a closure to the Job interface.
type FuncJob struct {
	JobName string
	Fn      func() error
}

func (f FuncJob) Name() string { return f.JobName }
func (f FuncJob) Run() error   { return f.Fn() }

// Cadence holds the per-scope schedules from config.
type Cadence struct {
	RotationMinutes int // hourly_overlay rotation
	GatingHours     int
	UniverseDays    int
	WorkerSeconds   int // queue worker tick
}

// DefaultCadence is the production schedule.
var DefaultCadence = Cadence{
	RotationMinutes: 15,
	GatingHours:     6,
	UniverseDays:    7,
	WorkerSeconds:   30,
}

// Schedules renders the cadence as cron expressions.
func (c Cadence) Schedules() (rotation, gating, universe, worker string) {
	rotation = fmt.Sprintf("@every %dm", nonZero(c.RotationMinutes, DefaultCadence.RotationMinutes))
	gating = fmt.Sprintf("@every %dh", nonZero(c.GatingHours, DefaultCadence.GatingHours))
	universe = fmt.Sprintf("@every %dh", nonZero(c.UniverseDays, DefaultCadence.UniverseDays)*24)
	worker = fmt.Sprintf("@every %ds", nonZero(c.WorkerSeconds, DefaultCadence.WorkerSeconds))
	return
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
