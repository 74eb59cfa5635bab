// Package scheduler wraps robfig/cron to drive the batch orchestrator's
// daily cadence.
package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named, schedulable unit of work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages cron-driven background jobs.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a new scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job against a cron schedule expression, e.g.
// "0 0 6 * * *" for 6 AM daily.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Info().Str("job", job.Name()).Msg("running scheduled job")
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("scheduled job failed")
			return
		}
		s.log.Info().Str("job", job.Name()).Msg("scheduled job completed")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

// RunNow executes a job immediately, outside of its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("running job immediately")
	return job.Run()
}
