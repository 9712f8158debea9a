// Package scheduler runs the planner's recurring maintenance jobs.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of recurring work.
type Job interface {
	Name() string
	Run() error
}

// Scheduler wraps a cron runner with logging around every job.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates an empty scheduler. Schedules use the standard 5-field
// cron syntax.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds a job on the given cron schedule.
func (s *Scheduler) Register(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Scheduled job failed")
			return
		}
		s.log.Info().
			Str("job", job.Name()).
			Dur("duration_ms", time.Since(start)).
			Msg("Scheduled job complete")
	})
	if err != nil {
		return fmt.Errorf("failed to register job %s on schedule %q: %w", job.Name(), spec, err)
	}
	s.log.Info().Str("job", job.Name()).Str("schedule", spec).Msg("Registered scheduled job")
	return nil
}

// Start begins running registered jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
