package worker

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// ErrInvalidInterval is returned when the scheduler interval is not positive.
var ErrInvalidInterval = errors.New("refresh interval must be positive")

// Scheduler runs the refresh job on a fixed interval, starting immediately.
// A run still in progress when the next tick fires is not overlapped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *RefreshJob
	interval  time.Duration
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a Scheduler for job.
func NewScheduler(job *RefreshJob, interval time.Duration, logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		job:       job,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the refresh job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return ErrInvalidInterval
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		s.logger.Info().Msg("scheduler: running cache refresh job")
		result := s.job.Run(s.ctx)
		if err := CheckResult(result); err != nil {
			s.logger.Warn().Err(err).Msg("scheduler: cache refresh degraded")
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

// NextRun returns when the refresh job runs next.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

// Stop stops the scheduler and cancels a run in progress.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}
