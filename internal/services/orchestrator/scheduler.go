package orchestrator

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// sweepTimeout bounds a single scheduled sweep.
const sweepTimeout = time.Minute

// Scheduler runs the stale sweep on a cron schedule
type Scheduler struct {
	service *Service
	cron    *cron.Cron
	logger  arbor.ILogger
}

// NewScheduler creates a new sweep scheduler
func NewScheduler(service *Service, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		service: service,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
	}
}

// Start begins the scheduled sweeps
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		schedule = "@every 5m"
	}

	_, err := s.cron.AddFunc(schedule, s.runSweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Msg("Stale sweep scheduler started")

	return nil
}

// Stop stops the scheduler and waits for a running sweep to return
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Stale sweep scheduler stopped")
}

// RunNow triggers an immediate sweep
func (s *Scheduler) RunNow() {
	s.logger.Info().Msg("Triggering immediate stale sweep")
	go s.runSweep()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.service.RunStaleSweep(ctx); err != nil {
		s.logger.Error().
			Err(err).
			Msg("Scheduled stale sweep failed")
	}
}
