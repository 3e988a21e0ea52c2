package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
)

// RunStaleSweep fails and refunds running tests older than the stale
// threshold, and hands queued tests older than the threshold back to
// dispatch. Safe to run concurrently with dispatches and with itself: each
// failure is a single transaction that skips finalised tests.
func (s *Service) RunStaleSweep(ctx context.Context) (*models.SweepResult, error) {
	cutoff := time.Now().UTC().Add(-s.config.StaleThreshold)
	result := &models.SweepResult{
		Failed:       []string{},
		Redispatched: []string{},
		Cutoff:       cutoff,
	}

	running, err := s.tests.ListTestsByStatus(ctx, models.TestStatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale running tests: %w", err)
	}

	for _, stale := range running {
		test, refund, err := s.ledger.FailAndRefund(ctx, stale.ID, models.ErrTaskStale.Error(), models.NoteRefundTimeout)
		if err != nil {
			if isTerminalRace(err) {
				continue
			}
			s.logger.Error().Err(err).Str("test_id", stale.ID).Msg("Failed to expire stale test")
			continue
		}

		event := s.logger.Warn().Str("test_id", test.ID).Str("created_at", test.CreatedAt.Format(time.RFC3339))
		if refund != nil {
			event = event.Int("refunded", refund.Amount)
		}
		event.Msg("Stale test failed")

		result.Failed = append(result.Failed, test.ID)
		s.publishStatus(ctx, test)
	}

	queued, err := s.tests.ListTestsByStatus(ctx, models.TestStatusQueued, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale queued tests: %w", err)
	}
	for _, test := range queued {
		if s.Dispatch(test.ID) {
			result.Redispatched = append(result.Redispatched, test.ID)
		}
	}

	s.logger.Info().
		Int("failed", len(result.Failed)).
		Int("redispatched", len(result.Redispatched)).
		Msg("Stale sweep completed")

	if s.events != nil {
		s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventStaleSweepCompleted, Payload: *result})
	}

	return result, nil
}

// RecoverQueued re-dispatches every queued test, regardless of age. Run
// once at startup to pick up tests a previous process accepted but never
// dispatched.
func (s *Service) RecoverQueued(ctx context.Context) (int, error) {
	queued, err := s.tests.ListTestsByStatus(ctx, models.TestStatusQueued, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to list queued tests: %w", err)
	}

	count := 0
	for _, test := range queued {
		if s.Dispatch(test.ID) {
			count++
		}
	}

	if count > 0 {
		s.logger.Info().Int("count", count).Msg("Recovered queued tests")
	}
	return count, nil
}
