package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/common"
	"github.com/ternarybob/linkprobe/internal/models"
)

// Dispatch starts the run of a queued test in the background. It returns
// false when this process is already dispatching the test.
func (s *Service) Dispatch(testID string) bool {
	if _, busy := s.inflight.LoadOrStore(testID, struct{}{}); busy {
		return false
	}

	s.wg.Add(1)
	common.SafeGo(s.logger, "dispatch:"+testID, func() {
		defer s.wg.Done()
		defer s.inflight.Delete(testID)
		s.run(s.ctx, testID)
	})
	return true
}

// run drives one test from queued to a terminal status.
func (s *Service) run(ctx context.Context, testID string) {
	logger := s.logger.WithCorrelationId(testID)

	test, err := s.tests.MarkRunning(ctx, testID)
	if err != nil {
		if isTerminalRace(err) {
			logger.Debug().Err(err).Msg("Test no longer queued, skipping dispatch")
			return
		}
		logger.Error().Err(err).Msg("Failed to mark test running")
		return
	}
	s.publishStatus(ctx, test)

	if s.worker == nil {
		s.fail(ctx, testID, models.ErrWorkerMisconfigured.Error(), logger)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()

	result, err := s.worker.Run(callCtx, &models.RunRequest{ID: test.ID, URL: test.URL, Kind: test.Kind})
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a test failure. The sweep settles it.
			logger.Warn().Msg("Dispatch interrupted by shutdown")
			return
		}
		s.fail(ctx, testID, s.failureMessage(callCtx, err), logger)
		return
	}

	rpt, err := s.builder.Build(test.Kind, result)
	if err != nil {
		s.fail(ctx, testID, fmt.Sprintf("invalid worker result: %v", err), logger)
		return
	}

	s.saveScreenshots(ctx, testID, result, logger)

	done, err := s.tests.Complete(ctx, testID, models.Completion{Report: rpt, Network: result.NetworkDetected})
	if err != nil {
		if isTerminalRace(err) {
			logger.Warn().Err(err).Msg("Worker result arrived after the test was finalised, discarding")
			return
		}
		logger.Error().Err(err).Msg("Failed to record test result")
		return
	}

	logger.Info().
		Str("network", result.NetworkDetected).
		Bool("parameters_preserved", result.ParameterPreservation).
		Int64("duration_ms", result.Timing.DurationMs).
		Msg("Test succeeded")
	s.publishStatus(ctx, done)
}

// fail marks the test failed and refunds it in one step. A test that
// already has an outcome is left untouched.
func (s *Service) fail(ctx context.Context, testID, message string, logger arbor.ILogger) {
	test, refund, err := s.ledger.FailAndRefund(ctx, testID, message, models.NoteRefundFailed)
	if err != nil {
		if isTerminalRace(err) {
			logger.Debug().Err(err).Msg("Test already finalised, no refund issued")
			return
		}
		logger.Error().Err(err).Str("reason", message).Msg("Failed to fail and refund test")
		return
	}

	event := logger.Warn().Str("reason", message)
	if refund != nil {
		event = event.Int("refunded", refund.Amount).Int("balance", refund.BalanceAfter)
	}
	event.Msg("Test failed")

	s.publishStatus(ctx, test)
}

func (s *Service) failureMessage(callCtx context.Context, err error) string {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("%s after %s (no response from worker)", models.ErrExecutionTimeout, s.config.CallTimeout)
	}
	return err.Error()
}

func (s *Service) saveScreenshots(ctx context.Context, testID string, result *models.RunResult, logger arbor.ILogger) {
	shots := map[models.ScreenshotStep][]byte{
		models.ScreenshotFinal: result.Screenshot,
	}
	if result.CmpResult != nil {
		shots[models.ScreenshotConsentBefore] = result.CmpResult.ScreenshotBefore
		shots[models.ScreenshotConsentAfter] = result.CmpResult.ScreenshotAfter
	}

	for step, png := range shots {
		if len(png) == 0 {
			continue
		}
		err := s.screenshots.SaveScreenshot(ctx, &models.Screenshot{TestID: testID, Step: step, PNG: png})
		if err != nil {
			logger.Warn().Err(err).Str("step", string(step)).Msg("Failed to store screenshot")
		}
	}
}
