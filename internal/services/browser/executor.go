// -----------------------------------------------------------------------
// Browser Worker - executes one isolated link test run
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/models"
	"github.com/ternarybob/linkprobe/internal/services/classifier"
)

// ExecutorConfig bounds a run.
type ExecutorConfig struct {
	ExecutionTimeout time.Duration // Hard budget for the whole run
	MaxSessions      int           // Concurrent sessions, 0 for unbounded
}

// Executor runs link tests, each in its own browser session.
type Executor struct {
	config     ExecutorConfig
	sessions   SessionFactory
	classifier *classifier.Classifier
	consent    *ConsentEngine
	slots      chan struct{}
	logger     arbor.ILogger
}

// NewExecutor creates an executor.
func NewExecutor(config ExecutorConfig, sessions SessionFactory, cls *classifier.Classifier, consent *ConsentEngine, logger arbor.ILogger) *Executor {
	if config.ExecutionTimeout <= 0 {
		config.ExecutionTimeout = 60 * time.Second
	}
	x := &Executor{
		config:     config,
		sessions:   sessions,
		classifier: cls,
		consent:    consent,
		logger:     logger,
	}
	if config.MaxSessions > 0 {
		x.slots = make(chan struct{}, config.MaxSessions)
	}
	return x
}

// Run executes req within the execution timeout. The session is released on
// every exit path, including when the deadline fires mid-step.
func (x *Executor) Run(ctx context.Context, req *models.RunRequest) (*models.RunResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, x.config.ExecutionTimeout)
	defer cancel()

	logger := x.logger.WithCorrelationId(req.ID)

	if x.slots != nil {
		select {
		case x.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, x.contextError(ctx)
		}
	}

	type outcome struct {
		result *models.RunResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		// The slot is held until the session is released, not until Run returns
		if x.slots != nil {
			defer func() { <-x.slots }()
		}
		result, err := x.execute(ctx, req, logger)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if ctx.Err() != nil {
				return nil, x.contextError(ctx)
			}
			logger.Warn().Err(o.err).Str("url", req.URL).Msg("Link test run failed")
			return nil, o.err
		}
		logger.Info().
			Str("url", req.URL).
			Str("network", o.result.NetworkDetected).
			Int("hops", len(o.result.RedirectChain)).
			Int64("duration_ms", o.result.Timing.DurationMs).
			Msg("Link test run completed")
		return o.result, nil
	case <-ctx.Done():
		logger.Warn().Str("url", req.URL).Msg("Link test run exceeded execution timeout")
		return nil, x.contextError(ctx)
	}
}

func (x *Executor) contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %d seconds", models.ErrExecutionTimeout, int(x.config.ExecutionTimeout.Seconds()))
	}
	return ctx.Err()
}

func (x *Executor) execute(ctx context.Context, req *models.RunRequest, logger arbor.ILogger) (*models.RunResult, error) {
	start := time.Now()

	session, err := x.sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire browser session: %w", err)
	}
	stop := context.AfterFunc(ctx, session.Release)
	defer stop()
	defer session.Release()

	finalURL, chain, err := session.Navigate(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("final_url", finalURL).Int("hops", len(chain)).Msg("Navigation finished")

	urls := make([]string, 0, len(chain))
	for _, hop := range chain {
		urls = append(urls, hop.URL)
	}
	if len(urls) == 0 {
		urls = append(urls, finalURL)
	}

	result := &models.RunResult{
		ID:                    req.ID,
		Success:               true,
		RedirectChain:         chain,
		FinalURL:              finalURL,
		NetworkDetected:       x.classifier.Classify(urls),
		ParameterPreservation: classifier.ParametersPreserved(urls[0], finalURL),
	}

	page := session.Page()

	if req.Kind == models.TestKindCmpTest {
		cmp, err := x.consent.Run(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("consent interaction failed: %w", err)
		}
		result.CmpResult = cmp
	}

	result.Cookies, err = page.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	result.Screenshot, err = page.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	result.Timing = models.NewTiming(start, time.Now())
	return result, nil
}
