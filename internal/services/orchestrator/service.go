// -----------------------------------------------------------------------
// Task Orchestrator - owns the Test lifecycle and the credit ledger
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
	"github.com/ternarybob/linkprobe/internal/services/classifier"
	"github.com/ternarybob/linkprobe/internal/services/report"
)

const (
	// DefaultStaleThreshold is the age after which a running test is failed.
	DefaultStaleThreshold = 5 * time.Minute

	// DefaultCallTimeout bounds one worker call.
	DefaultCallTimeout = 75 * time.Second

	// HistoryLimit is the number of ledger entries returned by CreditHistory.
	HistoryLimit = 50

	// statsWindow caps how many tests feed the dashboard stats.
	statsWindow = 1000
	recentTests = 5
)

// Config controls dispatch and staleness.
type Config struct {
	CallTimeout    time.Duration
	StaleThreshold time.Duration
}

// Service is the task orchestrator. Every Test mutation goes through it.
type Service struct {
	tests       interfaces.TestStorage
	ledger      interfaces.LedgerStorage
	accounts    interfaces.AccountStorage
	screenshots interfaces.ScreenshotStorage
	worker      interfaces.WorkerClient // nil when no worker URL is configured
	builder     *report.Builder
	events      interfaces.EventService
	config      Config
	logger      arbor.ILogger

	// ctx is the parent of every dispatch; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	inflight sync.Map // testID -> struct{} for dispatches owned by this process
}

// NewService creates the orchestrator. worker may be nil, in which case
// every dispatch fails with ErrWorkerMisconfigured and is refunded.
func NewService(
	storage interfaces.StorageManager,
	worker interfaces.WorkerClient,
	builder *report.Builder,
	events interfaces.EventService,
	config Config,
	logger arbor.ILogger,
) *Service {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	if config.StaleThreshold <= 0 {
		config.StaleThreshold = DefaultStaleThreshold
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		tests:       storage.TestStorage(),
		ledger:      storage.LedgerStorage(),
		accounts:    storage.AccountStorage(),
		screenshots: storage.ScreenshotStorage(),
		worker:      worker,
		builder:     builder,
		events:      events,
		config:      config,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Create validates the request, charges the caller's account and queues a
// test, then starts dispatch in the background. On any error no Test exists
// and no credits moved.
func (s *Service) Create(ctx context.Context, identity *models.Identity, rawURL string, kind models.TestKind) (string, error) {
	if identity == nil || identity.ProfileID == "" {
		return "", models.ErrUnauthenticated
	}
	if _, ok := classifier.ParseURL(rawURL); !ok {
		return "", models.ErrInvalidURL
	}
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %s", models.ErrUnsupportedKind, kind)
	}

	profile, err := s.accounts.GetProfile(ctx, identity.ProfileID)
	if err != nil {
		return "", err
	}

	test := &models.Test{
		ID:             uuid.New().String(),
		AccountID:      profile.AccountID,
		ProfileID:      profile.ID,
		URL:            rawURL,
		Kind:           kind,
		Status:         models.TestStatusQueued,
		CreditsCharged: kind.Price(),
		CreatedAt:      time.Now().UTC(),
	}

	charge, err := s.ledger.CreateTestWithCharge(ctx, test)
	if err != nil {
		return "", err
	}

	s.logger.Info().
		Str("test_id", test.ID).
		Str("account_id", test.AccountID).
		Str("kind", string(kind)).
		Int("charged", test.CreditsCharged).
		Int("balance", charge.BalanceAfter).
		Msg("Test queued")

	s.publishStatus(ctx, test)
	s.Dispatch(test.ID)

	return test.ID, nil
}

// Get returns a test owned by the caller's account.
func (s *Service) Get(ctx context.Context, identity *models.Identity, id string) (*models.Test, error) {
	test, err := s.tests.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if identity == nil || test.AccountID != identity.AccountID {
		return nil, fmt.Errorf("%w: %s", models.ErrTestNotFound, id)
	}
	return test, nil
}

// List returns the caller's tests newest first, optionally by status.
func (s *Service) List(ctx context.Context, identity *models.Identity, status models.TestStatus, limit int) ([]*models.Test, error) {
	if identity == nil {
		return nil, models.ErrUnauthenticated
	}
	return s.tests.ListTests(ctx, identity.AccountID, status, limit)
}

// Screenshot returns a PNG captured for one of the caller's tests.
func (s *Service) Screenshot(ctx context.Context, identity *models.Identity, id string, step models.ScreenshotStep) (*models.Screenshot, error) {
	if _, err := s.Get(ctx, identity, id); err != nil {
		return nil, err
	}
	return s.screenshots.GetScreenshot(ctx, id, step)
}

// CreditHistory returns the caller's balance and newest ledger entries.
func (s *Service) CreditHistory(ctx context.Context, identity *models.Identity) (*models.CreditHistory, error) {
	if identity == nil {
		return nil, models.ErrUnauthenticated
	}
	account, err := s.accounts.GetAccount(ctx, identity.AccountID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListTransactions(ctx, identity.AccountID, HistoryLimit)
	if err != nil {
		return nil, err
	}
	return &models.CreditHistory{Balance: account.Credits, Transactions: entries}, nil
}

// Stats summarises the caller's most recent tests.
func (s *Service) Stats(ctx context.Context, identity *models.Identity) (*models.DashboardStats, error) {
	if identity == nil {
		return nil, models.ErrUnauthenticated
	}
	tests, err := s.tests.ListTests(ctx, identity.AccountID, "", statsWindow)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats := &models.DashboardStats{
		TotalTests:       len(tests),
		NetworkBreakdown: make(map[string]int),
		RecentTests:      tests[:min(recentTests, len(tests))],
	}
	for _, t := range tests {
		switch {
		case t.Status == models.TestStatusSuccess:
			stats.SuccessTests++
		case t.Status == models.TestStatusFailed:
			stats.FailedTests++
		case t.Status.InFlight():
			stats.InFlightTests++
		}
		if t.Network != nil && *t.Network != "" {
			stats.NetworkBreakdown[*t.Network]++
		}
		if !t.CreatedAt.Before(monthStart) {
			stats.CreditsThisMonth += t.CreditsCharged
		}
	}
	return stats, nil
}

// Wait blocks until every dispatch started so far has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown waits for in-flight dispatches until ctx ends, then cancels
// whatever is left. Tests interrupted this way stay running and are
// resolved by the stale sweep.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return fmt.Errorf("dispatches interrupted by shutdown: %w", ctx.Err())
	}
}

func (s *Service) publishStatus(ctx context.Context, test *models.Test) {
	if s.events == nil {
		return
	}
	event := interfaces.Event{
		Type:    interfaces.EventTestStatusChanged,
		Payload: models.NewTestStatusEvent(test),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("test_id", test.ID).Msg("Failed to publish status event")
	}
}

// isTerminalRace reports a write that lost to an earlier outcome.
func isTerminalRace(err error) bool {
	return errors.Is(err, models.ErrAlreadyTerminal) || errors.Is(err, models.ErrInvalidTransition)
}
