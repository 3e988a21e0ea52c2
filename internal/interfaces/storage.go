// -----------------------------------------------------------------------
// Storage contracts for tests, accounts, the credit ledger and screenshots
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/linkprobe/internal/models"
)

// TestStorage - persistence for Test records
type TestStorage interface {
	GetTest(ctx context.Context, id string) (*models.Test, error)

	// ListTests returns an account's tests newest first. An empty status
	// matches every status; limit <= 0 means no limit.
	ListTests(ctx context.Context, accountID string, status models.TestStatus, limit int) ([]*models.Test, error)

	// ListTestsByStatus returns tests in status created before cutoff, oldest
	// first. A zero cutoff matches every test.
	ListTestsByStatus(ctx context.Context, status models.TestStatus, cutoff time.Time) ([]*models.Test, error)

	// MarkRunning moves a queued test to running.
	MarkRunning(ctx context.Context, id string) (*models.Test, error)

	// Complete records a successful outcome for a running test. Returns
	// models.ErrAlreadyTerminal when the test already has an outcome.
	Complete(ctx context.Context, id string, completion models.Completion) (*models.Test, error)

	// SetSharing turns the public link on or off. shareID is stored only
	// when the test has none yet. Sharing never changes the status.
	SetSharing(ctx context.Context, id string, shareID string, enabled bool) (*models.Test, error)

	// GetTestByShareID returns models.ErrTestNotFound when no test carries
	// shareID.
	GetTestByShareID(ctx context.Context, shareID string) (*models.Test, error)
}

// LedgerStorage - atomic operations spanning a balance, a ledger entry and
// (where relevant) a test. Each call is a single transaction.
type LedgerStorage interface {
	// CreateTestWithCharge debits the test's price from its account, inserts
	// the test and the test_charge entry. Returns
	// models.ErrInsufficientCredits without writing anything when the
	// balance is short.
	CreateTestWithCharge(ctx context.Context, test *models.Test) (*models.CreditTransaction, error)

	// FailAndRefund marks a running test failed and credits back its charge.
	// Returns models.ErrAlreadyTerminal when the test already has an outcome
	// and models.ErrInvalidTransition while it is still queued; in both
	// cases nothing is written.
	FailAndRefund(ctx context.Context, testID string, message string, note string) (*models.Test, *models.CreditTransaction, error)

	// Grant applies a signed adjustment and records it.
	Grant(ctx context.Context, accountID string, amount int, txType models.TransactionType, note string) (*models.CreditTransaction, error)

	// ListTransactions returns the account's newest entries first.
	ListTransactions(ctx context.Context, accountID string, limit int) ([]*models.CreditTransaction, error)

	// ListTransactionsForTest returns every entry referencing a test.
	ListTransactionsForTest(ctx context.Context, testID string) ([]*models.CreditTransaction, error)
}

// AccountStorage - persistence for accounts and profiles
type AccountStorage interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	GetProfileByUserID(ctx context.Context, userID string) (*models.Profile, error)
	GetProfileByAPIKey(ctx context.Context, apiKey string) (*models.Profile, error)

	// CreateAccountWithProfile inserts both records and, when welcome > 0,
	// the welcome_bonus entry in one transaction.
	CreateAccountWithProfile(ctx context.Context, account *models.Account, profile *models.Profile, welcome int) error
}

// ScreenshotStorage - PNG captures keyed by test and step
type ScreenshotStorage interface {
	SaveScreenshot(ctx context.Context, screenshot *models.Screenshot) error
	GetScreenshot(ctx context.Context, testID string, step models.ScreenshotStep) (*models.Screenshot, error)
	ListScreenshotSteps(ctx context.Context, testID string) ([]models.ScreenshotStep, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	TestStorage() TestStorage
	LedgerStorage() LedgerStorage
	AccountStorage() AccountStorage
	ScreenshotStorage() ScreenshotStorage
	DB() interface{}
	Close() error
}
