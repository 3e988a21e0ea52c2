// -----------------------------------------------------------------------
// Credit ledger - balance changes always land with their ledger entry
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
)

// LedgerStorage implements the LedgerStorage interface for Badger
type LedgerStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLedgerStorage creates a new LedgerStorage instance
func NewLedgerStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LedgerStorage {
	return &LedgerStorage{
		db:     db,
		logger: logger,
	}
}

func (s *LedgerStorage) CreateTestWithCharge(ctx context.Context, test *models.Test) (*models.CreditTransaction, error) {
	if test.ID == "" || test.AccountID == "" {
		return nil, fmt.Errorf("test ID and account ID are required")
	}
	if test.CreditsCharged <= 0 {
		return nil, fmt.Errorf("%w: charge must be positive", models.ErrInvalidAmount)
	}

	var entry *models.CreditTransaction
	err := s.db.Update(func(tx *badger.Txn) error {
		store := s.db.Store()

		account, err := txGetAccount(store, tx, test.AccountID)
		if err != nil {
			return err
		}
		if account.Credits < test.CreditsCharged {
			return fmt.Errorf("%w: balance %d, price %d", models.ErrInsufficientCredits, account.Credits, test.CreditsCharged)
		}

		now := time.Now().UTC()
		account.Credits -= test.CreditsCharged
		account.UpdatedAt = now
		if err := store.TxUpsert(tx, account.ID, account); err != nil {
			return fmt.Errorf("failed to debit account: %w", err)
		}

		if err := store.TxInsert(tx, test.ID, test); err != nil {
			return fmt.Errorf("failed to insert test: %w", err)
		}

		entry = newEntry(account, -test.CreditsCharged, models.TransactionTestCharge, test.ID, "", now)
		if err := store.TxInsert(tx, entry.ID, entry); err != nil {
			return fmt.Errorf("failed to record charge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *LedgerStorage) FailAndRefund(ctx context.Context, testID string, message string, note string) (*models.Test, *models.CreditTransaction, error) {
	var (
		updated models.Test
		entry   *models.CreditTransaction
	)
	err := s.db.Update(func(tx *badger.Txn) error {
		store := s.db.Store()
		entry = nil

		test, err := txGetTest(store, tx, testID)
		if err != nil {
			return err
		}
		if err := checkTransition(test, models.TestStatusFailed); err != nil {
			return err
		}

		now := time.Now().UTC()
		test.Status = models.TestStatusFailed
		test.Error = models.StringPtr(message)
		test.CompletedAt = &now
		if err := store.TxUpsert(tx, test.ID, test); err != nil {
			return fmt.Errorf("failed to update test: %w", err)
		}
		updated = *test

		// A test is refunded at most once, whatever path failed it.
		var refunds []models.CreditTransaction
		query := badgerhold.Where("TestID").Eq(testID).And("Type").Eq(models.TransactionRefund)
		if err := store.TxFind(tx, &refunds, query); err != nil {
			return fmt.Errorf("failed to check existing refunds: %w", err)
		}
		if len(refunds) > 0 || test.CreditsCharged <= 0 {
			return nil
		}

		account, err := txGetAccount(store, tx, test.AccountID)
		if err != nil {
			return err
		}
		account.Credits += test.CreditsCharged
		account.UpdatedAt = now
		if err := store.TxUpsert(tx, account.ID, account); err != nil {
			return fmt.Errorf("failed to credit account: %w", err)
		}

		entry = newEntry(account, test.CreditsCharged, models.TransactionRefund, test.ID, note, now)
		if err := store.TxInsert(tx, entry.ID, entry); err != nil {
			return fmt.Errorf("failed to record refund: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &updated, entry, nil
}

func (s *LedgerStorage) Grant(ctx context.Context, accountID string, amount int, txType models.TransactionType, note string) (*models.CreditTransaction, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be non-zero", models.ErrInvalidAmount)
	}

	var entry *models.CreditTransaction
	err := s.db.Update(func(tx *badger.Txn) error {
		store := s.db.Store()

		account, err := txGetAccount(store, tx, accountID)
		if err != nil {
			return err
		}
		if account.Credits+amount < 0 {
			return fmt.Errorf("%w: balance %d, adjustment %d", models.ErrInsufficientCredits, account.Credits, amount)
		}

		now := time.Now().UTC()
		account.Credits += amount
		account.UpdatedAt = now
		if err := store.TxUpsert(tx, account.ID, account); err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}

		entry = newEntry(account, amount, txType, "", note, now)
		return store.TxInsert(tx, entry.ID, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *LedgerStorage) ListTransactions(ctx context.Context, accountID string, limit int) ([]*models.CreditTransaction, error) {
	var entries []models.CreditTransaction
	if err := s.db.Store().Find(&entries, badgerhold.Where("AccountID").Eq(accountID)); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	return toEntryPtrs(entries, limit), nil
}

func (s *LedgerStorage) ListTransactionsForTest(ctx context.Context, testID string) ([]*models.CreditTransaction, error) {
	var entries []models.CreditTransaction
	if err := s.db.Store().Find(&entries, badgerhold.Where("TestID").Eq(testID)); err != nil {
		return nil, fmt.Errorf("failed to list transactions for test: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	return toEntryPtrs(entries, 0), nil
}

func txGetAccount(store *badgerhold.Store, tx *badger.Txn, id string) (*models.Account, error) {
	var account models.Account
	if err := store.TxGet(tx, id, &account); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func newEntry(account *models.Account, amount int, txType models.TransactionType, testID, note string, at time.Time) *models.CreditTransaction {
	return &models.CreditTransaction{
		ID:           uuid.New().String(),
		AccountID:    account.ID,
		Amount:       amount,
		Type:         txType,
		TestID:       testID,
		BalanceAfter: account.Credits,
		Note:         note,
		CreatedAt:    at,
	}
}

func toEntryPtrs(entries []models.CreditTransaction, limit int) []*models.CreditTransaction {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	result := make([]*models.CreditTransaction, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result
}
