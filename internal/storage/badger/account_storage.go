package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
)

// AccountStorage implements the AccountStorage interface for Badger
type AccountStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAccountStorage creates a new AccountStorage instance
func NewAccountStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AccountStorage {
	return &AccountStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AccountStorage) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Store().Get(id, &account); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (s *AccountStorage) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.Store().Get(id, &profile); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrProfileNotFound, id)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (s *AccountStorage) GetProfileByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	return s.findProfile(badgerhold.Where("UserID").Eq(userID))
}

func (s *AccountStorage) GetProfileByAPIKey(ctx context.Context, apiKey string) (*models.Profile, error) {
	if apiKey == "" {
		return nil, models.ErrProfileNotFound
	}
	return s.findProfile(badgerhold.Where("APIKey").Eq(apiKey))
}

func (s *AccountStorage) findProfile(query *badgerhold.Query) (*models.Profile, error) {
	var profiles []models.Profile
	if err := s.db.Store().Find(&profiles, query.Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if len(profiles) == 0 {
		return nil, models.ErrProfileNotFound
	}
	return &profiles[0], nil
}

func (s *AccountStorage) CreateAccountWithProfile(ctx context.Context, account *models.Account, profile *models.Profile, welcome int) error {
	if account.ID == "" || profile.ID == "" || profile.UserID == "" {
		return fmt.Errorf("account ID, profile ID and user ID are required")
	}
	if welcome < 0 {
		return fmt.Errorf("%w: welcome credits must not be negative", models.ErrInvalidAmount)
	}

	return s.db.Update(func(tx *badger.Txn) error {
		store := s.db.Store()

		var existing []models.Profile
		if err := store.TxFind(tx, &existing, badgerhold.Where("UserID").Eq(profile.UserID)); err != nil {
			return fmt.Errorf("failed to check existing profile: %w", err)
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: user %s", models.ErrProfileExists, profile.UserID)
		}

		now := time.Now().UTC()
		account.Credits = welcome
		account.CreatedAt = now
		account.UpdatedAt = now
		if err := store.TxInsert(tx, account.ID, account); err != nil {
			return fmt.Errorf("failed to insert account: %w", err)
		}

		profile.AccountID = account.ID
		profile.CreatedAt = now
		if err := store.TxInsert(tx, profile.ID, profile); err != nil {
			return fmt.Errorf("failed to insert profile: %w", err)
		}

		if welcome > 0 {
			entry := newEntry(account, welcome, models.TransactionWelcomeBonus, "", models.NoteWelcomeBonus, now)
			if err := store.TxInsert(tx, entry.ID, entry); err != nil {
				return fmt.Errorf("failed to record welcome bonus: %w", err)
			}
		}
		return nil
	})
}
