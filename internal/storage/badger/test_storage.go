package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
)

// TestStorage implements the TestStorage interface for Badger
type TestStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTestStorage creates a new TestStorage instance
func NewTestStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TestStorage {
	return &TestStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TestStorage) GetTest(ctx context.Context, id string) (*models.Test, error) {
	var test models.Test
	if err := s.db.Store().Get(id, &test); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrTestNotFound, id)
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return &test, nil
}

func (s *TestStorage) ListTests(ctx context.Context, accountID string, status models.TestStatus, limit int) ([]*models.Test, error) {
	query := badgerhold.Where("AccountID").Eq(accountID)
	if status != "" {
		query = query.And("Status").Eq(status)
	}

	var tests []models.Test
	if err := s.db.Store().Find(&tests, query); err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}

	sort.SliceStable(tests, func(i, j int) bool {
		return tests[i].CreatedAt.After(tests[j].CreatedAt)
	})

	return toTestPtrs(tests, limit), nil
}

func (s *TestStorage) ListTestsByStatus(ctx context.Context, status models.TestStatus, cutoff time.Time) ([]*models.Test, error) {
	var tests []models.Test
	if err := s.db.Store().Find(&tests, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to list %s tests: %w", status, err)
	}

	matched := tests[:0]
	for _, t := range tests {
		if cutoff.IsZero() || t.CreatedAt.Before(cutoff) {
			matched = append(matched, t)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return toTestPtrs(matched, 0), nil
}

func (s *TestStorage) MarkRunning(ctx context.Context, id string) (*models.Test, error) {
	var updated models.Test
	err := s.db.Update(func(tx *badger.Txn) error {
		test, err := txGetTest(s.db.Store(), tx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(test, models.TestStatusRunning); err != nil {
			return err
		}
		test.Status = models.TestStatusRunning
		updated = *test
		return s.db.Store().TxUpsert(tx, test.ID, test)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *TestStorage) Complete(ctx context.Context, id string, completion models.Completion) (*models.Test, error) {
	next := models.TestStatusSuccess
	if completion.Partial {
		next = models.TestStatusPartial
	}

	var updated models.Test
	err := s.db.Update(func(tx *badger.Txn) error {
		test, err := txGetTest(s.db.Store(), tx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(test, next); err != nil {
			return err
		}
		now := time.Now().UTC()
		test.Status = next
		test.Report = completion.Report
		test.Network = models.StringPtr(completion.Network)
		test.Error = nil
		test.CompletedAt = &now
		updated = *test
		return s.db.Store().TxUpsert(tx, test.ID, test)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *TestStorage) SetSharing(ctx context.Context, id string, shareID string, enabled bool) (*models.Test, error) {
	var updated models.Test
	err := s.db.Update(func(tx *badger.Txn) error {
		test, err := txGetTest(s.db.Store(), tx, id)
		if err != nil {
			return err
		}
		if test.ShareID == "" && enabled {
			test.ShareID = shareID
		}
		test.ShareEnabled = enabled
		updated = *test
		return s.db.Store().TxUpsert(tx, test.ID, test)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *TestStorage) GetTestByShareID(ctx context.Context, shareID string) (*models.Test, error) {
	if shareID == "" {
		return nil, fmt.Errorf("%w: empty share id", models.ErrTestNotFound)
	}
	var tests []models.Test
	if err := s.db.Store().Find(&tests, badgerhold.Where("ShareID").Eq(shareID).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find shared test: %w", err)
	}
	if len(tests) == 0 {
		return nil, fmt.Errorf("%w: share %s", models.ErrTestNotFound, shareID)
	}
	return &tests[0], nil
}

func txGetTest(store *badgerhold.Store, tx *badger.Txn, id string) (*models.Test, error) {
	var test models.Test
	if err := store.TxGet(tx, id, &test); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrTestNotFound, id)
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return &test, nil
}

func checkTransition(test *models.Test, next models.TestStatus) error {
	if test.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", models.ErrAlreadyTerminal, test.ID, test.Status)
	}
	if !test.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, test.Status, next)
	}
	return nil
}

func toTestPtrs(tests []models.Test, limit int) []*models.Test {
	if limit > 0 && len(tests) > limit {
		tests = tests[:limit]
	}
	result := make([]*models.Test, len(tests))
	for i := range tests {
		result[i] = &tests[i]
	}
	return result
}
