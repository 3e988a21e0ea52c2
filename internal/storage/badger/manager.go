package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/common"
	"github.com/ternarybob/linkprobe/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	test       interfaces.TestStorage
	ledger     interfaces.LedgerStorage
	account    interfaces.AccountStorage
	screenshot interfaces.ScreenshotStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)
	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:         db,
		test:       NewTestStorage(db, logger),
		ledger:     NewLedgerStorage(db, logger),
		account:    NewAccountStorage(db, logger),
		screenshot: NewScreenshotStorage(db, logger),
		logger:     logger,
	}
}

// TestStorage returns the Test storage interface
func (m *Manager) TestStorage() interfaces.TestStorage {
	return m.test
}

// LedgerStorage returns the credit ledger interface
func (m *Manager) LedgerStorage() interfaces.LedgerStorage {
	return m.ledger
}

// AccountStorage returns the Account storage interface
func (m *Manager) AccountStorage() interfaces.AccountStorage {
	return m.account
}

// ScreenshotStorage returns the Screenshot storage interface
func (m *Manager) ScreenshotStorage() interfaces.ScreenshotStorage {
	return m.screenshot
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}
