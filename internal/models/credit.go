package models

import (
	"time"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTestCharge       TransactionType = "test_charge"
	TransactionRefund           TransactionType = "refund"
	TransactionWelcomeBonus     TransactionType = "welcome_bonus"
	TransactionManualAdjustment TransactionType = "manual_adjustment"
)

// Ledger notes recorded by the pipeline
const (
	NoteRefundFailed  = "Refund for failed test"
	NoteRefundTimeout = "Refund for timed-out test"
	NoteWelcomeBonus  = "Welcome bonus"
)

// CreditTransaction is an immutable ledger entry. The sum of Amount over an
// account's entries equals the account's balance.
type CreditTransaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId" badgerhold:"index"`
	Amount       int             `json:"amount"` // Signed: negative for charges
	Type         TransactionType `json:"type"`
	TestID       string          `json:"testId,omitempty" badgerhold:"index"`
	BalanceAfter int             `json:"balanceAfter"`
	Note         string          `json:"note,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Account holds the credit balance shared by its profiles.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile maps an external user to an account. APIKey is the bearer token
// callers present to the orchestrator.
type Profile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId" badgerhold:"index"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	AccountID string    `json:"accountId"`
	APIKey    string    `json:"-" badgerhold:"index"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity is a resolved caller.
type Identity struct {
	ProfileID string
	AccountID string
}

// CreditHistory is the balance plus recent ledger entries for an account.
type CreditHistory struct {
	Balance      int                  `json:"balance"`
	Transactions []*CreditTransaction `json:"transactions"`
}
