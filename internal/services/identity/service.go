// Package identity resolves API callers and provisions their profiles.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
)

// apiKeyPrefix marks keys issued by this service.
const apiKeyPrefix = "lp_"

// Service implements interfaces.IdentityService on top of storage.
type Service struct {
	accounts       interfaces.AccountStorage
	ledger         interfaces.LedgerStorage
	welcomeCredits int
	logger         arbor.ILogger
}

// NewService creates an identity service. New accounts start with
// welcomeCredits.
func NewService(accounts interfaces.AccountStorage, ledger interfaces.LedgerStorage, welcomeCredits int, logger arbor.ILogger) interfaces.IdentityService {
	return &Service{
		accounts:       accounts,
		ledger:         ledger,
		welcomeCredits: welcomeCredits,
		logger:         logger,
	}
}

// Resolve maps apiKey to the caller. An unknown key is unauthenticated; a
// profile whose account is gone is ErrAccountNotFound.
func (s *Service) Resolve(ctx context.Context, apiKey string) (*models.Identity, error) {
	if apiKey == "" {
		return nil, models.ErrUnauthenticated
	}

	profile, err := s.accounts.GetProfileByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, err
	}
	if profile.AccountID == "" {
		return nil, fmt.Errorf("%w: profile %s has no account", models.ErrAccountNotFound, profile.ID)
	}

	return &models.Identity{ProfileID: profile.ID, AccountID: profile.AccountID}, nil
}

// EnsureProfile returns the profile for userID, creating it with a personal
// account and the welcome bonus when missing. The bool reports creation.
func (s *Service) EnsureProfile(ctx context.Context, userID, email, name string) (*models.Profile, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, false, fmt.Errorf("%w: user ID is required", models.ErrMalformedRequest)
	}

	existing, err := s.accounts.GetProfileByUserID(ctx, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, models.ErrProfileNotFound) {
		return nil, false, err
	}

	accountName := name
	if accountName == "" {
		accountName = email
	}
	account := &models.Account{
		ID:   uuid.New().String(),
		Name: accountName,
	}
	profile := &models.Profile{
		ID:     uuid.New().String(),
		UserID: userID,
		Email:  email,
		Name:   name,
		APIKey: NewAPIKey(),
	}

	if err := s.accounts.CreateAccountWithProfile(ctx, account, profile, s.welcomeCredits); err != nil {
		if errors.Is(err, models.ErrProfileExists) {
			// Lost a race with a concurrent provision for the same user
			existing, getErr := s.accounts.GetProfileByUserID(ctx, userID)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create profile: %w", err)
	}

	s.logger.Info().
		Str("profile_id", profile.ID).
		Str("account_id", account.ID).
		Int("welcome_credits", s.welcomeCredits).
		Msg("Profile provisioned")

	return profile, true, nil
}

// GrantCredits applies a manual adjustment to an account.
func (s *Service) GrantCredits(ctx context.Context, accountID string, amount int, note string) (*models.CreditTransaction, error) {
	entry, err := s.ledger.Grant(ctx, accountID, amount, models.TransactionManualAdjustment, note)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("account_id", accountID).
		Int("amount", amount).
		Int("balance", entry.BalanceAfter).
		Msg("Credits adjusted")

	return entry, nil
}

// NewAPIKey returns a fresh random API key.
func NewAPIKey() string {
	return apiKeyPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}
