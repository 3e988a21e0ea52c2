package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/common"
	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
	"github.com/ternarybob/linkprobe/internal/storage/badger"
)

func newTestService(t *testing.T, welcome int) (interfaces.IdentityService, interfaces.StorageManager) {
	t.Helper()
	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return NewService(manager.AccountStorage(), manager.LedgerStorage(), welcome, logger), manager
}

func TestEnsureProfileCreatesOnce(t *testing.T) {
	svc, manager := newTestService(t, 50)
	ctx := context.Background()

	profile, created, err := svc.EnsureProfile(ctx, "user-1", "a@example.com", "Ada")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, profile.AccountID)
	assert.Contains(t, profile.APIKey, "lp_")

	again, created, err := svc.EnsureProfile(ctx, "user-1", "a@example.com", "Ada")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, profile.ID, again.ID)

	account, err := manager.AccountStorage().GetAccount(ctx, profile.AccountID)
	require.NoError(t, err)
	assert.Equal(t, 50, account.Credits)
	assert.Equal(t, "Ada", account.Name)
}

func TestEnsureProfileRequiresUserID(t *testing.T) {
	svc, _ := newTestService(t, 50)
	_, _, err := svc.EnsureProfile(context.Background(), "  ", "", "")
	assert.ErrorIs(t, err, models.ErrMalformedRequest)
}

func TestResolve(t *testing.T) {
	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	profile, _, err := svc.EnsureProfile(ctx, "user-1", "a@example.com", "")
	require.NoError(t, err)

	id, err := svc.Resolve(ctx, profile.APIKey)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, id.ProfileID)
	assert.Equal(t, profile.AccountID, id.AccountID)

	_, err = svc.Resolve(ctx, "")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	_, err = svc.Resolve(ctx, "lp_unknown")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestGrantCredits(t *testing.T) {
	svc, manager := newTestService(t, 0)
	ctx := context.Background()

	profile, _, err := svc.EnsureProfile(ctx, "user-1", "a@example.com", "")
	require.NoError(t, err)

	entry, err := svc.GrantCredits(ctx, profile.AccountID, 25, "pilot")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionManualAdjustment, entry.Type)
	assert.Equal(t, 25, entry.BalanceAfter)

	entries, err := manager.LedgerStorage().ListTransactions(ctx, profile.AccountID, 50)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = svc.GrantCredits(ctx, "missing", 5, "")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}
