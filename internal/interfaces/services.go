package interfaces

import (
	"context"

	"github.com/ternarybob/linkprobe/internal/models"
)

// WorkerClient calls the browser worker control protocol.
type WorkerClient interface {
	// Run blocks until the worker answers or ctx ends. Errors wrap
	// models.ErrWorkerUnreachable or models.ErrWorkerReportedFailure.
	Run(ctx context.Context, req *models.RunRequest) (*models.RunResult, error)
	Health(ctx context.Context) error
}

// IdentityService resolves callers and provisions profiles.
type IdentityService interface {
	// Resolve maps an API key to the caller's profile and account.
	Resolve(ctx context.Context, apiKey string) (*models.Identity, error)
	EnsureProfile(ctx context.Context, userID, email, name string) (*models.Profile, bool, error)
	GrantCredits(ctx context.Context, accountID string, amount int, note string) (*models.CreditTransaction, error)
}
