package handlers

import (
	"context"

	"github.com/ternarybob/linkprobe/internal/models"
)

// TestService defines the caller-facing operations of the orchestrator.
type TestService interface {
	Create(ctx context.Context, identity *models.Identity, rawURL string, kind models.TestKind) (string, error)
	Get(ctx context.Context, identity *models.Identity, id string) (*models.Test, error)
	List(ctx context.Context, identity *models.Identity, status models.TestStatus, limit int) ([]*models.Test, error)
	Screenshot(ctx context.Context, identity *models.Identity, id string, step models.ScreenshotStep) (*models.Screenshot, error)
	CreditHistory(ctx context.Context, identity *models.Identity) (*models.CreditHistory, error)
	Stats(ctx context.Context, identity *models.Identity) (*models.DashboardStats, error)

	EnableShare(ctx context.Context, identity *models.Identity, id string) (string, error)
	DisableShare(ctx context.Context, identity *models.Identity, id string) error
}

// SharedTestService serves public share links without an identity.
type SharedTestService interface {
	GetShared(ctx context.Context, shareID string) (*models.SharedTest, error)
	SharedScreenshot(ctx context.Context, shareID string, step models.ScreenshotStep) (*models.Screenshot, error)
}

// StaleSweeper runs one staleness sweep on demand.
type StaleSweeper interface {
	RunStaleSweep(ctx context.Context) (*models.SweepResult, error)
}

// HealthChecker reports whether a downstream dependency answers.
type HealthChecker interface {
	Health(ctx context.Context) error
}
