package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ternarybob/linkprobe/internal/models"
)

const shareIDLength = 12

// EnableShare turns on the public link for one of the caller's tests and
// returns its share id. A test shared before keeps its id.
func (s *Service) EnableShare(ctx context.Context, identity *models.Identity, id string) (string, error) {
	if _, err := s.Get(ctx, identity, id); err != nil {
		return "", err
	}
	test, err := s.tests.SetSharing(ctx, id, newShareID(), true)
	if err != nil {
		return "", fmt.Errorf("failed to enable sharing: %w", err)
	}
	s.logger.Info().Str("test_id", id).Str("share_id", test.ShareID).Msg("Test sharing enabled")
	return test.ShareID, nil
}

// DisableShare turns off the public link. The share id is kept.
func (s *Service) DisableShare(ctx context.Context, identity *models.Identity, id string) error {
	if _, err := s.Get(ctx, identity, id); err != nil {
		return err
	}
	if _, err := s.tests.SetSharing(ctx, id, "", false); err != nil {
		return fmt.Errorf("failed to disable sharing: %w", err)
	}
	s.logger.Info().Str("test_id", id).Msg("Test sharing disabled")
	return nil
}

// GetShared returns the public view of a shared test. Unknown and disabled
// links both report models.ErrTestNotFound.
func (s *Service) GetShared(ctx context.Context, shareID string) (*models.SharedTest, error) {
	test, err := s.tests.GetTestByShareID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if !test.ShareEnabled {
		return nil, fmt.Errorf("%w: share %s", models.ErrTestNotFound, shareID)
	}
	steps, err := s.screenshots.ListScreenshotSteps(ctx, test.ID)
	if err != nil {
		return nil, err
	}
	return models.NewSharedTest(test, steps), nil
}

// SharedScreenshot returns a screenshot of a shared test.
func (s *Service) SharedScreenshot(ctx context.Context, shareID string, step models.ScreenshotStep) (*models.Screenshot, error) {
	test, err := s.tests.GetTestByShareID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if !test.ShareEnabled {
		return nil, fmt.Errorf("%w: share %s", models.ErrTestNotFound, shareID)
	}
	return s.screenshots.GetScreenshot(ctx, test.ID, step)
}

func newShareID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:shareIDLength]
}
