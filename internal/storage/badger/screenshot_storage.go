package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
)

// ScreenshotStorage implements the ScreenshotStorage interface for Badger
type ScreenshotStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScreenshotStorage creates a new ScreenshotStorage instance
func NewScreenshotStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScreenshotStorage {
	return &ScreenshotStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScreenshotStorage) SaveScreenshot(ctx context.Context, screenshot *models.Screenshot) error {
	if screenshot.TestID == "" || !screenshot.Step.Valid() {
		return fmt.Errorf("screenshot requires a test ID and a known step")
	}
	if screenshot.CreatedAt.IsZero() {
		screenshot.CreatedAt = time.Now().UTC()
	}

	key := models.ScreenshotKey(screenshot.TestID, screenshot.Step)
	if err := s.db.Store().Upsert(key, screenshot); err != nil {
		return fmt.Errorf("failed to store screenshot: %w", err)
	}
	return nil
}

func (s *ScreenshotStorage) GetScreenshot(ctx context.Context, testID string, step models.ScreenshotStep) (*models.Screenshot, error) {
	var screenshot models.Screenshot
	if err := s.db.Store().Get(models.ScreenshotKey(testID, step), &screenshot); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", models.ErrScreenshotMissing, testID, step)
		}
		return nil, fmt.Errorf("failed to get screenshot: %w", err)
	}
	return &screenshot, nil
}

func (s *ScreenshotStorage) ListScreenshotSteps(ctx context.Context, testID string) ([]models.ScreenshotStep, error) {
	var screenshots []models.Screenshot
	if err := s.db.Store().Find(&screenshots, badgerhold.Where("TestID").Eq(testID)); err != nil {
		return nil, fmt.Errorf("failed to list screenshots: %w", err)
	}

	steps := make([]models.ScreenshotStep, 0, len(screenshots))
	for _, shot := range screenshots {
		steps = append(steps, shot.Step)
	}
	return steps, nil
}
