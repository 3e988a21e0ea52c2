package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/common"
	"github.com/ternarybob/linkprobe/internal/handlers"
	"github.com/ternarybob/linkprobe/internal/rules"
	"github.com/ternarybob/linkprobe/internal/services/browser"
	"github.com/ternarybob/linkprobe/internal/services/classifier"
)

const (
	defaultExecutionTimeout  = 60 * time.Second
	defaultNavigationTimeout = 60 * time.Second
	defaultConsentSettle     = 3 * time.Second
)

// WorkerApp holds the browser worker components
type WorkerApp struct {
	Config        *common.Config
	Logger        arbor.ILogger
	Rules         *rules.Tables
	Executor      *browser.Executor
	WorkerHandler *handlers.WorkerHandler
}

// NewWorker initializes the browser worker. No browser is started until
// the first run arrives.
func NewWorker(cfg *common.Config, logger arbor.ILogger) (*WorkerApp, error) {
	tables, err := loadRules(cfg, logger)
	if err != nil {
		return nil, err
	}

	cls, err := classifier.New(tables.Networks)
	if err != nil {
		return nil, fmt.Errorf("failed to build network classifier: %w", err)
	}

	wc := cfg.Worker
	sessions := browser.NewChromeSessionFactory(browser.SessionConfig{
		Headless:          wc.Headless,
		NoSandbox:         wc.NoSandbox,
		UserAgent:         wc.UserAgent,
		ExecPath:          wc.ExecPath,
		ViewportWidth:     wc.ViewportWidth,
		ViewportHeight:    wc.ViewportHeight,
		NavigationTimeout: common.ParseDuration(wc.NavigationTimeout, defaultNavigationTimeout),
	}, logger)

	consent := browser.NewConsentEngine(tables, common.ParseDuration(wc.ConsentSettle, defaultConsentSettle), logger)

	executor := browser.NewExecutor(browser.ExecutorConfig{
		ExecutionTimeout: WorkerExecutionTimeout(cfg),
		MaxSessions:      wc.MaxSessions,
	}, sessions, cls, consent, logger)

	if wc.SharedSecret == "" {
		logger.Warn().Msg("No worker shared secret configured - /run accepts unauthenticated requests")
	}

	logger.Info().
		Bool("headless", wc.Headless).
		Int("max_sessions", wc.MaxSessions).
		Int("networks", len(tables.Networks)).
		Msg("Browser worker initialization complete")

	return &WorkerApp{
		Config:        cfg,
		Logger:        logger,
		Rules:         tables,
		Executor:      executor,
		WorkerHandler: handlers.NewWorkerHandler(executor, wc.SharedSecret, logger),
	}, nil
}

// WorkerExecutionTimeout is the per-run budget. The worker HTTP server's
// write timeout must exceed it.
func WorkerExecutionTimeout(cfg *common.Config) time.Duration {
	return common.ParseDuration(cfg.Worker.ExecutionTimeout, defaultExecutionTimeout)
}
