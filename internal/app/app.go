package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/common"
	"github.com/ternarybob/linkprobe/internal/handlers"
	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/rules"
	"github.com/ternarybob/linkprobe/internal/services/events"
	"github.com/ternarybob/linkprobe/internal/services/identity"
	"github.com/ternarybob/linkprobe/internal/services/orchestrator"
	"github.com/ternarybob/linkprobe/internal/services/report"
	"github.com/ternarybob/linkprobe/internal/services/workerclient"
	"github.com/ternarybob/linkprobe/internal/storage"
)

// shutdownGrace bounds how long Close waits for in-flight dispatches.
const shutdownGrace = 10 * time.Second

// App holds the orchestrator components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	Rules          *rules.Tables

	// Services
	EventService    interfaces.EventService
	IdentityService interfaces.IdentityService
	WorkerClient    interfaces.WorkerClient // nil when no worker URL is configured
	Orchestrator    *orchestrator.Service
	Scheduler       *orchestrator.Scheduler

	// HTTP handlers
	Auth            *handlers.Authenticator
	LinkTestHandler *handlers.LinkTestHandler
	SharedHandler   *handlers.SharedHandler
	AdminHandler    *handlers.AdminHandler
	SystemHandler   *handlers.SystemHandler
	WSHandler       *handlers.WebSocketHandler
}

// New initializes the orchestrator application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	tables, err := loadRules(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.Rules = tables

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.start(); err != nil {
		app.Close()
		return nil, err
	}

	logger.Info().
		Bool("worker_configured", app.WorkerClient != nil).
		Str("sweep_schedule", cfg.Orchestrator.SweepSchedule).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) initServices() error {
	cfg := a.Config.Orchestrator

	a.EventService = events.NewService(a.Logger)

	a.IdentityService = identity.NewService(
		a.StorageManager.AccountStorage(),
		a.StorageManager.LedgerStorage(),
		cfg.WelcomeCredits,
		a.Logger,
	)

	callTimeout := common.ParseDuration(cfg.CallTimeout, orchestrator.DefaultCallTimeout)

	if cfg.WorkerURL != "" {
		a.WorkerClient = workerclient.NewClient(cfg.WorkerURL, cfg.WorkerToken,
			workerclient.WithTimeout(callTimeout),
			workerclient.WithRateLimit(cfg.DispatchRate, cfg.DispatchBurst),
			workerclient.WithLogger(a.Logger),
		)
		a.Logger.Debug().Str("worker_url", cfg.WorkerURL).Msg("Browser worker client initialized")
	} else {
		a.Logger.Warn().Msg("No browser worker configured - every test will fail and be refunded")
	}

	builder := report.NewBuilder(reportLimits(a.Config.Report, a.Rules))

	a.Orchestrator = orchestrator.NewService(
		a.StorageManager,
		a.WorkerClient,
		builder,
		a.EventService,
		orchestrator.Config{
			CallTimeout:    callTimeout,
			StaleThreshold: common.ParseDuration(cfg.StaleThreshold, orchestrator.DefaultStaleThreshold),
		},
		a.Logger,
	)

	a.Scheduler = orchestrator.NewScheduler(a.Orchestrator, a.Logger)
	return nil
}

func (a *App) initHandlers() {
	a.Auth = handlers.NewAuthenticator(a.IdentityService, a.Config.Orchestrator.AdminToken, a.Logger)
	a.LinkTestHandler = handlers.NewLinkTestHandler(a.Orchestrator, a.Logger)
	a.SharedHandler = handlers.NewSharedHandler(a.Orchestrator, a.Logger)
	a.AdminHandler = handlers.NewAdminHandler(a.Orchestrator, a.IdentityService, a.Logger)

	// A nil interface value must not be wrapped in a non-nil HealthChecker
	var health handlers.HealthChecker
	if a.WorkerClient != nil {
		health = a.WorkerClient
	}
	a.SystemHandler = handlers.NewSystemHandler(health, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.IdentityService, a.Logger, &a.Config.WebSocket)
}

// start recovers queued tests left by a previous process and starts the
// stale sweep schedule.
func (a *App) start() error {
	if a.Config.Orchestrator.RecoverOnStartup {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, err := a.Orchestrator.RecoverQueued(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to recover queued tests")
		} else if n > 0 {
			a.Logger.Info().Int("tests", n).Msg("Recovered queued tests from previous run")
		}
	}

	if err := a.Scheduler.Start(a.Config.Orchestrator.SweepSchedule); err != nil {
		return fmt.Errorf("failed to start stale sweep: %w", err)
	}
	return nil
}

// Close stops background work and releases storage. In-flight dispatches
// get a grace period; anything still running is left for the next sweep.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.Orchestrator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		if err := a.Orchestrator.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Orchestrator shutdown incomplete")
		} else {
			a.Logger.Info().Msg("Orchestrator shutdown complete")
		}
		cancel()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}

// loadRules returns the built-in detection tables merged with the
// configured YAML override, if any.
func loadRules(cfg *common.Config, logger arbor.ILogger) (*rules.Tables, error) {
	tables, err := rules.LoadFile(cfg.Rules.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules file: %w", err)
	}
	if cfg.Rules.File == "" {
		return tables, nil
	}
	logger.Info().
		Str("file", cfg.Rules.File).
		Int("networks", len(tables.Networks)).
		Int("vendors", len(tables.Vendors)).
		Msg("Detection rules loaded")
	return tables, nil
}

func reportLimits(cfg common.ReportConfig, tables *rules.Tables) report.Limits {
	limits := report.DefaultLimits()
	if cfg.MaxCookies > 0 {
		limits.MaxCookies = cfg.MaxCookies
	}
	if cfg.MaxCookieValue > 0 {
		limits.MaxCookieValue = cfg.MaxCookieValue
	}
	if cfg.MaxHops > 0 {
		limits.MaxHops = cfg.MaxHops
	}
	switch {
	case len(cfg.HeaderAllowList) > 0:
		limits.HeaderAllowList = cfg.HeaderAllowList
	case len(tables.HeaderAllowList) > 0:
		limits.HeaderAllowList = tables.HeaderAllowList
	}
	return limits
}
