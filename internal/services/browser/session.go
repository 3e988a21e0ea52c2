package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/models"
)

// Session is one isolated browser used for a single run.
type Session interface {
	// Navigate loads target and returns the final URL and redirect chain.
	Navigate(ctx context.Context, target string) (string, []models.RawHop, error)
	Page() Page
	// Release frees the page, browser context and browser process.
	// Safe to call more than once and from any goroutine.
	Release()
}

// SessionFactory acquires a fresh Session.
type SessionFactory func(ctx context.Context) (Session, error)

// SessionConfig configures browser processes started by the worker.
type SessionConfig struct {
	Headless          bool
	NoSandbox         bool
	UserAgent         string
	ExecPath          string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
}

// chromeSession owns a dedicated Chrome process for one run.
type chromeSession struct {
	ctx           context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	config        SessionConfig
	page          *cdpPage
	once          sync.Once
	logger        arbor.ILogger
}

// NewChromeSessionFactory returns a factory that starts a new Chrome process
// per session.
func NewChromeSessionFactory(config SessionConfig, logger arbor.ILogger) SessionFactory {
	return func(ctx context.Context) (Session, error) {
		return acquireChromeSession(ctx, config, logger)
	}
}

func acquireChromeSession(ctx context.Context, config SessionConfig, logger arbor.ILogger) (*chromeSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight),
	)
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}

	// The allocator is rooted in Background so the process outlives request
	// cancellation until Release tears it down.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:           browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		config:        config,
		page:          newCDPPage(browserCtx),
		logger:        logger,
	}

	// Start the browser and its first tab so launch failures surface here.
	startCtx, cancel := context.WithCancel(browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(startCtx,
		network.Enable(),
		chromedp.EmulateViewport(int64(config.ViewportWidth), int64(config.ViewportHeight)),
	); err != nil {
		s.Release()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return s, nil
}

func (s *chromeSession) Page() Page {
	return s.page
}

func (s *chromeSession) Navigate(ctx context.Context, target string) (string, []models.RawHop, error) {
	recorder := NewRecorder()
	listenCtx, stopListening := context.WithCancel(s.ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, recorder.Handle)

	navCtx, cancel := context.WithTimeout(s.ctx, s.config.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(target))
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return "", nil, fmt.Errorf("%w: no response within %s", models.ErrNavigationFailed, s.config.NavigationTimeout)
		}
		return "", nil, fmt.Errorf("%w: %v", models.ErrNavigationFailed, err)
	}
	if resp == nil {
		return "", nil, fmt.Errorf("%w: no response received", models.ErrNavigationFailed)
	}

	return resp.URL, recorder.Chain(), nil
}

func (s *chromeSession) Release() {
	s.once.Do(func() {
		s.browserCancel()
		s.allocCancel()
		s.logger.Trace().Msg("Browser session released")
	})
}
