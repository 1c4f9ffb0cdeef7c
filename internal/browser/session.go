package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/DataisKing1/title-search-app-sub000/internal/common"
)

// Session is one automation session the pool manages. Concretely a
// chromedp browser context; abstracted so pool tests can stub chrome out.
type Session interface {
	// Context returns the browser context tasks run against.
	Context() context.Context
	// Close tears the session down. Context cancellation happens before
	// the underlying allocator is released.
	Close() error
}

// SessionFactory creates a fresh session. The pool calls it at startup,
// during recycling, and for temporary overflow instances.
type SessionFactory func(cfg common.BrowserConfig) (Session, error)

// chromedpSession wraps one exec allocator plus browser context pair.
type chromedpSession struct {
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	browserCtx    context.Context
}

func (s *chromedpSession) Context() context.Context {
	return s.browserCtx
}

func (s *chromedpSession) Close() error {
	// Browser context before allocator, mirroring creation order.
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

// NewChromedpSession launches a headless browser session and verifies it
// responds before handing it to the pool.
func NewChromedpSession(cfg common.BrowserConfig) (Session, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(cfg.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	startupTimeout := 30 * time.Second
	if d, err := time.ParseDuration(cfg.StartupTimeout); err == nil && d > 0 {
		startupTimeout = d
	}

	testCtx, testCancel := context.WithTimeout(browserCtx, startupTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser session failed startup test: %w", err)
	}

	var title string
	if err := chromedp.Run(testCtx, chromedp.Title(&title)); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser session failed responsiveness test: %w", err)
	}

	return &chromedpSession{
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		browserCtx:    browserCtx,
	}, nil
}
