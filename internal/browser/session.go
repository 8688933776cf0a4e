// Package browser implements the harvest page and tab contracts on top of a
// Chrome instance driven through the DevTools protocol.
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/spigell/job-harvester/internal/harvest"
)

var (
	_ harvest.Browser   = (*Session)(nil)
	_ harvest.TabOpener = (*Session)(nil)
)

// Config describes how Chrome is launched.
type Config struct {
	Headless  bool   `mapstructure:"headless"`
	ExecPath  string `mapstructure:"exec-path"`
	UserAgent string `mapstructure:"user-agent"`
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
}

// Session owns one browser process. Pages and tabs opened from it share
// cookies and storage.
type Session struct {
	ctx         context.Context
	cancelAlloc context.CancelFunc
	cancel      context.CancelFunc
	logger      *zap.Logger
}

// Launch starts Chrome and returns once the first tab is ready.
func Launch(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Width, cfg.Height))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)

	sugar := logger.Sugar()
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		// cdproto reports unknown events as errors; they are noise for us.
		chromedp.WithErrorf(sugar.Debugf),
	)

	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		cancelAlloc()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	logger.Info("browser started", zap.Bool("headless", cfg.Headless))

	return &Session{
		ctx:         browserCtx,
		cancelAlloc: cancelAlloc,
		cancel:      cancel,
		logger:      logger,
	}, nil
}

// Close shuts the browser down.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.cancelAlloc()
	return err
}

// newTarget opens a tab in the running browser.
func (s *Session) newTarget() (context.Context, context.CancelFunc, error) {
	tabCtx, cancel := chromedp.NewContext(s.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("opening tab: %w", err)
	}
	return tabCtx, cancel, nil
}

// bind derives a context that carries the tab's executor but ends with the
// caller's context. Cancelling it does not close the tab.
func bind(tabCtx, caller context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tabCtx)
	if deadline, ok := caller.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, deadline)
		inner := cancel
		cancel = func() {
			cancelDeadline()
			inner()
		}
	}

	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
