package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-inference/internal/config"
)

var ErrNoRemoteURL = errors.New("browser.remote_url is required for the cdp backend")

// RemoteSnapshotter attaches to an already running Chrome over the DevTools
// protocol instead of launching one.
type RemoteSnapshotter struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	cfg         config.BrowserConfig
	logger      *zap.Logger
}

func NewRemoteSnapshotter(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*RemoteSnapshotter, error) {
	if cfg.RemoteURL == "" {
		return nil, ErrNoRemoteURL
	}
	logger = logger.Named("browser.cdp")

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), cfg.RemoteURL)
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	// The first Run attaches to the target.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("attach to %s: %w", cfg.RemoteURL, err)
	}
	logger.Info("attached to remote browser", zap.String("remote_url", cfg.RemoteURL))

	return &RemoteSnapshotter{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// run executes actions on the tab, aborting when either ctx or the
// navigation timeout expires.
func (r *RemoteSnapshotter) run(ctx context.Context, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if r.cfg.NavigationTimeout > 0 {
		runCtx, cancel = context.WithTimeout(r.ctx, r.cfg.NavigationTimeout)
	} else {
		runCtx, cancel = context.WithCancel(r.ctx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (r *RemoteSnapshotter) Navigate(ctx context.Context, url string) error {
	if err := r.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (r *RemoteSnapshotter) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := r.run(ctx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.Evaluate("("+elementsScript+")()", &snap.Elements),
	)
	if err != nil {
		return nil, fmt.Errorf("js evaluation failed: %w", err)
	}

	err = r.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		buf, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(r.cfg.ScreenshotQuality)).
			Do(ctx)
		snap.Screenshot = buf
		return err
	}))
	if err != nil {
		r.logger.Warn("failed to take screenshot", zap.Error(err))
		snap.Screenshot = nil
	}
	return &snap, nil
}

// Close detaches from the browser; the remote Chrome keeps running.
func (r *RemoteSnapshotter) Close() error {
	r.cancel()
	r.allocCancel()
	return nil
}
