package browser

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-inference/internal/config"
)

// Manager drives a persistent Chromium context through playwright.
type Manager struct {
	pw      *playwright.Playwright
	context playwright.BrowserContext
	page    playwright.Page
	cfg     config.BrowserConfig
	logger  *zap.Logger
}

func NewManager(cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	logger = logger.Named("browser.playwright")

	if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
		return nil, fmt.Errorf("install pw failed: %w", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start pw failed: %w", err)
	}

	userDataDir, err := filepath.Abs(cfg.UserDataDir)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("resolve user data dir: %w", err)
	}

	bctx, err := pw.Chromium.LaunchPersistentContext(
		userDataDir,
		playwright.BrowserTypeLaunchPersistentContextOptions{
			Headless: playwright.Bool(cfg.Headless),
			Args: []string{
				"--window-position=0,0",
				"--disable-blink-features=AutomationControlled",
			},
		},
	)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = bctx.NewPage()
		if err != nil {
			_ = bctx.Close()
			_ = pw.Stop()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	timeout := float64(cfg.NavigationTimeout.Milliseconds())
	page.SetDefaultTimeout(timeout)
	page.SetDefaultNavigationTimeout(timeout)

	logger.Info("browser started", zap.String("user_data_dir", userDataDir), zap.Bool("headless", cfg.Headless))

	return &Manager{
		pw:      pw,
		context: bctx,
		page:    page,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

func (m *Manager) Navigate(ctx context.Context, url string) error {
	if m == nil || m.page == nil {
		return ErrPageNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := m.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// Snapshot numbers the visible elements and takes a JPEG of the viewport.
// A failed screenshot is logged and leaves Screenshot empty.
func (m *Manager) Snapshot(ctx context.Context) (*Snapshot, error) {
	if m == nil || m.page == nil {
		return nil, ErrPageNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := m.page.Evaluate(elementsScript)
	if err != nil {
		return nil, fmt.Errorf("js evaluation failed: %w", err)
	}
	elements, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("expected string from js, got %T", result)
	}

	title, _ := m.page.Title()

	shot, err := m.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(false),
		Type:     playwright.ScreenshotTypeJpeg,
		Quality:  playwright.Int(m.cfg.ScreenshotQuality),
	})
	if err != nil {
		m.logger.Warn("failed to take screenshot", zap.Error(err))
		shot = nil
	}

	return &Snapshot{
		URL:        m.page.URL(),
		Title:      title,
		Elements:   elements,
		Screenshot: shot,
	}, nil
}

func (m *Manager) Close() error {
	var err error
	if m.context != nil {
		err = m.context.Close()
	}
	if m.pw != nil {
		if stopErr := m.pw.Stop(); err == nil {
			err = stopErr
		}
	}
	return err
}
