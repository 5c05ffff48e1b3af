// Package browser captures what the inference engine needs from a live page:
// the numbered element list, a viewport screenshot and its chunking.
package browser

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-inference/internal/config"
)

var ErrPageNotInitialized = errors.New("page is not initialized")

// Snapshot is one capture of the current viewport.
type Snapshot struct {
	URL        string
	Title      string
	Elements   string
	Screenshot []byte
}

// Snapshotter is implemented by each browser backend.
type Snapshotter interface {
	Navigate(ctx context.Context, url string) error
	Snapshot(ctx context.Context) (*Snapshot, error)
	Close() error
}

// New starts the configured backend.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Snapshotter, error) {
	switch cfg.Backend {
	case config.BackendPlaywright:
		return NewManager(cfg, logger)
	case config.BackendCDP:
		return NewRemoteSnapshotter(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported browser backend %q", cfg.Backend)
	}
}
