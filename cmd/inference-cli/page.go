package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-inference/internal/browser"
)

var errNoPage = errors.New("one of --url or --dom-file is required")

// pageFlags select where the element list comes from: a live page or files
// captured earlier.
type pageFlags struct {
	url            string
	domFile        string
	screenshotFile string
	noScreenshot   bool
}

func (p *pageFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&p.url, "url", "", "Open this URL in the configured browser and snapshot it")
	f.StringVar(&p.domFile, "dom-file", "", "Read the numbered element list from a file instead of a browser")
	f.StringVar(&p.screenshotFile, "screenshot", "", "Image file sent along with --dom-file")
	f.BoolVar(&p.noScreenshot, "no-screenshot", false, "Do not send a screenshot to the model")
	cmd.MarkFlagsMutuallyExclusive("url", "dom-file")
}

func (p *pageFlags) provided() bool {
	return p.url != "" || p.domFile != ""
}

type page struct {
	URL        string
	Elements   string
	Screenshot []byte
	Chunks     []string
}

// loadPage captures the page and splits its element list by browser.chunk_size.
func (a *app) loadPage(ctx context.Context, p pageFlags) (*page, error) {
	var out page
	switch {
	case p.domFile != "":
		dom, err := os.ReadFile(p.domFile)
		if err != nil {
			return nil, fmt.Errorf("read dom file: %w", err)
		}
		out.Elements = string(dom)
		if p.screenshotFile != "" {
			if out.Screenshot, err = os.ReadFile(p.screenshotFile); err != nil {
				return nil, fmt.Errorf("read screenshot: %w", err)
			}
		}

	case p.url != "":
		b, err := browser.New(ctx, a.cfg.Browser, a.logger)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := b.Close(); err != nil {
				a.logger.Warn("failed to close browser", zap.Error(err))
			}
		}()
		if err := b.Navigate(ctx, p.url); err != nil {
			return nil, err
		}
		snap, err := b.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		out.URL = snap.URL
		out.Elements = snap.Elements
		out.Screenshot = snap.Screenshot

	default:
		return nil, errNoPage
	}

	if p.noScreenshot {
		out.Screenshot = nil
	}
	out.Chunks = browser.ChunkElements(out.Elements, a.cfg.Browser.ChunkSize)
	a.logger.Debug("page loaded",
		zap.String("request_id", a.requestID),
		zap.String("url", out.URL),
		zap.Int("chunks", len(out.Chunks)),
		zap.Int("screenshot_bytes", len(out.Screenshot)),
	)
	return &out, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
