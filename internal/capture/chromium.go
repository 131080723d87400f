// Package capture renders the weekly schedule board to a PNG snapshot using
// headless Chromium. The snapshot is served back on /preview.png and can be
// dropped into chat channels or dashboards that cannot call the API.
package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// The board page is a landscape card: a title line, the week status, and a
// seven-column session table. The defaults give the table room without
// scaling artifacts on typical dashboard embeds.
const (
	DefaultWidth   = 1280
	DefaultHeight  = 800
	DefaultTimeout = 30 * time.Second
)

// boardSelector scopes both the readiness wait and the screenshot to the
// board element; browser chrome and page margins stay out of the snapshot.
const boardSelector = `#board[data-ready="true"]`

// Options defines parameters for a board snapshot.
type Options struct {
	// URL of the board page, e.g. "http://127.0.0.1:8080/".
	URL string

	// OutputPath is where the PNG will be written, e.g. "./var/preview.png".
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation.
	Timeout time.Duration
}

// normalized validates the options and fills in defaults.
func (o Options) normalized() (Options, error) {
	if o.URL == "" {
		return o, fmt.Errorf("capture: URL is required")
	}
	if o.OutputPath == "" {
		return o, fmt.Errorf("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o, nil
}

// BoardPNG launches headless Chromium, opens the board page, waits until the
// page has loaded its week data (the board element flips data-ready to
// "true", on success and on fetch failure alike), and writes a PNG of the
// board element.
func BoardPNG(parentCtx context.Context, opts Options) error {
	opts, err := opts.normalized()
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(boardSelector, chromedp.ByQuery),
		chromedp.Screenshot(boardSelector, &png, chromedp.NodeVisible, chromedp.ByQuery),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: board screenshot failed: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	return nil
}
