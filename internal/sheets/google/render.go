package google

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"finbot/internal/sheets"
)

// ChromeRenderer screenshots HTML documents with a headless Chrome.
type ChromeRenderer struct {
	Timeout time.Duration
	Width   int
	Height  int
}

var _ PageRenderer = (*ChromeRenderer)(nil)

func NewChromeRenderer(timeout time.Duration) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeRenderer{Timeout: timeout, Width: 1280, Height: 900}
}

// RenderHTML loads html into a blank page and returns a full-page PNG.
func (r *ChromeRenderer) RenderHTML(ctx context.Context, html []byte) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(r.Width, r.Height),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()
	runCtx, cancel := context.WithTimeout(browserCtx, r.Timeout)
	defer cancel()

	var buf []byte
	err := chromedp.Run(runCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// quality 100 makes chromedp capture PNG instead of JPEG
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, &sheets.FetchError{
			Op:      "render page",
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	return buf, nil
}
