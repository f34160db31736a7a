package source

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/chromedp"

	appLog "gebetskalender/internal/log"
)

// ChromiumFetcher loads the page in headless Chromium via chromedp and
// returns the serialized DOM. Use it when the upstream page only emits the
// embedded payload after client-side rendering.
type ChromiumFetcher struct {
	// Timeout bounds navigation plus DOM readout. Zero means ctx only.
	Timeout time.Duration
	// ExecAllocatorOptions override the default headless flags.
	ExecAllocatorOptions []chromedp.ExecAllocatorOption
}

// Fetch navigates to pageURL, waits for <body> and returns the outer HTML
// of the document, or a *FetchError.
func (f *ChromiumFetcher) Fetch(parentCtx context.Context, pageURL string) ([]byte, error) {
	if pageURL == "" {
		return nil, &FetchError{URL: pageURL, Err: errors.New("source URL is empty")}
	}

	allocCtx := parentCtx
	if len(f.ExecAllocatorOptions) > 0 {
		var cancelAlloc context.CancelFunc
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(parentCtx, f.ExecAllocatorOptions...)
		defer cancelAlloc()
	}

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if f.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, f.Timeout)
		defer timeoutCancel()
	}

	appLog.Info("source chromium fetch start", "host", hostOf(pageURL))

	var html string
	tasks := chromedp.Tasks{
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	appLog.Info("source chromium fetch success", "host", hostOf(pageURL), "bytes", len(html))
	return []byte(html), nil
}
