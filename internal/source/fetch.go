package source

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	appLog "gebetskalender/internal/log"
)

// Fetcher retrieves the raw upstream page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// HTTPFetcher issues a single plain GET. There is no retry and no cache:
// a failed request aborts the run.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates a fetcher. A zero timeout leaves the request
// unbounded apart from ctx.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch returns the response body, or a *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if pageURL == "" {
		return nil, &FetchError{URL: pageURL, Err: errors.New("source URL is empty")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	appLog.Info("source fetch start", "host", hostOf(pageURL))
	started := time.Now()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	appLog.Info("source fetch success",
		"host", hostOf(pageURL),
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return body, nil
}

// hostOf keeps log lines short; the path of the page is not interesting.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
