package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/resilience"
)

// Page is the raw outcome of a lightweight fetch.
type Page struct {
	URL        string
	HTML       string
	StatusCode int
}

// Fetcher is the low-level page fetcher capability. The orchestrator only
// depends on this interface so tests can swap in a fake.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// HTTPFetcher fetches pages over plain HTTP with headers that mimic an
// ordinary browser fingerprint, which reduces anti-bot blocking.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// Fetch retrieves a URL and returns its body. Failures come back tagged with
// a resilience.FailureKind so the domain tracker can account for them.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, resilience.NewFailure(resilience.FailureExtraction,
			eris.Wrap(err, "fetch: create request"))
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NewFailure(resilience.FailureNetwork,
			eris.Wrap(err, "fetch: request"))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, resilience.NewFailure(resilience.FailureNetwork,
			eris.Wrap(err, "fetch: read body"))
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, resilience.NewFailure(resilience.FailureBlocked,
			eris.Errorf("fetch: blocked (%s)", blockType))
	}
	if resilience.SuspiciousStatus(resp.StatusCode) {
		return nil, resilience.NewFailure(resilience.FailureBlocked,
			eris.Errorf("fetch: suspicious status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, resilience.NewFailure(resilience.FailureNetwork,
			eris.Errorf("fetch: status %d", resp.StatusCode))
	}

	return &Page{
		URL:        targetURL,
		HTML:       string(body),
		StatusCode: resp.StatusCode,
	}, nil
}
