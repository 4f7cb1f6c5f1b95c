package scrape

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Rendered-via markers recorded on every extraction.
const (
	ViaHTTP     = "http"
	ViaHeadless = "headless"
)

// Result is the fetch/extract contract: plain text, title, and a
// deduplicated absolute link set, tagged with how the page was rendered.
type Result struct {
	URL         string
	Text        string
	Title       string
	Links       []string
	RenderedVia string
}

// BuildResult derives a Result from raw markup. Both the lightweight fetch
// path and the headless render path funnel through here so the two produce
// identical text for identical DOM.
func BuildResult(pageURL, html, via string) (*Result, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: parse page url %s", pageURL)
	}

	return &Result{
		URL:         pageURL,
		Text:        ExtractText(html),
		Title:       ExtractTitle(html),
		Links:       ExtractLinks(html, base),
		RenderedVia: via,
	}, nil
}

// NormalizeURL adds an https scheme when missing and ensures a path.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("scrape: empty url")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrap(err, "scrape: parse url")
	}
	if u.Host == "" {
		return "", eris.Errorf("scrape: url has no host: %s", raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Domain extracts the lowercase host (without port) from a URL for
// per-domain health tracking.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
