// Package scrape turns raw page markup into plain text, titles, and link
// sets, and decides when a page needs a headless render.
package scrape

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	blockRes = func() []*regexp.Regexp {
		tags := []string{"script", "style", "noscript", "svg", "input", "textarea"}
		res := make([]*regexp.Regexp, 0, len(tags))
		for _, tag := range tags {
			res = append(res, regexp.MustCompile(`(?is)<`+tag+`[^>]*>.*?</`+tag+`>`))
		}
		return res
	}()

	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	spaceRe   = regexp.MustCompile(`[ \t\r]+`)
	nlRe      = regexp.MustCompile(`\n{3,}`)
	titleRe   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// ExtractText converts raw markup to plain text: script/style/noscript/svg/
// input/textarea blocks and comments are removed, remaining tags stripped,
// the small fixed entity set decoded, and whitespace collapsed. The function
// is idempotent and its output never contains '<' or '>'.
func ExtractText(html string) string {
	for _, re := range blockRes {
		html = re.ReplaceAllString(html, "")
	}
	html = commentRe.ReplaceAllString(html, "")
	html = tagRe.ReplaceAllString(html, " ")

	// Decode to a fixpoint so a second pass has nothing left to decode. Every
	// replacement shrinks the string, so this terminates.
	for {
		decoded := entityReplacer.Replace(html)
		if decoded == html {
			break
		}
		html = decoded
	}

	// Decoded &lt;/&gt; would otherwise re-trigger tag stripping on a second
	// pass; neutralize them.
	html = strings.ReplaceAll(html, "<", " ")
	html = strings.ReplaceAll(html, ">", " ")

	html = spaceRe.ReplaceAllString(html, " ")
	html = nlRe.ReplaceAllString(html, "\n\n")

	lines := strings.Split(html, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ExtractTitle returns the first <title> tag's inner text, trimmed.
// Empty string if absent.
func ExtractTitle(html string) string {
	m := titleRe.FindStringSubmatch(html)
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var hrefRe = regexp.MustCompile(`(?i)href\s*=\s*["']([^"']+)["']`)

// ExtractLinks pulls all href values from the markup, resolves them against
// base into absolute URLs, drops fragment/javascript/mailto/tel entries, and
// deduplicates. Invalid URLs are silently skipped.
func ExtractLinks(html string, base *url.URL) []string {
	seen := make(map[string]bool)
	links := []string{}

	for _, m := range hrefRe.FindAllStringSubmatch(html, -1) {
		href := strings.TrimSpace(m[1])
		if href == "" ||
			strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") {
			continue
		}

		rel, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(rel)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		abs.Fragment = ""

		s := abs.String()
		if !seen[s] {
			seen[s] = true
			links = append(links, s)
		}
	}

	return links
}

var spaShellRe = regexp.MustCompile(`(?i)<(?:div|main|section)[^>]*id=["'](?:root|app|__next)["'][^>]*>\s*</(?:div|main|section)>`)

var noscriptJSRe = regexp.MustCompile(`(?is)<noscript[^>]*>.*?(?:enable\s+javascript|javascript\s+is\s+(?:required|disabled)).*?</noscript>`)

// NeedsRender decides whether a lightweight fetch was enough or the page
// requires a headless render. minText is the minimum plain-text length a
// static page must yield (typically 500).
func NeedsRender(rawHTML, text string, minText int) bool {
	if len(text) < minText {
		return true
	}
	if spaShellRe.MatchString(rawHTML) {
		return true
	}
	if strings.Contains(rawHTML, "Loading...") {
		return true
	}
	return noscriptJSRe.MatchString(rawHTML)
}
