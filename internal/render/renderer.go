package render

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/resilience"
	"github.com/sells-group/lead-pipeline/internal/scrape"
)

// Renderer drives a headless browser through the pool and extracts the same
// text/title/links contract as the lightweight fetch path.
type Renderer struct {
	pool       *Pool
	navTimeout time.Duration
}

// NewRenderer creates a Renderer over the given pool.
func NewRenderer(pool *Pool, navTimeout time.Duration) *Renderer {
	if navTimeout <= 0 {
		navTimeout = 20 * time.Second
	}
	return &Renderer{pool: pool, navTimeout: navTimeout}
}

// Render navigates to the URL in a pooled render context and extracts the
// rendered DOM. Failures are tagged as render failures.
func (r *Renderer) Render(ctx context.Context, targetURL string) (*scrape.Result, error) {
	var html string

	err := r.pool.WithPage(ctx, func(taskCtx context.Context) error {
		navCtx, cancel := context.WithTimeout(taskCtx, r.navTimeout)
		defer cancel()

		return chromedp.Run(navCtx,
			chromedp.Navigate(targetURL),
			// Give client-side frameworks a beat to hydrate.
			chromedp.Sleep(500*time.Millisecond),
			chromedp.ActionFunc(func(cdpCtx context.Context) error {
				root, err := dom.GetDocument().Do(cdpCtx)
				if err != nil {
					return err
				}
				html, err = dom.GetOuterHTML().WithNodeID(root.NodeID).Do(cdpCtx)
				return err
			}),
		)
	})
	if err != nil {
		if resilience.KindOf(err) == resilience.FailureRender {
			return nil, err
		}
		return nil, resilience.NewFailure(resilience.FailureRender,
			eris.Wrapf(err, "render: navigate %s", targetURL))
	}

	result, err := scrape.BuildResult(targetURL, html, scrape.ViaHeadless)
	if err != nil {
		return nil, resilience.NewFailure(resilience.FailureExtraction, err)
	}

	zap.L().Debug("render: page rendered",
		zap.String("url", targetURL),
		zap.Int("text_len", len(result.Text)),
		zap.Int("links", len(result.Links)),
	)
	return result, nil
}
