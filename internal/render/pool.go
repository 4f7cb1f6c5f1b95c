// Package render manages a bounded pool of headless-browser render contexts
// and produces extractions for pages that need JavaScript.
package render

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/lead-pipeline/internal/resilience"
)

// PoolConfig controls the render pool.
type PoolConfig struct {
	// Size is the number of concurrent render contexts. Default: 3.
	Size int

	// WaitTimeout bounds how long a checkout may wait for a free context.
	// Default: 30s.
	WaitTimeout time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Size <= 0 {
		c.Size = 3
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 30 * time.Second
	}
	return c
}

// Pool owns one headless browser process and hands out up to Size render
// contexts (tabs) at a time. Checkout blocks the calling worker until a slot
// frees or WaitTimeout elapses; other workers are unaffected. On a browser
// crash the pool relaunches the process and retries the checkout once.
type Pool struct {
	cfg PoolConfig
	sem *semaphore.Weighted

	mu          chan struct{} // 1-slot token guarding allocator swaps
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewPool launches the browser process and returns a ready pool.
func NewPool(cfg PoolConfig) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.Size)),
		mu:  make(chan struct{}, 1),
	}
	p.mu <- struct{}{}
	p.launch()
	return p
}

// launch (re)creates the exec allocator. Caller must hold the mu token.
func (p *Pool) launch() {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
}

// WithPage checks out a render context, runs fn with it, and returns the
// context on every exit path. A crashed browser is discarded, relaunched,
// and fn is retried once.
func (p *Pool) WithPage(ctx context.Context, fn func(taskCtx context.Context) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.WaitTimeout)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		return resilience.NewFailure(resilience.FailureRender,
			eris.Wrap(err, "render: pool checkout timed out"))
	}
	defer p.sem.Release(1)

	err := p.runPage(ctx, fn)
	if err == nil || !isCrash(err) {
		return err
	}

	zap.L().Warn("render: browser crashed, relaunching", zap.Error(err))
	p.relaunch()

	return p.runPage(ctx, fn)
}

// runPage opens a fresh tab under the current allocator and runs fn.
func (p *Pool) runPage(ctx context.Context, fn func(taskCtx context.Context) error) error {
	<-p.mu
	alloc := p.allocCtx
	p.mu <- struct{}{}

	tabCtx, cancelTab := chromedp.NewContext(alloc)
	defer cancelTab()

	// Honor the caller's deadline inside the tab.
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		defer cancelDeadline()
	}

	return fn(tabCtx)
}

// relaunch tears down the browser process and starts a new one.
func (p *Pool) relaunch() {
	<-p.mu
	defer func() { p.mu <- struct{}{} }()

	if p.allocCancel != nil {
		p.allocCancel()
	}
	p.launch()
}

// Close shuts down the browser process.
func (p *Pool) Close() {
	<-p.mu
	defer func() { p.mu <- struct{}{} }()
	if p.allocCancel != nil {
		p.allocCancel()
	}
}

// isCrash reports whether an error looks like the browser process died
// rather than a page-level navigation failure.
func isCrash(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	crashPatterns := []string{
		"chrome failed to start",
		"websocket url timeout",
		"websocket: close",
		"connection closed",
		"target crashed",
		"browser process",
	}
	for _, pattern := range crashPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
