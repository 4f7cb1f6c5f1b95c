package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-pipeline/internal/config"
	"github.com/sells-group/lead-pipeline/internal/domains"
	"github.com/sells-group/lead-pipeline/internal/extract"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/resilience"
	"github.com/sells-group/lead-pipeline/internal/scrape"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// itemOutcome is the terminal disposition of one lead within a batch.
type itemOutcome int

const (
	itemSucceeded itemOutcome = iota
	itemFailed
	itemDeferred
	itemAborted
)

// ScrapeOrchestrator drives one scrape batch: it pulls pending leads, fetches
// and extracts each one under per-domain health gating, and persists results
// with status transitions.
type ScrapeOrchestrator struct {
	store     store.Store
	fetcher   scrape.Fetcher
	renderer  Renderer
	tracker   *domains.Tracker
	artifacts ArtifactSink
	cfg       config.ScrapeConfig

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewScrapeOrchestrator creates a ScrapeOrchestrator. renderer and artifacts
// may be nil, disabling the headless fallback and raw-page capture.
func NewScrapeOrchestrator(st store.Store, fetcher scrape.Fetcher, renderer Renderer, tracker *domains.Tracker, artifacts ArtifactSink, cfg config.ScrapeConfig) *ScrapeOrchestrator {
	return &ScrapeOrchestrator{
		store:     st,
		fetcher:   fetcher,
		renderer:  renderer,
		tracker:   tracker,
		artifacts: artifacts,
		cfg:       cfg,
		nowFunc:   time.Now,
	}
}

// Run processes one scrape batch. hint optionally restricts the batch to
// specific lead IDs. Per-lead failures are recorded on the lead and do not
// stop the batch; a storage failure aborts it. The returned TaskRun mirrors
// the record appended to the store.
func (s *ScrapeOrchestrator) Run(ctx context.Context, hint []string) (model.TaskRun, error) {
	run := model.TaskRun{
		RunID:     uuid.New().String(),
		Task:      "scrape",
		StartedAt: s.nowFunc().UTC(),
	}
	log := zap.L().With(zap.String("run_id", run.RunID), zap.String("task", run.Task))

	leads, err := s.store.PendingScrapeBatch(ctx, hint)
	if err != nil {
		run.Status = model.TaskRunAborted
		run.Error = err.Error()
		return appendRun(ctx, s.store, run), eris.Wrap(err, "pipeline: load scrape batch")
	}
	run.Total = len(leads)
	if len(leads) == 0 {
		run.Status = model.TaskRunCompleted
		return appendRun(ctx, s.store, run), nil
	}
	log.Info("starting scrape batch", zap.Int("leads", len(leads)))

	budget := s.cfg.BatchBudget
	if budget <= 0 {
		budget = 30 * time.Minute
	}
	procCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 5
	}

	var (
		mu                sync.Mutex
		succeeded, failed int
		abortErr          error
	)

	queue := make([]*model.Lead, 0, len(leads))
	for i := range leads {
		queue = append(queue, &leads[i])
	}

	// Deferred leads (domain backoff or slot contention) are requeued and the
	// batch loops until the queue drains, the budget expires, or a storage
	// failure aborts.
	for len(queue) > 0 && abortErr == nil && procCtx.Err() == nil {
		g, gCtx := errgroup.WithContext(procCtx)
		g.SetLimit(workers)

		var deferred []*model.Lead
		var earliestRetry time.Time

		for _, lead := range queue {
			g.Go(func() error {
				select {
				case <-gCtx.Done():
					mu.Lock()
					deferred = append(deferred, lead)
					mu.Unlock()
					return nil
				default:
				}

				outcome, retryAt, err := s.scrapeOne(ctx, gCtx, lead)

				mu.Lock()
				defer mu.Unlock()
				switch outcome {
				case itemDeferred:
					deferred = append(deferred, lead)
					if !retryAt.IsZero() && (earliestRetry.IsZero() || retryAt.Before(earliestRetry)) {
						earliestRetry = retryAt
					}
				case itemSucceeded:
					succeeded++
				case itemFailed:
					failed++
				case itemAborted:
					failed++
					return err
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil && procCtx.Err() == nil {
			abortErr = err
		}

		queue = deferred
		if len(queue) > 0 && abortErr == nil {
			waitForRetry(procCtx, earliestRetry, s.nowFunc)
		}
	}

	// Budget expiry: leads still queued are terminally failed so the batch
	// leaves nothing stuck in scraping.
	if abortErr == nil {
		for _, lead := range queue {
			if err := s.markScrapeFailed(ctx, lead, "batch budget exhausted"); err != nil {
				abortErr = err
				break
			}
			failed++
		}
	}

	run.Succeeded = succeeded
	run.Failed = failed
	switch {
	case abortErr != nil:
		run.Status = model.TaskRunAborted
		run.Error = abortErr.Error()
	case succeeded == 0 && failed > 0:
		run.Status = model.TaskRunFailed
	default:
		run.Status = model.TaskRunCompleted
	}

	log.Info("scrape batch finished",
		zap.String("status", string(run.Status)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)

	run = appendRun(ctx, s.store, run)
	if abortErr != nil {
		return run, eris.Wrap(abortErr, "pipeline: scrape batch aborted")
	}
	return run, nil
}

// scrapeOne processes a single lead. ctx bounds persistence; workCtx bounds
// the fetch work and carries the batch budget, so a budget expiry mid-fetch
// still lets the terminal status land.
func (s *ScrapeOrchestrator) scrapeOne(ctx, workCtx context.Context, lead *model.Lead) (itemOutcome, time.Time, error) {
	log := zap.L().With(zap.String("lead_id", lead.LeadID), zap.String("url", lead.WebsiteURL))

	norm, err := scrape.NormalizeURL(lead.WebsiteURL)
	if err != nil {
		log.Warn("lead has unusable website url", zap.Error(err))
		return s.finishFailed(ctx, lead, "invalid website url: "+err.Error())
	}
	domain := scrape.Domain(norm)

	release, retryAt, ok := s.tracker.Acquire(domain)
	if !ok {
		return itemDeferred, retryAt, nil
	}
	defer release()

	if err := writeWithReload(ctx, s.store, lead, func() error {
		return s.store.SetLeadStatus(ctx, lead, model.StatusScraping)
	}); err != nil {
		return itemAborted, time.Time{}, eris.Wrapf(err, "pipeline: mark lead %s scraping", lead.LeadID)
	}

	itemCtx := workCtx
	if s.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(workCtx, s.cfg.ItemTimeout)
		defer cancel()
	}

	retryCfg := resilience.DefaultRetryConfig()
	if s.cfg.MaxAttempts > 0 {
		retryCfg.MaxAttempts = s.cfg.MaxAttempts
	}
	retryCfg.OnRetry = resilience.RetryLogger("scrape", domain)
	retryCfg.ShouldRetry = func(err error) bool {
		// A blocked fetch gets exactly one headless escalation; repeating the
		// fetch would just replay the same blocked response.
		var esc *escalationError
		if errors.As(err, &esc) {
			return false
		}
		if !resilience.KindOf(err).Retryable() {
			return false
		}
		// Once the domain's backoff window opens, stop hammering it.
		return s.tracker.StateOf(domain) != domains.Suspended
	}

	res, err := resilience.DoVal(itemCtx, retryCfg, func(ctx context.Context) (*scrape.Result, error) {
		res, err := s.fetchPage(ctx, norm)
		if err != nil {
			s.tracker.RecordFailure(domain, resilience.KindOf(err))
		}
		return res, err
	})
	if err != nil {
		kind := resilience.KindOf(err)
		if kind == resilience.FailureStorage {
			return itemAborted, time.Time{}, err
		}
		log.Warn("scrape attempts exhausted",
			zap.String("failure_kind", string(kind)),
			zap.Error(err),
		)
		return s.finishFailed(ctx, lead, err.Error())
	}

	s.tracker.RecordSuccess(domain)

	ext := extract.Apply(res.Text, res.URL, s.nowFunc())
	ext.RenderedVia = res.RenderedVia

	if err := writeWithReload(ctx, s.store, lead, func() error {
		return s.store.UpsertExtraction(ctx, lead, ext, model.StatusScraped)
	}); err != nil {
		return itemAborted, time.Time{}, eris.Wrapf(err, "pipeline: persist extraction for lead %s", lead.LeadID)
	}

	if s.artifacts != nil {
		if err := s.artifacts.SavePage(ctx, lead.LeadID, res.URL, res.Text, res.RenderedVia); err != nil {
			log.Warn("failed to save page artifact", zap.Error(err))
		}
	}

	log.Info("lead scraped",
		zap.String("rendered_via", res.RenderedVia),
		zap.Int("text_len", len(res.Text)),
	)
	return itemSucceeded, time.Time{}, nil
}

// escalationError marks a blocked fetch whose one-shot headless escalation
// also failed. It unwraps to the render failure for kind classification.
type escalationError struct {
	err error
}

func (e *escalationError) Error() string {
	return "headless escalation after block failed: " + e.err.Error()
}

func (e *escalationError) Unwrap() error { return e.err }

// fetchPage fetches the page statically, falling back to the headless
// renderer when the response looks blocked or the static text is too thin to
// extract from.
func (s *ScrapeOrchestrator) fetchPage(ctx context.Context, targetURL string) (*scrape.Result, error) {
	page, err := s.fetcher.Fetch(ctx, targetURL)
	if err != nil {
		if resilience.KindOf(err) == resilience.FailureBlocked && s.renderer != nil {
			res, rerr := s.renderer.Render(ctx, targetURL)
			if rerr != nil {
				return nil, &escalationError{err: rerr}
			}
			return res, nil
		}
		return nil, err
	}

	res, err := scrape.BuildResult(page.URL, page.HTML, scrape.ViaHTTP)
	if err != nil {
		return nil, err
	}

	if s.renderer != nil && scrape.NeedsRender(page.HTML, res.Text, s.cfg.MinTextForStatic) {
		rendered, rerr := s.renderer.Render(ctx, targetURL)
		if rerr != nil {
			// Keep the static result; some text beats none.
			zap.L().Warn("headless fallback failed",
				zap.String("url", targetURL),
				zap.Error(rerr),
			)
			return res, nil
		}
		return rendered, nil
	}

	return res, nil
}

func (s *ScrapeOrchestrator) finishFailed(ctx context.Context, lead *model.Lead, reason string) (itemOutcome, time.Time, error) {
	if err := s.markScrapeFailed(ctx, lead, reason); err != nil {
		return itemAborted, time.Time{}, err
	}
	return itemFailed, time.Time{}, nil
}

// markScrapeFailed writes the empty-default extraction with the failure
// reason and moves the lead to scrape_failed.
func (s *ScrapeOrchestrator) markScrapeFailed(ctx context.Context, lead *model.Lead, reason string) error {
	ext := model.EmptyExtraction(reason)
	err := writeWithReload(ctx, s.store, lead, func() error {
		return s.store.UpsertExtraction(ctx, lead, ext, model.StatusScrapeFailed)
	})
	return eris.Wrapf(err, "pipeline: mark lead %s scrape_failed", lead.LeadID)
}

// waitForRetry sleeps until the earliest deferred domain is worth retrying,
// with a small floor for plain slot contention.
func waitForRetry(ctx context.Context, retryAt time.Time, now func() time.Time) {
	delay := 250 * time.Millisecond
	if !retryAt.IsZero() {
		if d := retryAt.Sub(now()); d > delay {
			delay = d
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
