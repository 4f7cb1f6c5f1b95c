package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-pipeline/internal/config"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/resilience"
	"github.com/sells-group/lead-pipeline/internal/stats"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// ScoreOrchestrator drives one scoring batch: it builds market context per
// segment, calls the classifier for each scraped lead, and persists validated
// verdicts with status transitions.
type ScoreOrchestrator struct {
	store  store.Store
	scorer Scorer
	cfg    config.ScoreConfig

	nowFunc func() time.Time
}

// NewScoreOrchestrator creates a ScoreOrchestrator.
func NewScoreOrchestrator(st store.Store, sc Scorer, cfg config.ScoreConfig) *ScoreOrchestrator {
	return &ScoreOrchestrator{
		store:   st,
		scorer:  sc,
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

// Run processes one scoring batch. hint optionally restricts the batch to
// specific lead IDs. Classifier failures exhaust retries and then mark the
// lead scoring_failed with an excluded verdict; a storage failure aborts the
// batch.
func (s *ScoreOrchestrator) Run(ctx context.Context, hint []string) (model.TaskRun, error) {
	run := model.TaskRun{
		RunID:     uuid.New().String(),
		Task:      "score",
		StartedAt: s.nowFunc().UTC(),
	}
	log := zap.L().With(zap.String("run_id", run.RunID), zap.String("task", run.Task))

	leads, err := s.store.PendingScoreBatch(ctx, hint)
	if err != nil {
		run.Status = model.TaskRunAborted
		run.Error = err.Error()
		return appendRun(ctx, s.store, run), eris.Wrap(err, "pipeline: load score batch")
	}
	run.Total = len(leads)
	if len(leads) == 0 {
		run.Status = model.TaskRunCompleted
		return appendRun(ctx, s.store, run), nil
	}
	log.Info("starting score batch", zap.Int("leads", len(leads)))

	markets, err := s.marketBySegment(ctx, leads)
	if err != nil {
		run.Status = model.TaskRunAborted
		run.Error = err.Error()
		return appendRun(ctx, s.store, run), err
	}

	// Warm the prompt cache before the workers fan out.
	s.scorer.Prime(ctx)

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
	)

	g, gCtx := errgroup.WithContext(procCtx)
	g.SetLimit(workers)

	for i := range leads {
		lead := &leads[i]
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				// Budget expiry fails the remaining leads; an abort leaves
				// them queued for the next run.
				if procCtx.Err() != nil && ctx.Err() == nil {
					if err := s.markScoringFailed(ctx, lead, "batch budget exhausted"); err != nil {
						return err
					}
					mu.Lock()
					failed++
					mu.Unlock()
				}
				return nil
			default:
			}

			outcome, err := s.scoreOne(ctx, gCtx, lead, markets[lead.Segment])

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
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

	var abortErr error
	if err := g.Wait(); err != nil && procCtx.Err() == nil {
		abortErr = err
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

	log.Info("score batch finished",
		zap.String("status", string(run.Status)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)

	run = appendRun(ctx, s.store, run)
	if abortErr != nil {
		return run, eris.Wrap(abortErr, "pipeline: score batch aborted")
	}
	return run, nil
}

// marketBySegment builds MarketStats for every segment present in the batch.
func (s *ScoreOrchestrator) marketBySegment(ctx context.Context, leads []model.Lead) (map[string]stats.MarketStats, error) {
	markets := make(map[string]stats.MarketStats)
	for _, lead := range leads {
		if _, ok := markets[lead.Segment]; ok {
			continue
		}
		counts, ratings, err := s.store.MarketDistribution(ctx, lead.Segment)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: market distribution for segment %q", lead.Segment)
		}
		markets[lead.Segment] = stats.Build(counts, ratings)
	}
	return markets, nil
}

// scoreOne classifies a single lead. ctx bounds persistence; workCtx bounds
// the classifier calls.
func (s *ScoreOrchestrator) scoreOne(ctx, workCtx context.Context, lead *model.Lead, market stats.MarketStats) (itemOutcome, error) {
	log := zap.L().With(zap.String("lead_id", lead.LeadID), zap.String("name", lead.Name))

	if err := writeWithReload(ctx, s.store, lead, func() error {
		return s.store.SetLeadStatus(ctx, lead, model.StatusScoring)
	}); err != nil {
		return itemAborted, eris.Wrapf(err, "pipeline: mark lead %s scoring", lead.LeadID)
	}

	ext, err := s.store.GetExtraction(ctx, lead.LeadID)
	if err != nil {
		return itemAborted, eris.Wrapf(err, "pipeline: load extraction for lead %s", lead.LeadID)
	}
	if ext == nil {
		ext = model.EmptyExtraction("no extraction on record")
	}

	retryCfg := resilience.DefaultRetryConfig()
	if s.cfg.MaxAttempts > 0 {
		retryCfg.MaxAttempts = s.cfg.MaxAttempts
	}
	retryCfg.OnRetry = resilience.RetryLogger("score", lead.LeadID)

	res, err := resilience.DoVal(workCtx, retryCfg, func(ctx context.Context) (*model.ScoringResult, error) {
		if s.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
		}
		return s.scorer.Score(ctx, *lead, ext, market)
	})
	if err != nil {
		if resilience.KindOf(err) == resilience.FailureStorage {
			return itemAborted, err
		}
		log.Warn("scoring attempts exhausted", zap.Error(err))
		if err := s.markScoringFailed(ctx, lead, "classifier unavailable: "+err.Error()); err != nil {
			return itemAborted, err
		}
		return itemFailed, nil
	}

	if err := writeWithReload(ctx, s.store, lead, func() error {
		return s.store.UpsertScoring(ctx, lead, res, model.StatusScored)
	}); err != nil {
		return itemAborted, eris.Wrapf(err, "pipeline: persist scoring for lead %s", lead.LeadID)
	}

	log.Info("lead scored",
		zap.Float64("business_quality", res.BusinessQualityScore),
		zap.Float64("sell_likelihood", res.SellLikelihoodScore),
		zap.Bool("excluded", res.IsExcluded),
	)
	return itemSucceeded, nil
}

// markScoringFailed writes an excluded verdict recording why the classifier
// could not score the lead and moves it to scoring_failed.
func (s *ScoreOrchestrator) markScoringFailed(ctx context.Context, lead *model.Lead, detail string) error {
	res := &model.ScoringResult{
		OwnershipType:   model.OwnerUnknown,
		IsExcluded:      true,
		ExclusionReason: "scoring_failed",
		Rationale:       detail,
		Evidence:        []model.Evidence{},
	}
	err := writeWithReload(ctx, s.store, lead, func() error {
		return s.store.UpsertScoring(ctx, lead, res, model.StatusScoringFailed)
	})
	return eris.Wrapf(err, "pipeline: mark lead %s scoring_failed", lead.LeadID)
}
