// Package pipeline runs the scrape and scoring orchestrators. Each Run
// processes one batch of leads end to end and appends a task-run record for
// operator visibility. Lead failures are absorbed per item; storage failures
// abort the batch.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/scrape"
	"github.com/sells-group/lead-pipeline/internal/stats"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// Renderer renders a page in a headless browser. Satisfied by
// *render.Renderer.
type Renderer interface {
	Render(ctx context.Context, targetURL string) (*scrape.Result, error)
}

// Scorer produces a ScoringResult for one lead. Satisfied by
// *scorer.Classifier.
type Scorer interface {
	Prime(ctx context.Context)
	Score(ctx context.Context, lead model.Lead, ext *model.ExtractionResult, market stats.MarketStats) (*model.ScoringResult, error)
}

// ArtifactSink receives raw page text for audit. Satisfied by
// *store.ArtifactStore.
type ArtifactSink interface {
	SavePage(ctx context.Context, leadID, url, text, renderedVia string) error
}

// writeWithReload runs a version-checked store write, and on a stale-version
// rejection reloads the lead and retries the write once.
func writeWithReload(ctx context.Context, st store.Store, lead *model.Lead, write func() error) error {
	err := write()
	if !errors.Is(err, store.ErrStaleVersion) {
		return err
	}

	fresh, gerr := st.GetLead(ctx, lead.LeadID)
	if gerr != nil {
		return gerr
	}
	*lead = *fresh

	return write()
}

// appendRun records the run outcome. A failure here is logged and swallowed:
// the batch itself already finished.
func appendRun(ctx context.Context, st store.Store, run model.TaskRun) model.TaskRun {
	run.CompletedAt = time.Now().UTC()
	if err := st.AppendTaskRun(ctx, run); err != nil {
		zap.L().Error("failed to append task run",
			zap.String("run_id", run.RunID),
			zap.String("task", run.Task),
			zap.Error(err),
		)
	}
	return run
}
