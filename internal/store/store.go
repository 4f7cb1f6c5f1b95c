// Package store persists leads, extraction and scoring results, and task-run
// records. Lead identity and queueing live in the database; the orchestrators
// only read batches and write back derived fields plus status transitions.
package store

import (
	"context"
	"errors"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// ErrStaleVersion is returned when a write carries a version token that no
// longer matches the stored row. The caller reloads the lead and retries once.
var ErrStaleVersion = errors.New("store: stale lead version")

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Status  model.LeadStatus `json:"status,omitempty"`
	Segment string           `json:"segment,omitempty"`
	Limit   int              `json:"limit,omitempty"`
	Offset  int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for the scrape/score pipeline.
type Store interface {
	// Leads
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	ImportLeads(ctx context.Context, leads []model.Lead) (int64, error)
	PendingScrapeBatch(ctx context.Context, hint []string) ([]model.Lead, error)
	PendingScoreBatch(ctx context.Context, hint []string) ([]model.Lead, error)
	SetLeadStatus(ctx context.Context, lead *model.Lead, status model.LeadStatus) error

	// Results
	UpsertExtraction(ctx context.Context, lead *model.Lead, ext *model.ExtractionResult, terminal model.LeadStatus) error
	UpsertScoring(ctx context.Context, lead *model.Lead, res *model.ScoringResult, terminal model.LeadStatus) error
	GetExtraction(ctx context.Context, leadID string) (*model.ExtractionResult, error)

	// Market context
	MarketDistribution(ctx context.Context, segment string) (reviewCounts, ratings []float64, err error)

	// Task runs
	AppendTaskRun(ctx context.Context, run model.TaskRun) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
