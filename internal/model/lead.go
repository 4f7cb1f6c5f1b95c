// Package model defines the core domain types shared across the pipeline.
package model

import "time"

// LeadStatus tracks a lead's position in the scrape/score pipeline.
type LeadStatus string

const (
	StatusIdle            LeadStatus = "idle"
	StatusQueuedForScrape LeadStatus = "queued_for_scrape"
	StatusScraping        LeadStatus = "scraping"
	StatusScraped         LeadStatus = "scraped"
	StatusScrapeFailed    LeadStatus = "scrape_failed"
	StatusQueuedForScore  LeadStatus = "queued_for_scoring"
	StatusScoring         LeadStatus = "scoring"
	StatusScored          LeadStatus = "scored"
	StatusScoringFailed   LeadStatus = "scoring_failed"
)

// Lead is a prospective business record. Identity and URL are owned by the
// storage collaborator; the pipeline reads them and writes back derived
// fields plus status transitions.
type Lead struct {
	LeadID      string     `json:"lead_id"`
	PlaceID     string     `json:"place_id"`
	Name        string     `json:"name,omitempty"`
	WebsiteURL  string     `json:"website_url"`
	Segment     string     `json:"segment,omitempty"`
	ReviewCount int        `json:"review_count"`
	Rating      float64    `json:"rating"`
	Status      LeadStatus `json:"status"`
	ScrapedAt   *time.Time `json:"scraped_at,omitempty"`
	ScoredAt    *time.Time `json:"scored_at,omitempty"`

	// Version is an optimistic-concurrency token. Every write must carry the
	// version it read; the store rejects stale writes.
	Version int64 `json:"version"`
}

// BatchItem is the unit of work handed to either orchestrator.
type BatchItem struct {
	LeadID  string `json:"lead_id"`
	PlaceID string `json:"place_id"`
}

// TaskRunStatus is the terminal status of one orchestrator invocation.
type TaskRunStatus string

const (
	TaskRunCompleted TaskRunStatus = "completed"
	TaskRunFailed    TaskRunStatus = "failed"
	TaskRunAborted   TaskRunStatus = "aborted"
)

// TaskRun records one batch run for operator visibility.
type TaskRun struct {
	RunID       string        `json:"run_id"`
	Task        string        `json:"task"` // "scrape" or "score"
	Status      TaskRunStatus `json:"status"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
}
