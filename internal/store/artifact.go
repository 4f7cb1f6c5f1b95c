package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// PageArtifact is the raw text of one scraped page, kept out of the primary
// store for audit and prompt-debugging.
type PageArtifact struct {
	ID          string    `json:"id"`
	LeadID      string    `json:"lead_id"`
	URL         string    `json:"url"`
	Text        string    `json:"text"`
	RenderedVia string    `json:"rendered_via"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// ArtifactStore persists raw page text in a local SQLite database.
type ArtifactStore struct {
	db *sql.DB
}

// NewArtifactStore opens a SQLite database at the given path and configures
// WAL mode.
func NewArtifactStore(dsn string) (*ArtifactStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "artifact: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "artifact: exec %s", pragma)
		}
	}
	return &ArtifactStore{db: sdb}, nil
}

const artifactMigration = `
CREATE TABLE IF NOT EXISTS page_artifacts (
	id           TEXT PRIMARY KEY,
	lead_id      TEXT NOT NULL,
	url          TEXT NOT NULL,
	text         TEXT NOT NULL,
	rendered_via TEXT NOT NULL DEFAULT '',
	scraped_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(lead_id, url)
);

CREATE INDEX IF NOT EXISTS idx_page_artifacts_lead_id ON page_artifacts(lead_id);
`

func (s *ArtifactStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, artifactMigration)
	return eris.Wrap(err, "artifact: migrate")
}

func (s *ArtifactStore) Close() error {
	return s.db.Close()
}

// SavePage upserts one page's text keyed by (lead, url), so a re-scrape
// replaces the earlier capture.
func (s *ArtifactStore) SavePage(ctx context.Context, leadID, url, text, renderedVia string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_artifacts (id, lead_id, url, text, rendered_via, scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(lead_id, url) DO UPDATE SET
		   text = excluded.text, rendered_via = excluded.rendered_via, scraped_at = excluded.scraped_at`,
		uuid.New().String(), leadID, url, text, renderedVia, time.Now().UTC(),
	)
	return eris.Wrapf(err, "artifact: save page for lead %s", leadID)
}

// PagesForLead returns all captured pages for a lead, newest first.
func (s *ArtifactStore) PagesForLead(ctx context.Context, leadID string) ([]PageArtifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, url, text, rendered_via, scraped_at
		 FROM page_artifacts WHERE lead_id = ? ORDER BY scraped_at DESC`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: pages for lead %s", leadID)
	}
	defer rows.Close()

	var pages []PageArtifact
	for rows.Next() {
		var p PageArtifact
		if err := rows.Scan(&p.ID, &p.LeadID, &p.URL, &p.Text, &p.RenderedVia, &p.ScrapedAt); err != nil {
			return nil, eris.Wrap(err, "artifact: scan page")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "artifact: iterate pages")
}

// DeleteLead removes all captures for a lead.
func (s *ArtifactStore) DeleteLead(ctx context.Context, leadID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM page_artifacts WHERE lead_id = ?`, leadID)
	if err != nil {
		return 0, eris.Wrapf(err, "artifact: delete lead %s", leadID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "artifact: rows affected")
}
