package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/db"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const leadColumns = `lead_id, place_id, name, website_url, segment, review_count, rating, status, scraped_at, scored_at, version`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	lead_id      TEXT PRIMARY KEY,
	place_id     TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL DEFAULT '',
	website_url  TEXT NOT NULL DEFAULT '',
	segment      TEXT NOT NULL DEFAULT '',
	review_count INTEGER NOT NULL DEFAULT 0,
	rating       DOUBLE PRECISION NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'idle',
	scraped_at   TIMESTAMPTZ,
	scored_at    TIMESTAMPTZ,
	version      BIGINT NOT NULL DEFAULT 1,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extractions (
	lead_id      TEXT PRIMARY KEY REFERENCES leads(lead_id),
	data         JSONB NOT NULL,
	source_url   TEXT NOT NULL DEFAULT '',
	rendered_via TEXT NOT NULL DEFAULT '',
	scrape_error TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scorings (
	lead_id                TEXT PRIMARY KEY REFERENCES leads(lead_id),
	data                   JSONB NOT NULL,
	business_quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	sell_likelihood_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_excluded            BOOLEAN NOT NULL DEFAULT false,
	exclusion_reason       TEXT NOT NULL DEFAULT '',
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS task_runs (
	run_id       TEXT PRIMARY KEY,
	task         TEXT NOT NULL,
	status       TEXT NOT NULL,
	total        INTEGER NOT NULL DEFAULT 0,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_segment ON leads(segment);
CREATE INDEX IF NOT EXISTS idx_task_runs_task ON task_runs(task, started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return storageErr(eris.Wrap(err, "postgres: migrate"))
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return storageErr(eris.Wrap(s.pool.Ping(ctx), "postgres: ping"))
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE lead_id = $1`, leadID)
	lead, err := scanLead(row)
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "postgres: get lead %s", leadID))
	}
	return lead, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.Segment != "" {
		args = append(args, filter.Segment)
		query += ` AND segment = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY lead_id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr(eris.Wrap(err, "postgres: list leads"))
	}
	defer rows.Close()
	return collectLeads(rows)
}

// ImportLeads bulk-upserts leads keyed by place_id. Status and version are
// only set on first insert; re-imports refresh the descriptive fields without
// disturbing in-flight pipeline state. Leads imported without a status enter
// as idle and stay out of the pipeline until queued; the XLSX importer queues
// them for scraping explicitly.
func (s *PostgresStore) ImportLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "leads",
		Columns:      []string{"lead_id", "place_id", "name", "website_url", "segment", "review_count", "rating", "status"},
		ConflictKeys: []string{"place_id"},
		UpdateCols:   []string{"name", "website_url", "segment", "review_count", "rating"},
	}, importRows(leads))
	if err != nil {
		return 0, storageErr(eris.Wrap(err, "postgres: import leads"))
	}
	return n, nil
}

func importRows(leads []model.Lead) [][]any {
	rows := make([][]any, len(leads))
	for i, l := range leads {
		status := l.Status
		if status == "" {
			status = model.StatusIdle
		}
		rows[i] = []any{l.LeadID, l.PlaceID, l.Name, l.WebsiteURL, l.Segment, l.ReviewCount, l.Rating, string(status)}
	}
	return rows
}

func (s *PostgresStore) PendingScrapeBatch(ctx context.Context, hint []string) ([]model.Lead, error) {
	return s.pendingBatch(ctx, model.StatusQueuedForScrape, hint)
}

func (s *PostgresStore) PendingScoreBatch(ctx context.Context, hint []string) ([]model.Lead, error) {
	return s.pendingBatch(ctx, model.StatusQueuedForScore, hint)
}

func (s *PostgresStore) pendingBatch(ctx context.Context, status model.LeadStatus, hint []string) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE status = $1`
	args := []any{string(status)}
	if len(hint) > 0 {
		query += ` AND lead_id = ANY($2)`
		args = append(args, hint)
	}
	query += ` ORDER BY lead_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "postgres: pending batch %s", status))
	}
	defer rows.Close()
	return collectLeads(rows)
}

// SetLeadStatus advances a lead's status using its version token. On success
// the in-memory lead is updated to match the row.
func (s *PostgresStore) SetLeadStatus(ctx context.Context, lead *model.Lead, status model.LeadStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, updated_at = $2, version = version + 1 WHERE lead_id = $3 AND version = $4`,
		string(status), time.Now().UTC(), lead.LeadID, lead.Version,
	)
	if err != nil {
		return storageErr(eris.Wrapf(err, "postgres: set lead status %s", lead.LeadID))
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	lead.Status = status
	lead.Version++
	return nil
}

// UpsertExtraction writes a lead's extraction result and terminal status in
// one transaction. Idempotent: keyed by lead_id, a re-scrape overwrites the
// previous row. The version token guards against concurrent writers.
func (s *PostgresStore) UpsertExtraction(ctx context.Context, lead *model.Lead, ext *model.ExtractionResult, terminal model.LeadStatus) error {
	data, err := json.Marshal(ext)
	if err != nil {
		return storageErr(eris.Wrap(err, "postgres: marshal extraction"))
	}
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr(eris.Wrap(err, "postgres: begin extraction tx"))
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE leads SET status = $1, scraped_at = $2, updated_at = $2, version = version + 1 WHERE lead_id = $3 AND version = $4`,
		string(terminal), now, lead.LeadID, lead.Version,
	)
	if err != nil {
		return storageErr(eris.Wrapf(err, "postgres: update lead %s for extraction", lead.LeadID))
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO extractions (lead_id, data, source_url, rendered_via, scrape_error, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (lead_id) DO UPDATE SET
		   data = EXCLUDED.data, source_url = EXCLUDED.source_url,
		   rendered_via = EXCLUDED.rendered_via, scrape_error = EXCLUDED.scrape_error,
		   updated_at = EXCLUDED.updated_at`,
		lead.LeadID, data, ext.SourceURL, ext.RenderedVia, ext.ScrapeError, now,
	)
	if err != nil {
		return storageErr(eris.Wrapf(err, "postgres: upsert extraction %s", lead.LeadID))
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr(eris.Wrap(err, "postgres: commit extraction tx"))
	}

	lead.Status = terminal
	lead.ScrapedAt = &now
	lead.Version++
	return nil
}

// UpsertScoring writes a lead's scoring verdict and terminal status in one
// transaction, with the same idempotence and version semantics as
// UpsertExtraction.
func (s *PostgresStore) UpsertScoring(ctx context.Context, lead *model.Lead, res *model.ScoringResult, terminal model.LeadStatus) error {
	data, err := json.Marshal(res)
	if err != nil {
		return storageErr(eris.Wrap(err, "postgres: marshal scoring"))
	}
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr(eris.Wrap(err, "postgres: begin scoring tx"))
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE leads SET status = $1, scored_at = $2, updated_at = $2, version = version + 1 WHERE lead_id = $3 AND version = $4`,
		string(terminal), now, lead.LeadID, lead.Version,
	)
	if err != nil {
		return storageErr(eris.Wrapf(err, "postgres: update lead %s for scoring", lead.LeadID))
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO scorings (lead_id, data, business_quality_score, sell_likelihood_score, is_excluded, exclusion_reason, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (lead_id) DO UPDATE SET
		   data = EXCLUDED.data, business_quality_score = EXCLUDED.business_quality_score,
		   sell_likelihood_score = EXCLUDED.sell_likelihood_score, is_excluded = EXCLUDED.is_excluded,
		   exclusion_reason = EXCLUDED.exclusion_reason, updated_at = EXCLUDED.updated_at`,
		lead.LeadID, data, res.BusinessQualityScore, res.SellLikelihoodScore, res.IsExcluded, res.ExclusionReason, now,
	)
	if err != nil {
		return storageErr(eris.Wrapf(err, "postgres: upsert scoring %s", lead.LeadID))
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr(eris.Wrap(err, "postgres: commit scoring tx"))
	}

	lead.Status = terminal
	lead.ScoredAt = &now
	lead.Version++
	return nil
}

func (s *PostgresStore) GetExtraction(ctx context.Context, leadID string) (*model.ExtractionResult, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM extractions WHERE lead_id = $1`, leadID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(eris.Wrapf(err, "postgres: get extraction %s", leadID))
	}

	var ext model.ExtractionResult
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, storageErr(eris.Wrap(err, "postgres: unmarshal extraction"))
	}
	return &ext, nil
}

// MarketDistribution returns the review-count and rating samples for every
// lead in a segment. The scoring orchestrator feeds them to stats.Build.
func (s *PostgresStore) MarketDistribution(ctx context.Context, segment string) ([]float64, []float64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT review_count, rating FROM leads WHERE segment = $1`, segment)
	if err != nil {
		return nil, nil, storageErr(eris.Wrapf(err, "postgres: market distribution %s", segment))
	}
	defer rows.Close()

	var reviewCounts, ratings []float64
	for rows.Next() {
		var rc int
		var rating float64
		if err := rows.Scan(&rc, &rating); err != nil {
			return nil, nil, storageErr(eris.Wrap(err, "postgres: scan distribution row"))
		}
		reviewCounts = append(reviewCounts, float64(rc))
		if rating > 0 {
			ratings = append(ratings, rating)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storageErr(eris.Wrap(err, "postgres: iterate distribution"))
	}
	return reviewCounts, ratings, nil
}

func (s *PostgresStore) AppendTaskRun(ctx context.Context, run model.TaskRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_runs (run_id, task, status, total, succeeded, failed, error, started_at, completed_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.RunID, run.Task, string(run.Status), run.Total, run.Succeeded, run.Failed, run.Error, run.StartedAt, run.CompletedAt,
	)
	return storageErr(eris.Wrap(err, "postgres: append task run"))
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	err := row.Scan(&l.LeadID, &l.PlaceID, &l.Name, &l.WebsiteURL, &l.Segment,
		&l.ReviewCount, &l.Rating, &l.Status, &l.ScrapedAt, &l.ScoredAt, &l.Version)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLeads(rows pgx.Rows) ([]model.Lead, error) {
	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, storageErr(eris.Wrap(err, "postgres: scan lead"))
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(eris.Wrap(err, "postgres: iterate leads"))
	}
	return leads, nil
}

// storageErr tags store failures with the storage failure kind so the
// orchestrators treat them as batch-fatal. Nil passes through.
func storageErr(err error) error {
	return resilience.NewFailure(resilience.FailureStorage, err)
}
