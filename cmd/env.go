package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/domains"
	"github.com/sells-group/lead-pipeline/internal/pipeline"
	"github.com/sells-group/lead-pipeline/internal/render"
	"github.com/sells-group/lead-pipeline/internal/scorer"
	"github.com/sells-group/lead-pipeline/internal/scrape"
	"github.com/sells-group/lead-pipeline/internal/store"
	"github.com/sells-group/lead-pipeline/pkg/anthropic"
)

// appEnv holds the initialized store and shared resources the commands need.
// Callers should defer env.Close().
type appEnv struct {
	store     store.Store
	artifacts *store.ArtifactStore
	pool      *render.Pool
}

func (e *appEnv) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.artifacts != nil {
		_ = e.artifacts.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
}

// initEnv connects to the lead store and, when withRender is set, launches
// the headless browser pool.
func initEnv(ctx context.Context, withRender bool) (*appEnv, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("store database_url is required (LEADPIPE_STORE_DATABASE_URL)")
	}

	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{store: st}

	if cfg.Artifact.Enabled {
		art, err := store.NewArtifactStore(cfg.Artifact.Path)
		if err != nil {
			zap.L().Warn("artifact store disabled", zap.Error(err))
		} else if err := art.Migrate(ctx); err != nil {
			zap.L().Warn("artifact store disabled", zap.Error(err))
			_ = art.Close()
		} else {
			env.artifacts = art
		}
	}

	if withRender {
		env.pool = render.NewPool(render.PoolConfig{
			Size:        cfg.Render.PoolSize,
			WaitTimeout: cfg.Render.WaitTimeout,
		})
	}

	return env, nil
}

func (e *appEnv) scrapeOrchestrator() *pipeline.ScrapeOrchestrator {
	fetcher := scrape.NewHTTPFetcher(cfg.Scrape.FetchTimeout)
	tracker := domains.NewTracker(domains.Config{
		FailureThreshold:  cfg.Domains.FailureThreshold,
		HealthyAllowance:  cfg.Domains.HealthyAllowance,
		DegradedAllowance: cfg.Domains.DegradedAllowance,
		InitialBackoff:    cfg.Domains.InitialBackoff,
		MaxBackoff:        cfg.Domains.MaxBackoff,
	})

	var renderer pipeline.Renderer
	if e.pool != nil {
		renderer = render.NewRenderer(e.pool, cfg.Render.NavTimeout)
	}
	var artifacts pipeline.ArtifactSink
	if e.artifacts != nil {
		artifacts = e.artifacts
	}

	return pipeline.NewScrapeOrchestrator(e.store, fetcher, renderer, tracker, artifacts, cfg.Scrape)
}

func (e *appEnv) scoreOrchestrator() (*pipeline.ScoreOrchestrator, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (LEADPIPE_ANTHROPIC_KEY)")
	}

	client := anthropic.NewClient(cfg.Anthropic.Key)
	classifier := scorer.NewClassifier(client, cfg.Anthropic, cfg.Score)

	return pipeline.NewScoreOrchestrator(e.store, classifier, cfg.Score), nil
}
