package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/resilience"
	"github.com/sells-group/lead-pipeline/internal/scrape"
	"github.com/sells-group/lead-pipeline/internal/stats"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// fakeStore is an in-memory Store with the same optimistic-version semantics
// as the Postgres implementation, plus error injection hooks.
type fakeStore struct {
	mu          sync.Mutex
	leads       map[string]*model.Lead
	extractions map[string]*model.ExtractionResult
	scorings    map[string]*model.ScoringResult
	runs        []model.TaskRun

	marketCounts  map[string][]float64
	marketRatings map[string][]float64

	statusErr         error
	extractionErr     error
	scoringErr        error
	staleStatusWrites int
}

func newFakeStore(leads ...model.Lead) *fakeStore {
	s := &fakeStore{
		leads:         make(map[string]*model.Lead),
		extractions:   make(map[string]*model.ExtractionResult),
		scorings:      make(map[string]*model.ScoringResult),
		marketCounts:  make(map[string][]float64),
		marketRatings: make(map[string][]float64),
	}
	for i := range leads {
		lead := leads[i]
		if lead.Version == 0 {
			lead.Version = 1
		}
		s.leads[lead.LeadID] = &lead
	}
	return s
}

func (s *fakeStore) GetLead(_ context.Context, leadID string) (*model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.leads[leadID]
	if !ok {
		return nil, resilience.NewFailure(resilience.FailureStorage,
			eris.Errorf("fake: no lead %s", leadID))
	}
	lead := *stored
	return &lead, nil
}

func (s *fakeStore) ListLeads(_ context.Context, filter store.LeadFilter) ([]model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Lead
	for _, lead := range s.leads {
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		if filter.Segment != "" && lead.Segment != filter.Segment {
			continue
		}
		out = append(out, *lead)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeadID < out[j].LeadID })
	return out, nil
}

func (s *fakeStore) ImportLeads(_ context.Context, leads []model.Lead) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range leads {
		lead := leads[i]
		if lead.Version == 0 {
			lead.Version = 1
		}
		s.leads[lead.LeadID] = &lead
	}
	return int64(len(leads)), nil
}

func (s *fakeStore) PendingScrapeBatch(ctx context.Context, hint []string) ([]model.Lead, error) {
	return s.pending(model.StatusQueuedForScrape, hint)
}

func (s *fakeStore) PendingScoreBatch(ctx context.Context, hint []string) ([]model.Lead, error) {
	return s.pending(model.StatusQueuedForScore, hint)
}

func (s *fakeStore) pending(status model.LeadStatus, hint []string) ([]model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(hint))
	for _, id := range hint {
		wanted[id] = true
	}

	var out []model.Lead
	for _, lead := range s.leads {
		if lead.Status != status {
			continue
		}
		if len(hint) > 0 && !wanted[lead.LeadID] {
			continue
		}
		out = append(out, *lead)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeadID < out[j].LeadID })
	return out, nil
}

func (s *fakeStore) SetLeadStatus(_ context.Context, lead *model.Lead, status model.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.statusErr != nil {
		return s.statusErr
	}
	if s.staleStatusWrites > 0 {
		s.staleStatusWrites--
		return store.ErrStaleVersion
	}

	stored, ok := s.leads[lead.LeadID]
	if !ok || stored.Version != lead.Version {
		return store.ErrStaleVersion
	}
	stored.Status = status
	stored.Version++
	lead.Status = status
	lead.Version++
	return nil
}

func (s *fakeStore) UpsertExtraction(_ context.Context, lead *model.Lead, ext *model.ExtractionResult, terminal model.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.extractionErr != nil {
		return s.extractionErr
	}

	stored, ok := s.leads[lead.LeadID]
	if !ok || stored.Version != lead.Version {
		return store.ErrStaleVersion
	}
	now := time.Now().UTC()
	stored.Status = terminal
	stored.ScrapedAt = &now
	stored.Version++
	s.extractions[lead.LeadID] = ext

	lead.Status = terminal
	lead.ScrapedAt = &now
	lead.Version++
	return nil
}

func (s *fakeStore) UpsertScoring(_ context.Context, lead *model.Lead, res *model.ScoringResult, terminal model.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scoringErr != nil {
		return s.scoringErr
	}

	stored, ok := s.leads[lead.LeadID]
	if !ok || stored.Version != lead.Version {
		return store.ErrStaleVersion
	}
	now := time.Now().UTC()
	stored.Status = terminal
	stored.ScoredAt = &now
	stored.Version++
	s.scorings[lead.LeadID] = res

	lead.Status = terminal
	lead.ScoredAt = &now
	lead.Version++
	return nil
}

func (s *fakeStore) GetExtraction(_ context.Context, leadID string) (*model.ExtractionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extractions[leadID], nil
}

func (s *fakeStore) MarketDistribution(_ context.Context, segment string) ([]float64, []float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marketCounts[segment], s.marketRatings[segment], nil
}

func (s *fakeStore) AppendTaskRun(_ context.Context, run model.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeStore) Migrate(context.Context) error { return nil }
func (s *fakeStore) Ping(context.Context) error    { return nil }
func (s *fakeStore) Close() error                  { return nil }

func (s *fakeStore) leadStatus(leadID string) model.LeadStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead, ok := s.leads[leadID]; ok {
		return lead.Status
	}
	return ""
}

func (s *fakeStore) extraction(leadID string) *model.ExtractionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extractions[leadID]
}

func (s *fakeStore) scoring(leadID string) *model.ScoringResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scorings[leadID]
}

func (s *fakeStore) taskRuns() []model.TaskRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TaskRun, len(s.runs))
	copy(out, s.runs)
	return out
}

// fakeFetcher routes fetches to canned responses keyed by normalized URL.
type fakeFetcher struct {
	mu     sync.Mutex
	routes map[string]func(ctx context.Context) (*scrape.Page, error)
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		routes: make(map[string]func(ctx context.Context) (*scrape.Page, error)),
		calls:  make(map[string]int),
	}
}

func (f *fakeFetcher) route(url string, fn func(ctx context.Context) (*scrape.Page, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[url] = fn
}

func (f *fakeFetcher) servePage(url, html string) {
	f.route(url, func(context.Context) (*scrape.Page, error) {
		return &scrape.Page{URL: url, HTML: html, StatusCode: 200}, nil
	})
}

func (f *fakeFetcher) serveError(url string, err error) {
	f.route(url, func(context.Context) (*scrape.Page, error) {
		return nil, err
	})
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*scrape.Page, error) {
	f.mu.Lock()
	fn, ok := f.routes[url]
	f.calls[url]++
	f.mu.Unlock()

	if !ok {
		return nil, resilience.NewFailure(resilience.FailureNetwork,
			eris.Errorf("fake: no route for %s", url))
	}
	return fn(ctx)
}

func (f *fakeFetcher) fetchCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// fakeRenderer returns canned rendered results keyed by URL.
type fakeRenderer struct {
	mu      sync.Mutex
	results map[string]*scrape.Result
	err     error
	calls   int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{results: make(map[string]*scrape.Result)}
}

func (r *fakeRenderer) serve(url, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[url] = &scrape.Result{
		URL:         url,
		Text:        text,
		RenderedVia: scrape.ViaHeadless,
	}
}

func (r *fakeRenderer) Render(_ context.Context, url string) (*scrape.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if res, ok := r.results[url]; ok {
		return res, nil
	}
	return nil, resilience.NewFailure(resilience.FailureRender,
		eris.Errorf("fake: no rendered page for %s", url))
}

func (r *fakeRenderer) renderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fakeScorer runs a configurable scoring function and records its inputs.
type fakeScorer struct {
	mu      sync.Mutex
	scoreFn func(lead model.Lead, ext *model.ExtractionResult, market stats.MarketStats) (*model.ScoringResult, error)
	primed  bool
	calls   int
	lastExt map[string]*model.ExtractionResult
	markets map[string]stats.MarketStats
}

func newFakeScorer(fn func(lead model.Lead, ext *model.ExtractionResult, market stats.MarketStats) (*model.ScoringResult, error)) *fakeScorer {
	return &fakeScorer{
		scoreFn: fn,
		lastExt: make(map[string]*model.ExtractionResult),
		markets: make(map[string]stats.MarketStats),
	}
}

func (f *fakeScorer) Prime(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.primed = true
}

func (f *fakeScorer) Score(_ context.Context, lead model.Lead, ext *model.ExtractionResult, market stats.MarketStats) (*model.ScoringResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastExt[lead.LeadID] = ext
	f.markets[lead.LeadID] = market
	fn := f.scoreFn
	f.mu.Unlock()

	return fn(lead, ext, market)
}

// fakeArtifacts records saved pages.
type savedPage struct {
	leadID, url, text, via string
}

type fakeArtifacts struct {
	mu    sync.Mutex
	pages []savedPage
}

func (f *fakeArtifacts) SavePage(_ context.Context, leadID, url, text, via string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, savedPage{leadID, url, text, via})
	return nil
}

func (f *fakeArtifacts) saved() []savedPage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]savedPage, len(f.pages))
	copy(out, f.pages)
	return out
}
