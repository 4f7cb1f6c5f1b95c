// Package domains tracks per-domain fetch health and drives backoff and
// concurrency decisions for misbehaving hosts.
package domains

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/resilience"
)

// State is a domain's health state.
type State int

const (
	// Healthy domains get the full per-domain concurrency allowance.
	Healthy State = iota
	// Degraded domains have hit the failure threshold; attempts are reduced
	// to the degraded allowance and each further failure grows the backoff.
	Degraded
	// Suspended domains have an active backoff window; new attempts are
	// deferred until it elapses.
	Suspended
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Config controls tracker behavior.
type Config struct {
	// FailureThreshold is the consecutive-failure count that degrades a
	// domain. Default: 3.
	FailureThreshold int

	// HealthyAllowance is the per-domain concurrent-fetch allowance while
	// healthy. Default: 2.
	HealthyAllowance int

	// DegradedAllowance replaces it once degraded. Default: 1.
	DegradedAllowance int

	// InitialBackoff is the first backoff window after degrading; each
	// further failure doubles it up to MaxBackoff. Defaults: 5s / 5m.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.HealthyAllowance <= 0 {
		c.HealthyAllowance = 2
	}
	if c.DegradedAllowance <= 0 {
		c.DegradedAllowance = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

// health is the per-domain record. Created lazily on first Acquire and held
// for the tracker's lifetime (one batch run).
type health struct {
	consecutiveFailures int
	backoffUntil        time.Time
	inFlight            int
}

// Tracker is the shared per-domain state machine. Every read-modify-write
// happens under one mutex so concurrent workers never under- or over-count
// a domain's failures or both slip past a backoff gate.
type Tracker struct {
	cfg     Config
	mu      sync.Mutex
	domains map[string]*health

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewTracker creates a Tracker with the given config.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:     cfg.withDefaults(),
		domains: make(map[string]*health),
		nowFunc: time.Now,
	}
}

// Acquire requests a fetch slot for the domain. On success it returns a
// release function that must be called on every exit path. When the domain
// is suspended or its allowance is exhausted it returns ok=false and the
// earliest time a retry makes sense (zero means "slot busy, requeue soon").
func (t *Tracker) Acquire(domain string) (release func(), retryAt time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.get(domain)
	now := t.nowFunc()

	if now.Before(h.backoffUntil) {
		return nil, h.backoffUntil, false
	}

	allowance := t.cfg.HealthyAllowance
	if h.consecutiveFailures >= t.cfg.FailureThreshold {
		allowance = t.cfg.DegradedAllowance
	}
	if h.inFlight >= allowance {
		return nil, time.Time{}, false
	}

	h.inFlight++
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			h.inFlight--
			t.mu.Unlock()
		})
	}, time.Time{}, true
}

// RecordFailure updates the domain after a failed attempt. Only failure
// kinds that count against the domain (network, blocked, render) move the
// state machine; extraction failures leave it untouched.
func (t *Tracker) RecordFailure(domain string, kind resilience.FailureKind) {
	if !kind.CountsAgainstDomain() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.get(domain)
	h.consecutiveFailures++

	if h.consecutiveFailures < t.cfg.FailureThreshold {
		return
	}

	// Degraded: each failure at or past the threshold doubles the window.
	window := t.cfg.InitialBackoff
	for i := t.cfg.FailureThreshold; i < h.consecutiveFailures; i++ {
		window *= 2
		if window >= t.cfg.MaxBackoff {
			window = t.cfg.MaxBackoff
			break
		}
	}
	h.backoffUntil = t.nowFunc().Add(window)

	zap.L().Warn("domain degraded",
		zap.String("domain", domain),
		zap.Int("consecutive_failures", h.consecutiveFailures),
		zap.Duration("backoff", window),
	)
}

// RecordSuccess resets the domain's counter and returns it to healthy.
func (t *Tracker) RecordSuccess(domain string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.get(domain)
	h.consecutiveFailures = 0
	h.backoffUntil = time.Time{}
}

// StateOf returns the domain's current state.
func (t *Tracker) StateOf(domain string) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.get(domain)
	if t.nowFunc().Before(h.backoffUntil) {
		return Suspended
	}
	if h.consecutiveFailures >= t.cfg.FailureThreshold {
		return Degraded
	}
	return Healthy
}

// Snapshot returns the state of every tracked domain for observability.
func (t *Tracker) Snapshot() map[string]State {
	t.mu.Lock()
	domainNames := make([]string, 0, len(t.domains))
	for d := range t.domains {
		domainNames = append(domainNames, d)
	}
	t.mu.Unlock()

	out := make(map[string]State, len(domainNames))
	for _, d := range domainNames {
		out[d] = t.StateOf(d)
	}
	return out
}

// get returns the domain's record, creating it lazily. Caller holds t.mu.
func (t *Tracker) get(domain string) *health {
	h, ok := t.domains[domain]
	if !ok {
		h = &health{}
		t.domains[domain] = h
	}
	return h
}
