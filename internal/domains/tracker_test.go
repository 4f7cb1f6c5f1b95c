package domains

import (
	"sync"
	"testing"
	"time"

	"github.com/sells-group/lead-pipeline/internal/resilience"
)

func testTracker(cfg Config) (*Tracker, *time.Time) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	t := NewTracker(cfg)
	t.nowFunc = func() time.Time { return now }
	return t, &now
}

func TestAcquire_HealthyDomain(t *testing.T) {
	tr, _ := testTracker(Config{HealthyAllowance: 2})

	rel1, _, ok := tr.Acquire("a.com")
	if !ok {
		t.Fatal("first acquire should succeed")
	}
	_, _, ok = tr.Acquire("a.com")
	if !ok {
		t.Fatal("second acquire within allowance should succeed")
	}
	_, retryAt, ok := tr.Acquire("a.com")
	if ok {
		t.Fatal("third acquire should exceed allowance")
	}
	if !retryAt.IsZero() {
		t.Error("slot contention should return zero retryAt")
	}

	rel1()
	if _, _, ok := tr.Acquire("a.com"); !ok {
		t.Fatal("acquire after release should succeed")
	}
}

func TestRelease_Idempotent(t *testing.T) {
	tr, _ := testTracker(Config{HealthyAllowance: 1})
	rel, _, ok := tr.Acquire("a.com")
	if !ok {
		t.Fatal("acquire failed")
	}
	rel()
	rel() // double release must not over-credit the allowance

	rel2, _, ok := tr.Acquire("a.com")
	if !ok {
		t.Fatal("acquire after release failed")
	}
	defer rel2()
	if _, _, ok := tr.Acquire("a.com"); ok {
		t.Fatal("allowance should still be 1")
	}
}

func TestRecordFailure_DegradesAtThreshold(t *testing.T) {
	tr, _ := testTracker(Config{FailureThreshold: 3, InitialBackoff: 10 * time.Second})

	tr.RecordFailure("a.com", resilience.FailureNetwork)
	tr.RecordFailure("a.com", resilience.FailureNetwork)
	if got := tr.StateOf("a.com"); got != Healthy {
		t.Fatalf("below threshold should stay healthy, got %s", got)
	}

	tr.RecordFailure("a.com", resilience.FailureNetwork)
	if got := tr.StateOf("a.com"); got != Suspended {
		t.Fatalf("threshold failure opens a backoff window, got %s", got)
	}
}

func TestAcquire_DeferredWhileSuspended(t *testing.T) {
	tr, now := testTracker(Config{FailureThreshold: 2, InitialBackoff: 30 * time.Second})

	tr.RecordFailure("a.com", resilience.FailureBlocked)
	tr.RecordFailure("a.com", resilience.FailureBlocked)

	// Attempt before the window elapses is deferred, not attempted.
	_, retryAt, ok := tr.Acquire("a.com")
	if ok {
		t.Fatal("acquire during backoff must be deferred")
	}
	if retryAt.IsZero() || !retryAt.After(*now) {
		t.Fatalf("retryAt should point past the window, got %v", retryAt)
	}

	// After the window the domain is degraded: allowance drops to 1.
	*now = now.Add(31 * time.Second)
	if got := tr.StateOf("a.com"); got != Degraded {
		t.Fatalf("expected degraded after window, got %s", got)
	}
	rel, _, ok := tr.Acquire("a.com")
	if !ok {
		t.Fatal("acquire after window should succeed")
	}
	defer rel()
	if _, _, ok := tr.Acquire("a.com"); ok {
		t.Fatal("degraded allowance should be 1")
	}
}

func TestRecordFailure_ExponentialWindow(t *testing.T) {
	tr, now := testTracker(Config{
		FailureThreshold: 1,
		InitialBackoff:   10 * time.Second,
		MaxBackoff:       35 * time.Second,
	})

	tr.RecordFailure("a.com", resilience.FailureNetwork)
	_, retry1, _ := tr.Acquire("a.com")

	*now = now.Add(time.Minute)
	tr.RecordFailure("a.com", resilience.FailureNetwork)
	_, retry2, _ := tr.Acquire("a.com")

	w1 := retry1.Sub(time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC))
	w2 := retry2.Sub(*now)
	if w2 <= w1 {
		t.Fatalf("window should grow: first %v, second %v", w1, w2)
	}

	// Window is capped at MaxBackoff.
	for range 10 {
		tr.RecordFailure("a.com", resilience.FailureNetwork)
	}
	_, retryCapped, _ := tr.Acquire("a.com")
	if got := retryCapped.Sub(*now); got > 35*time.Second {
		t.Fatalf("window should cap at 35s, got %v", got)
	}
}

func TestRecordFailure_ExtractionDoesNotCount(t *testing.T) {
	tr, _ := testTracker(Config{FailureThreshold: 1})
	tr.RecordFailure("a.com", resilience.FailureExtraction)
	if got := tr.StateOf("a.com"); got != Healthy {
		t.Fatalf("extraction failures must not degrade, got %s", got)
	}
}

func TestRecordSuccess_ResetsToHealthy(t *testing.T) {
	tr, _ := testTracker(Config{FailureThreshold: 2, InitialBackoff: time.Minute})
	tr.RecordFailure("a.com", resilience.FailureNetwork)
	tr.RecordFailure("a.com", resilience.FailureNetwork)
	if got := tr.StateOf("a.com"); got == Healthy {
		t.Fatal("setup: domain should not be healthy")
	}

	tr.RecordSuccess("a.com")
	if got := tr.StateOf("a.com"); got != Healthy {
		t.Fatalf("success should reset to healthy, got %s", got)
	}
	if _, _, ok := tr.Acquire("a.com"); !ok {
		t.Fatal("acquire after reset should succeed")
	}
}

func TestTracker_ConcurrentRecordLinearizable(t *testing.T) {
	tr := NewTracker(Config{FailureThreshold: 1000})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				tr.RecordFailure("a.com", resilience.FailureNetwork)
			}
		}()
	}
	wg.Wait()

	tr.mu.Lock()
	got := tr.domains["a.com"].consecutiveFailures
	tr.mu.Unlock()
	if got != 1000 {
		t.Fatalf("expected exactly 1000 recorded failures, got %d", got)
	}
}

func TestSnapshot(t *testing.T) {
	tr, _ := testTracker(Config{FailureThreshold: 1, InitialBackoff: time.Minute})
	rel, _, _ := tr.Acquire("ok.com")
	rel()
	tr.RecordFailure("bad.com", resilience.FailureNetwork)

	snap := tr.Snapshot()
	if snap["ok.com"] != Healthy {
		t.Errorf("ok.com should be healthy, got %s", snap["ok.com"])
	}
	if snap["bad.com"] != Suspended {
		t.Errorf("bad.com should be suspended, got %s", snap["bad.com"])
	}
}
