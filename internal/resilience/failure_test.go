package resilience

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

func TestKindOf_Tagged(t *testing.T) {
	cases := []struct {
		kind FailureKind
	}{
		{FailureNetwork},
		{FailureBlocked},
		{FailureRender},
		{FailureExtraction},
		{FailureClassifier},
		{FailureStorage},
	}
	for _, tc := range cases {
		err := NewFailure(tc.kind, errors.New("boom"))
		if got := KindOf(err); got != tc.kind {
			t.Errorf("KindOf(%s) = %s", tc.kind, got)
		}
	}
}

func TestKindOf_TaggedThroughWrap(t *testing.T) {
	err := eris.Wrap(NewFailure(FailureBlocked, errors.New("captcha")), "fetch: homepage")
	if got := KindOf(err); got != FailureBlocked {
		t.Errorf("expected blocked through wrap, got %s", got)
	}
}

func TestKindOf_UntaggedNetwork(t *testing.T) {
	if got := KindOf(syscall.ECONNREFUSED); got != FailureNetwork {
		t.Errorf("expected network for ECONNREFUSED, got %s", got)
	}
	if got := KindOf(context.DeadlineExceeded); got != FailureNetwork {
		t.Errorf("expected network for deadline, got %s", got)
	}
	if got := KindOf(errors.New("dial tcp: lookup x.invalid: no such host")); got != FailureNetwork {
		t.Errorf("expected network for DNS failure, got %s", got)
	}
}

func TestKindOf_UntaggedDefaultsToExtraction(t *testing.T) {
	if got := KindOf(errors.New("unbalanced tag soup")); got != FailureExtraction {
		t.Errorf("expected extraction default, got %s", got)
	}
}

func TestCountsAgainstDomain(t *testing.T) {
	counting := []FailureKind{FailureNetwork, FailureBlocked, FailureRender}
	for _, k := range counting {
		if !k.CountsAgainstDomain() {
			t.Errorf("%s should count against domain", k)
		}
	}
	if FailureExtraction.CountsAgainstDomain() {
		t.Error("extraction must not count against domain")
	}
}

func TestRetryable(t *testing.T) {
	if FailureStorage.Retryable() {
		t.Error("storage failures are batch-fatal, not retryable")
	}
	if !FailureClassifier.Retryable() {
		t.Error("classifier failures should be retryable")
	}
}

func TestSuspiciousStatus(t *testing.T) {
	for _, code := range []int{403, 406, 429, 503} {
		if !SuspiciousStatus(code) {
			t.Errorf("status %d should be suspicious", code)
		}
	}
	for _, code := range []int{200, 301, 404, 500} {
		if SuspiciousStatus(code) {
			t.Errorf("status %d should not be suspicious", code)
		}
	}
}
