// Package resilience provides retry helpers and the failure taxonomy used by
// the scrape and scoring orchestrators.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// FailureKind classifies why a pipeline operation failed. The kind drives
// retry policy and per-domain health accounting.
type FailureKind string

const (
	// FailureNetwork covers DNS, connection, and timeout errors.
	FailureNetwork FailureKind = "network"
	// FailureBlocked covers anti-bot challenges and suspicious status codes.
	FailureBlocked FailureKind = "blocked"
	// FailureRender covers browser crashes and navigation timeouts.
	FailureRender FailureKind = "render"
	// FailureExtraction covers malformed markup. Non-fatal: the item still
	// yields an empty-default result and does not count against the domain.
	FailureExtraction FailureKind = "extraction"
	// FailureClassifier covers LLM timeouts and invalid JSON responses.
	FailureClassifier FailureKind = "classifier"
	// FailureStorage covers database and artifact-store errors. Batch-fatal.
	FailureStorage FailureKind = "storage"
)

// Failure tags an error with its FailureKind.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure wraps err with a kind. Returns nil if err is nil.
func NewFailure(kind FailureKind, err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Kind: kind, Err: err}
}

// KindOf returns the FailureKind tagged on err, or classifies untagged errors
// heuristically. Untagged network-shaped errors map to FailureNetwork;
// anything else defaults to FailureExtraction (the non-fatal bucket).
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}

	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNetwork
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return FailureNetwork
	}

	msg := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"connection refused",
	}
	for _, p := range networkPatterns {
		if strings.Contains(msg, p) {
			return FailureNetwork
		}
	}

	return FailureExtraction
}

// CountsAgainstDomain reports whether a failure of this kind should increment
// the domain's consecutive-failure counter. Extraction failures still yield a
// usable empty result and do not.
func (k FailureKind) CountsAgainstDomain() bool {
	switch k {
	case FailureNetwork, FailureBlocked, FailureRender:
		return true
	}
	return false
}

// Retryable reports whether an attempt that failed with this kind should feed
// the retry policy. Storage failures abort the batch instead.
func (k FailureKind) Retryable() bool {
	return k != FailureStorage
}

// SuspiciousStatus reports whether an HTTP status code suggests anti-bot
// blocking rather than an ordinary failure.
func SuspiciousStatus(code int) bool {
	switch code {
	case 403, 406, 429, 503:
		return true
	}
	return false
}
