package common

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransportError wraps a network or timeout failure during extraction.
// Retried by the dispatcher; never surfaces past it.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError records a single field that failed to normalize. The candidate
// is still processed with that field null; the failure is tallied on the
// ScrapeLog.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse field %q from %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EngineUnavailableError means the requested extraction engine cannot run
// (e.g. the headless browser runtime is missing). The run fails fast with
// no retry.
type EngineUnavailableError struct {
	Engine string
	Err    error
}

func (e *EngineUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine %q unavailable: %v", e.Engine, e.Err)
	}
	return fmt.Sprintf("engine %q unavailable", e.Engine)
}

func (e *EngineUnavailableError) Unwrap() error { return e.Err }

// SourceDisabledError rejects a dispatch requested on an inactive source.
// Not retried.
type SourceDisabledError struct {
	SourceID string
}

func (e *SourceDisabledError) Error() string {
	return fmt.Sprintf("source %q is disabled", e.SourceID)
}

// ErrRevisionConflict signals an optimistic-concurrency clash on a posting
// update. The writer re-reads and retries the merge.
var ErrRevisionConflict = errors.New("posting revision conflict")

// IsRetryable reports whether an extraction error should be retried with
// backoff. Transport failures and timeouts are; engine availability and
// disabled sources are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var unavailable *EngineUnavailableError
	if errors.As(err, &unavailable) {
		return false
	}
	var disabled *SourceDisabledError
	if errors.As(err, &disabled) {
		return false
	}

	var transport *TransportError
	if errors.As(err, &transport) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
