package avicenna

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrInput marks malformed caller input (empty document, no recoverable
// chunk). Not retryable.
type ErrInput struct {
	Message string
}

func (e *ErrInput) Error() string {
	return "input: " + e.Message
}

// ErrDependency marks an unreachable or failing external service (embedding
// endpoint, vector index, LLM). Distinct from "no results": callers decide
// whether to proceed degraded or abort.
type ErrDependency struct {
	Service string
	Err     error
}

func (e *ErrDependency) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ErrDependency) Unwrap() error { return e.Err }

// ErrHTTP carries a non-2xx response from an upstream HTTP service.
// RetryAfter is the parsed Retry-After header, or zero when absent.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value, which is either
// delay-seconds or an HTTP-date. Returns 0 for empty or unparseable input.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// ErrTenantIsolation is returned when a search result carries a tenant other
// than the requested one. It should never occur given correct filtering and
// is treated as fatal: cross-tenant data is never returned.
var ErrTenantIsolation = errors.New("tenant isolation violation")

// IsDependencyErr reports whether err is (or wraps) an ErrDependency.
func IsDependencyErr(err error) bool {
	var de *ErrDependency
	return errors.As(err, &de)
}

// IsInputErr reports whether err is (or wraps) an ErrInput.
func IsInputErr(err error) bool {
	var ie *ErrInput
	return errors.As(err, &ie)
}
