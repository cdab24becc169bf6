package scoring

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is. Every typed error below matches exactly one.
var (
	// ErrNotConfigured: no base URL could be resolved for an endpoint.
	ErrNotConfigured = errors.New("scoring: endpoint not configured")

	// ErrColdStart: the scorer never produced a usable score.
	ErrColdStart = errors.New("scoring: cold start, no score returned")

	// ErrTransient: a gateway timeout or empty response worth retrying.
	ErrTransient = errors.New("scoring: transient service error")

	// ErrHardService: a non-retryable non-2xx response.
	ErrHardService = errors.New("scoring: service error")

	// ErrInvalidCategory: sample category outside 0..3.
	ErrInvalidCategory = errors.New("scoring: invalid sample category")

	// ErrMalformedResponse: a 2xx response lacking a required field.
	ErrMalformedResponse = errors.New("scoring: malformed response")
)

// ConfigurationError reports that an endpoint has no base URL and no
// fallback applies. It is never retried.
type ConfigurationError struct {
	// Endpoint is the unresolved endpoint.
	Endpoint Endpoint
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("scoring: %s base URL not configured", e.Endpoint)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrNotConfigured }

// TransientServiceError is a single failed scoring attempt that the retry
// policy considers recoverable.
type TransientServiceError struct {
	Attempt    int
	StatusCode int // 0 for empty bodies and transport failures
	Reason     string
	Err        error // transport error, if any
}

func (e *TransientServiceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scoring: attempt %d: ", e.Attempt)
	switch {
	case e.Err != nil:
		fmt.Fprintf(&b, "%s: %v", e.Reason, e.Err)
	case e.StatusCode != 0:
		fmt.Fprintf(&b, "%s (status %d)", e.Reason, e.StatusCode)
	default:
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *TransientServiceError) Is(target error) bool { return target == ErrTransient }

func (e *TransientServiceError) Unwrap() error { return e.Err }

// ColdStartExhaustedError reports that every attempt of the retry schedule
// came back transient.
type ColdStartExhaustedError struct {
	Attempts int

	// Last is the final attempt's failure, usually a *TransientServiceError.
	Last error
}

func (e *ColdStartExhaustedError) Error() string {
	return fmt.Sprintf("scoring: cold start, no score returned after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ColdStartExhaustedError) Is(target error) bool { return target == ErrColdStart }

func (e *ColdStartExhaustedError) Unwrap() error { return e.Last }

// HardServiceError is a non-2xx response that is not retried.
type HardServiceError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string // first bytes of the response body
}

func (e *HardServiceError) Error() string {
	return fmt.Sprintf("scoring: POST %s returned %s", e.URL, e.Status)
}

func (e *HardServiceError) Is(target error) bool { return target == ErrHardService }
