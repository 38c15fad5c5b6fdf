// Package errors provides centralized error definitions and classification
// helpers for the taskloom codebase. It defines the sentinel errors shared
// across packages, the provider error types produced by the endpoint layer,
// and the helpers the failover chain uses to decide whether a failure is
// worth retrying.
//
// # Error Categories
//
// Graph execution warnings are sentinel errors that never abort a run:
//   - ErrWorkerMissing: a subtask references a worker absent from the plan
//   - ErrDependencyUnsatisfied: a prerequisite subtask did not complete
//   - ErrDependencyCycle: the ready frontier stalled with pending work
//
// Provider errors carry the HTTP-level outcome of one remote invocation:
//   - ProviderError: a single failed attempt against one endpoint
//   - TerminalError: the whole endpoint chain was exhausted
//
// Ledger errors signal state problems rather than remote failures:
//   - ErrRecordNotFound: no record exists for the given id
//   - ErrInvalidTransition: the requested status change is not legal
//
// # Usage
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrRecordNotFound) { ... }
//
//	var perr *errors.ProviderError
//	if errors.As(err, &perr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Graph execution sentinel errors. These are warnings: the executor logs
// them and skips the affected subtask instead of aborting the run.
var (
	// ErrWorkerMissing indicates a subtask references a worker that was
	// never created for this graph.
	ErrWorkerMissing = New("worker missing")
	// ErrDependencyUnsatisfied indicates a prerequisite subtask did not
	// reach completed status.
	ErrDependencyUnsatisfied = New("dependency not satisfied")
	// ErrDependencyCycle indicates no subtask became ready while pending
	// work remained. Execution halts and partial outputs are returned.
	ErrDependencyCycle = New("dependency cycle detected")
)

// Plan-related sentinel errors.
var (
	// ErrPlanInvalid indicates a plan failed structural validation.
	ErrPlanInvalid = New("plan is invalid")
	// ErrNoSubtasks indicates a plan declared no subtasks.
	ErrNoSubtasks = New("plan contains no subtasks")
)

// Ledger-related sentinel errors.
var (
	// ErrRecordNotFound indicates no ledger record exists for the given id.
	// Callers treat this as "nothing to resume" rather than a failure.
	ErrRecordNotFound = New("ledger record not found")
	// ErrInvalidTransition indicates a status change that the record's
	// current status does not permit, such as pausing a non-running record.
	ErrInvalidTransition = New("invalid status transition")
)

// -----------------------------------------------------------------------------
// Provider Errors
// -----------------------------------------------------------------------------

// ProviderError represents one failed invocation attempt against a single
// capability endpoint. Status is the HTTP status code when the remote
// service answered, or zero for transport-level failures (connection reset,
// timeout, DNS) which are treated as retryable.
type ProviderError struct {
	// Provider names the endpoint that produced the failure, e.g.
	// "openai/gpt-4o" or "anthropic/claude-sonnet".
	Provider string

	// Status is the HTTP status code, or 0 when no response was received.
	Status int

	// Message is the response body or transport error text.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error returns the error message.
func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether a retry against the same endpoint may succeed.
// Server errors (5xx), rate limits (429), and statusless transport failures
// are retryable; any other 4xx is a caller error that retrying cannot fix.
func (e *ProviderError) Retryable() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status == 429:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}

// RateLimited reports whether the failure was caused by rate limiting.
// Rate-limited attempts back off with a longer floor before retrying.
func (e *ProviderError) RateLimited() bool {
	if e.Status == 429 {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "rate limit")
}

// NewProviderError creates a ProviderError for an HTTP-level failure.
func NewProviderError(provider string, status int, message string) *ProviderError {
	return &ProviderError{Provider: provider, Status: status, Message: message}
}

// WrapProviderError creates a ProviderError for a transport-level failure
// that produced no HTTP status.
func WrapProviderError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Err: err}
}

// TerminalError indicates the entire endpoint chain was exhausted for one
// logical invocation. It propagates out of the failover chain and aborts
// the in-progress graph run.
type TerminalError struct {
	// Attempts is the total number of attempts made across the chain.
	Attempts int

	// Last is the final failure observed before giving up.
	Last error
}

// Error returns the error message.
func (e *TerminalError) Error() string {
	return fmt.Sprintf("all endpoints exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last observed failure.
func (e *TerminalError) Unwrap() error { return e.Last }

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether err may succeed if the same endpoint is tried
// again. Errors that are not ProviderErrors default to retryable, matching
// the treatment of statusless transport failures.
func IsRetryable(err error) bool {
	var perr *ProviderError
	if As(err, &perr) {
		return perr.Retryable()
	}
	return true
}

// IsRateLimited reports whether err was caused by rate limiting.
func IsRateLimited(err error) bool {
	var perr *ProviderError
	if As(err, &perr) {
		return perr.RateLimited()
	}
	return false
}

// IsTerminal reports whether err signals an exhausted endpoint chain.
func IsTerminal(err error) bool {
	var terr *TerminalError
	return As(err, &terr)
}
