// Package errors provides centralized error definitions and error handling
// utilities for the forgeflow codebase. It defines the orchestration error
// taxonomy, domain-specific error types with context builders, and
// classification helpers that decide whether an error is a recoverable
// condition or a hard stop.
//
// # Error Taxonomy
//
// Sentinel errors cover the conditions the orchestrator core must
// distinguish:
//   - ErrCorruptState: checkpoint document unparsable; never auto-remediated
//   - ErrNotFound: no checkpoint exists; treated as "new project"
//   - ErrReconciliationConflict: checkpoint and live tracker disagree
//   - ErrResourceCeiling: estimate or running cost crosses the hard ceiling
//   - ErrDivergence: bounded verification retries exhausted
//   - ErrInsufficientSample: optimizer precondition failure
//   - ErrCapabilityUnavailable: agent or tracker call failed
//   - ErrApprovalRequired: a gate needs an explicit human decision
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewCheckpointError("failed to load checkpoint", errors.ErrCorruptState)
//	err = err.WithPath("/path/to/checkpoint.json")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrCorruptState) { ... }
//	if errors.IsHardStop(err) { ... }
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

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityInfo is for expected conditions that callers handle locally.
	SeverityInfo Severity = iota
	// SeverityWarning is for conditions that are resolved automatically but logged.
	SeverityWarning
	// SeverityError is for errors that suspend the current run.
	SeverityError
	// SeverityCritical is for structural violations that halt forward progress.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Checkpoint-related sentinel errors
var (
	// ErrCorruptState indicates the checkpoint document failed to parse.
	// The document may be recoverable from version control; it must never
	// be deleted without explicit confirmation.
	ErrCorruptState = New("checkpoint state corrupted")
	// ErrNotFound indicates no checkpoint exists for the project.
	ErrNotFound = New("checkpoint not found")
	// ErrRunLocked indicates another process holds the project's run lock.
	ErrRunLocked = New("run is locked by another process")
	// ErrStaleVersion indicates the checkpoint schema version is newer than
	// this binary understands.
	ErrStaleVersion = New("checkpoint schema version not supported")
)

// Orchestration sentinel errors
var (
	// ErrReconciliationConflict indicates the checkpoint and the live work
	// item tracker disagree about item state. Always resolved in favor of
	// the tracker, with the resolution logged.
	ErrReconciliationConflict = New("checkpoint and tracker state diverged")
	// ErrResourceCeiling indicates an item's estimate or running cost crossed
	// the hard resource ceiling. Fatal to direct scheduling of that unit.
	ErrResourceCeiling = New("resource ceiling exceeded")
	// ErrDivergence indicates bounded verification retries are exhausted.
	// A hard stop requiring external approval; never auto-retried further.
	ErrDivergence = New("verification diverged after maximum attempts")
	// ErrDecompositionFailed indicates an item could not be split below the
	// complex threshold after a retry. Indicates a bad estimate, not an
	// optional step.
	ErrDecompositionFailed = New("item could not be decomposed below complex threshold")
	// ErrInsufficientSample indicates the optimizer was invoked with fewer
	// historical records than its minimum sample size.
	ErrInsufficientSample = New("insufficient sample for threshold analysis")
	// ErrCapabilityUnavailable indicates an external agent capability or
	// tracker call failed. The run suspends at the last checkpoint.
	ErrCapabilityUnavailable = New("external capability unavailable")
	// ErrApprovalRequired indicates a gate needs an explicit human decision
	// and no interactive approver is available.
	ErrApprovalRequired = New("explicit approval required")
)

// General sentinel errors
var (
	// ErrCanceled indicates an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates input validation failed.
	ErrInvalidInput = New("invalid input")
)

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity {
	return e.severity
}

// CheckpointError represents errors from checkpoint persistence.
//
// Example:
//
//	err := errors.NewCheckpointError("failed to load checkpoint", errors.ErrCorruptState)
//	err = err.WithProject("my-app").WithPath("/state/checkpoint.json")
type CheckpointError struct {
	baseError
	Project string
	Path    string
}

// NewCheckpointError creates a new CheckpointError.
func NewCheckpointError(message string, cause error) *CheckpointError {
	return &CheckpointError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithProject adds a project name to the error context.
func (e *CheckpointError) WithProject(project string) *CheckpointError {
	e.Project = project
	return e
}

// WithPath adds the checkpoint file path to the error context.
func (e *CheckpointError) WithPath(path string) *CheckpointError {
	e.Path = path
	return e
}

// WithSeverity sets the error severity.
func (e *CheckpointError) WithSeverity(s Severity) *CheckpointError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *CheckpointError) Error() string {
	var parts []string
	if e.Project != "" {
		parts = append(parts, fmt.Sprintf("project=%s", e.Project))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	prefix := "checkpoint error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("checkpoint error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *CheckpointError) Is(target error) bool {
	if _, ok := target.(*CheckpointError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PhaseError represents errors from phase execution.
//
// Example:
//
//	err := errors.NewPhaseError("verification failed", errors.ErrDivergence)
//	err = err.WithPhase("verification").WithItem("42")
type PhaseError struct {
	baseError
	Phase   string
	ItemID  string
	Attempt int
}

// NewPhaseError creates a new PhaseError.
func NewPhaseError(message string, cause error) *PhaseError {
	return &PhaseError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
		Attempt: -1,
	}
}

// WithPhase adds a phase name to the error context.
func (e *PhaseError) WithPhase(phase string) *PhaseError {
	e.Phase = phase
	return e
}

// WithItem adds a work item ID to the error context.
func (e *PhaseError) WithItem(itemID string) *PhaseError {
	e.ItemID = itemID
	return e
}

// WithAttempt adds a verification attempt number to the error context.
func (e *PhaseError) WithAttempt(attempt int) *PhaseError {
	e.Attempt = attempt
	return e
}

// WithSeverity sets the error severity.
func (e *PhaseError) WithSeverity(s Severity) *PhaseError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *PhaseError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	if e.ItemID != "" {
		parts = append(parts, fmt.Sprintf("item=%s", e.ItemID))
	}
	if e.Attempt >= 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}

	prefix := "phase error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("phase error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PhaseError) Is(target error) bool {
	if _, ok := target.(*PhaseError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TrackerError represents errors from the external work item tracker.
//
// Example:
//
//	err := errors.NewTrackerError("failed to close item", cause).WithItem("42")
type TrackerError struct {
	baseError
	ItemID   string
	Provider string
}

// NewTrackerError creates a new TrackerError.
func NewTrackerError(message string, cause error) *TrackerError {
	return &TrackerError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithItem adds a work item ID to the error context.
func (e *TrackerError) WithItem(itemID string) *TrackerError {
	e.ItemID = itemID
	return e
}

// WithProvider adds the tracker provider name to the error context.
func (e *TrackerError) WithProvider(provider string) *TrackerError {
	e.Provider = provider
	return e
}

// Error returns the formatted error message.
func (e *TrackerError) Error() string {
	var parts []string
	if e.Provider != "" {
		parts = append(parts, fmt.Sprintf("provider=%s", e.Provider))
	}
	if e.ItemID != "" {
		parts = append(parts, fmt.Sprintf("item=%s", e.ItemID))
	}

	prefix := "tracker error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("tracker error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *TrackerError) Is(target error) bool {
	if _, ok := target.(*TrackerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// IsHardStop returns true if the error represents a structural violation
// that must halt forward progress and be surfaced to the operator:
// corrupt state, a failed mandatory decomposition, verification divergence,
// or an unsupported schema version.
func IsHardStop(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrCorruptState) ||
		Is(err, ErrDivergence) ||
		Is(err, ErrDecompositionFailed) ||
		Is(err, ErrStaleVersion)
}

// IsRecoverable returns true if the error is an expected condition handled
// locally with documented policy rather than propagated as a failure:
// a missing checkpoint, an insufficient optimizer sample, or a suspended
// external capability that can be resumed from the last checkpoint.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrNotFound) ||
		Is(err, ErrInsufficientSample) ||
		Is(err, ErrCapabilityUnavailable)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't carry a severity.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityInfo
	}

	type severityCarrier interface {
		Severity() Severity
	}
	var carrier severityCarrier
	if As(err, &carrier) {
		return carrier.Severity()
	}

	if IsHardStop(err) {
		return SeverityCritical
	}
	if IsRecoverable(err) {
		return SeverityInfo
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to persist checkpoint")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
