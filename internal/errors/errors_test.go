package errors

import (
	"errors"
	"fmt"
	"testing"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// CheckpointError Tests
// -----------------------------------------------------------------------------

func TestNewCheckpointError(t *testing.T) {
	cause := ErrCorruptState
	err := NewCheckpointError("failed to load checkpoint", cause)

	if err.message != "failed to load checkpoint" {
		t.Errorf("message = %q, want %q", err.message, "failed to load checkpoint")
	}
	if err.cause != cause {
		t.Errorf("cause = %v, want %v", err.cause, cause)
	}
	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityError)
	}
}

func TestCheckpointError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CheckpointError
		want string
	}{
		{
			name: "basic error",
			err:  NewCheckpointError("test error", nil),
			want: "checkpoint error: test error",
		},
		{
			name: "with cause",
			err:  NewCheckpointError("test error", ErrCorruptState),
			want: "checkpoint error: test error: checkpoint state corrupted",
		},
		{
			name: "with project and path",
			err:  NewCheckpointError("test error", nil).WithProject("demo").WithPath("/state/checkpoint.json"),
			want: "checkpoint error [project=demo, path=/state/checkpoint.json]: test error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckpointError_Is(t *testing.T) {
	err := NewCheckpointError("test", ErrCorruptState).WithProject("demo")

	if !Is(err, &CheckpointError{}) {
		t.Error("Is(&CheckpointError{}) = false, want true")
	}
	if !Is(err, ErrCorruptState) {
		t.Error("Is(ErrCorruptState) = false, want true")
	}
	if Is(err, ErrNotFound) {
		t.Error("Is(ErrNotFound) = true, want false")
	}
}

// -----------------------------------------------------------------------------
// PhaseError Tests
// -----------------------------------------------------------------------------

func TestPhaseError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *PhaseError
		want string
	}{
		{
			name: "basic error",
			err:  NewPhaseError("test error", nil),
			want: "phase error: test error",
		},
		{
			name: "with phase and attempt",
			err:  NewPhaseError("gate failed", ErrDivergence).WithPhase("verification").WithAttempt(3),
			want: "phase error [phase=verification, attempt=3]: gate failed: verification diverged after maximum attempts",
		},
		{
			name: "with item",
			err:  NewPhaseError("unit failed", nil).WithPhase("implementation").WithItem("42"),
			want: "phase error [phase=implementation, item=42]: unit failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPhaseError_Is(t *testing.T) {
	err := NewPhaseError("suspended", ErrCapabilityUnavailable).WithPhase("qa")

	if !Is(err, &PhaseError{}) {
		t.Error("Is(&PhaseError{}) = false, want true")
	}
	if !Is(err, ErrCapabilityUnavailable) {
		t.Error("Is(ErrCapabilityUnavailable) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// TrackerError Tests
// -----------------------------------------------------------------------------

func TestTrackerError_Error(t *testing.T) {
	err := NewTrackerError("failed to close item", errors.New("gh: exit status 1")).
		WithProvider("github").
		WithItem("7")
	want := "tracker error [provider=github, item=7]: failed to close item: gh: exit status 1"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, &TrackerError{}) {
		t.Error("Is(&TrackerError{}) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestIsHardStop(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"corrupt state", ErrCorruptState, true},
		{"divergence", ErrDivergence, true},
		{"decomposition failed", ErrDecompositionFailed, true},
		{"stale version", ErrStaleVersion, true},
		{"wrapped corrupt state", NewCheckpointError("parse failed", ErrCorruptState), true},
		{"not found", ErrNotFound, false},
		{"capability unavailable", ErrCapabilityUnavailable, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHardStop(tt.err); got != tt.want {
				t.Errorf("IsHardStop() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", ErrNotFound, true},
		{"insufficient sample", ErrInsufficientSample, true},
		{"wrapped insufficient sample", Wrap(ErrInsufficientSample, "4 records, need 5"), true},
		{"capability unavailable", ErrCapabilityUnavailable, true},
		{"corrupt state", ErrCorruptState, false},
		{"divergence", ErrDivergence, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverable(tt.err); got != tt.want {
				t.Errorf("IsRecoverable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetSeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil", nil, SeverityInfo},
		{"carrier wins", NewCheckpointError("parse failed", ErrCorruptState).WithSeverity(SeverityCritical), SeverityCritical},
		{"hard stop without carrier", ErrDivergence, SeverityCritical},
		{"recoverable without carrier", ErrNotFound, SeverityInfo},
		{"plain error", errors.New("boom"), SeverityError},
		{"default carrier severity", NewTrackerError("call failed", nil), SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSeverity(tt.err); got != tt.want {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Wrap Tests
// -----------------------------------------------------------------------------

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) != nil")
	}
	err := Wrap(ErrResourceCeiling, "scheduling item 3")
	if want := "scheduling item 3: resource ceiling exceeded"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, ErrResourceCeiling) {
		t.Error("wrapped sentinel no longer matches")
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "n=%d", 4) != nil {
		t.Error("Wrapf(nil) != nil")
	}
	err := Wrapf(ErrInsufficientSample, "%d records, need %d", 4, 5)
	want := fmt.Sprintf("%d records, need %d: %v", 4, 5, ErrInsufficientSample)
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !Is(err, ErrInsufficientSample) {
		t.Error("wrapped sentinel no longer matches")
	}
}
