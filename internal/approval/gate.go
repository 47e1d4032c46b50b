// Package approval implements the human decision gates the orchestration
// core must pass through before continuing past a hard stop: divergence
// exits, wall-clock budget breaches, corrupt-state deletion and threshold
// application. Gates decide; they never act.
package approval

import (
	"context"
	"fmt"

	"github.com/forgeflow/forgeflow/internal/errors"
)

// Kind identifies what is being approved.
type Kind string

const (
	// KindDivergenceExit asks how to leave the divergence state.
	KindDivergenceExit Kind = "divergence_exit"
	// KindTimeBudget asks how to proceed after a phase exceeded its
	// wall-clock budget.
	KindTimeBudget Kind = "time_budget"
	// KindStateReset asks for confirmation before deleting checkpoint state.
	KindStateReset Kind = "state_reset"
	// KindThresholdApply asks for confirmation before writing a threshold
	// recommendation to configuration.
	KindThresholdApply Kind = "threshold_apply"
)

// Option is one selectable answer to an approval request.
type Option struct {
	// ID is the stable identifier the caller switches on.
	ID string
	// Label is the human-readable description.
	Label string
}

// Request describes a pending decision.
type Request struct {
	Kind    Kind
	Title   string
	Detail  string
	Options []Option
}

// Decision is the selected option's ID.
type Decision string

// Gate obtains a decision for a request. Implementations may block on a
// human; cancellation via ctx aborts the wait.
type Gate interface {
	Request(ctx context.Context, req Request) (Decision, error)
}

// AutoDeny is the non-interactive gate. Every request fails with
// ErrApprovalRequired so unattended runs suspend at the gate instead of
// guessing an answer.
type AutoDeny struct{}

// Request always returns ErrApprovalRequired.
func (AutoDeny) Request(_ context.Context, req Request) (Decision, error) {
	return "", fmt.Errorf("%w: %s (%s)", errors.ErrApprovalRequired, req.Title, req.Kind)
}

// Scripted is a test gate returning pre-programmed decisions in order.
type Scripted struct {
	Decisions []Decision
	Requests  []Request
}

// Request pops the next scripted decision; once exhausted it denies.
func (s *Scripted) Request(_ context.Context, req Request) (Decision, error) {
	s.Requests = append(s.Requests, req)
	if len(s.Decisions) == 0 {
		return "", fmt.Errorf("%w: %s", errors.ErrApprovalRequired, req.Title)
	}
	d := s.Decisions[0]
	s.Decisions = s.Decisions[1:]
	return d, nil
}

var (
	_ Gate = AutoDeny{}
	_ Gate = (*Scripted)(nil)
)
