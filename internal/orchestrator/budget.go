package orchestrator

import (
	"github.com/forgeflow/forgeflow/internal/config"
)

// BudgetDecision is the scheduling ladder's verdict for one item estimate.
type BudgetDecision int

const (
	// Proceed schedules the item directly as a single unit.
	Proceed BudgetDecision = iota
	// ProceedChunked schedules the item as 2-3 checkpointed sub-units.
	ProceedChunked
	// Refuse rejects direct scheduling; the item must be decomposed first.
	// This is a hard precondition, not a warning.
	Refuse
)

// String returns the decision name.
func (d BudgetDecision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case ProceedChunked:
		return "proceed_chunked"
	default:
		return "refuse"
	}
}

// BudgetLadder classifies item estimates against the resource zones and
// answers the approaching-limit question for session usage.
type BudgetLadder struct {
	cfg config.ResourceConfig
}

// NewBudgetLadder creates a BudgetLadder from resource configuration.
func NewBudgetLadder(cfg config.ResourceConfig) *BudgetLadder {
	return &BudgetLadder{cfg: cfg}
}

// Classify maps an item's estimated resource cost onto the ladder:
// below ProceedBelow schedules directly, up to ChunkBelow schedules
// chunked, above ChunkBelow is refused.
func (l *BudgetLadder) Classify(estimate int64) BudgetDecision {
	switch {
	case estimate < l.cfg.ProceedBelow:
		return Proceed
	case estimate <= l.cfg.ChunkBelow:
		return ProceedChunked
	default:
		return Refuse
	}
}

// ChunkCount returns how many checkpointed sub-units a chunked item is
// planned as, between 2 and 3.
func (l *BudgetLadder) ChunkCount(estimate int64) int {
	if l.cfg.ProceedBelow <= 0 {
		return 2
	}
	n := int((estimate + l.cfg.ProceedBelow - 1) / l.cfg.ProceedBelow)
	if n < 2 {
		n = 2
	}
	if n > 3 {
		n = 3
	}
	return n
}

// ApproachingLimit reports whether session usage has crossed the
// approaching ratio of the budget: true exactly when used/budget exceeds
// the configured ratio.
func (l *BudgetLadder) ApproachingLimit(used, budget int64) bool {
	if budget <= 0 {
		return false
	}
	return float64(used)/float64(budget) > l.cfg.ApproachingRatio
}
