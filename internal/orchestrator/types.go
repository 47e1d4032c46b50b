// Package orchestrator is the phase-sequenced state machine at the core of
// forgeflow. It drives a project from scaffolding through verification by
// delegating each phase's substance to an opaque agent capability,
// persisting a checkpoint after every unit of work, and enforcing the
// resource and retry policies that keep an autonomous run bounded.
package orchestrator

import (
	"strings"
)

// Phase identifies one stage of the orchestration sequence.
type Phase string

const (
	// PhaseInfra scaffolds project infrastructure.
	PhaseInfra Phase = "infra"
	// PhaseDefinition produces the product definition and work items.
	PhaseDefinition Phase = "definition"
	// PhaseDecomposition splits complex items below the schedulable bound.
	PhaseDecomposition Phase = "decomposition"
	// PhaseArchitecture produces the architecture artifact.
	PhaseArchitecture Phase = "architecture"
	// PhaseImplementation works open items one at a time.
	PhaseImplementation Phase = "implementation"
	// PhaseQA exercises the built system and files defects.
	PhaseQA Phase = "qa"
	// PhaseVerification runs the bounded verification retry loop.
	PhaseVerification Phase = "verification"
	// PhaseLearning records the project outcome and produces the report.
	PhaseLearning Phase = "learning"
	// PhaseDone is the successful terminal state.
	PhaseDone Phase = "done"
	// PhaseDivergence is the failure terminal state, reachable only from
	// verification. Exiting it requires an explicit approval decision.
	PhaseDivergence Phase = "divergence"
)

// phaseOrder is the forward sequence. Divergence is not in the sequence;
// it is entered by policy, never by advancing.
var phaseOrder = []Phase{
	PhaseInfra,
	PhaseDefinition,
	PhaseDecomposition,
	PhaseArchitecture,
	PhaseImplementation,
	PhaseQA,
	PhaseVerification,
	PhaseLearning,
	PhaseDone,
}

// String returns the phase name.
func (p Phase) String() string { return string(p) }

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	if p == PhaseDivergence {
		return true
	}
	for _, ph := range phaseOrder {
		if p == ph {
			return true
		}
	}
	return false
}

// Next returns the phase following p in the forward sequence. The second
// return is false for terminal phases.
func (p Phase) Next() (Phase, bool) {
	for i, ph := range phaseOrder {
		if p == ph && i+1 < len(phaseOrder) {
			return phaseOrder[i+1], true
		}
	}
	return p, false
}

// ParsePhase parses a stored phase name. Unknown names return false so a
// checkpoint written by a newer binary fails loudly instead of misrouting.
func ParsePhase(s string) (Phase, bool) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PhaseInfra, true
	}
	if !p.Valid() {
		return "", false
	}
	return p, true
}

// Priority orders work items within the implementation loop.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// ParsePriority parses a priority name, defaulting to medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "medium"
	}
}

// ItemKind distinguishes planned features from QA-filed defects.
type ItemKind string

const (
	KindFeature ItemKind = "feature"
	KindBug     ItemKind = "bug"
)

// WorkItem is the orchestrator's view of one schedulable unit of work.
type WorkItem struct {
	ID                string
	Title             string
	Kind              ItemKind
	Priority          Priority
	Score             int
	Category          string
	EstimatedResource int64
	DependsOn         []string
}

// ResumptionPoint tells the machine where to re-enter after a resume.
type ResumptionPoint struct {
	// Phase is where execution continues. Empty means a fresh run.
	Phase Phase
	// ItemID is the in-progress item at suspension time, if any.
	ItemID string
	// VerificationAttempt is the attempt counter at suspension time.
	VerificationAttempt int
}

// Artifact identifiers recorded on the checkpoint for idempotent
// re-creation checks.
const (
	ArtifactScaffold     = "scaffold"
	ArtifactPRD          = "prd"
	ArtifactArchitecture = "architecture"
	ArtifactQAReport     = "qa-report"
	ArtifactFinalReport  = "final-report"
)
