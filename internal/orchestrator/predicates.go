package orchestrator

import (
	"slices"

	"github.com/forgeflow/forgeflow/internal/checkpoint"
	"github.com/forgeflow/forgeflow/internal/complexity"
	"github.com/forgeflow/forgeflow/internal/tracker"
)

// EvaluatePredicate evaluates a phase's completion predicate against live
// state. Predicates are re-evaluated on every pass and on resume rather
// than trusted from the checkpoint, because the external tracker may have
// changed since the last write.
func EvaluatePredicate(cp *checkpoint.Checkpoint, phase Phase, trk tracker.WorkItemTracker, labels []string) (bool, error) {
	switch phase {
	case PhaseInfra:
		return cp.HasArtifact(ArtifactScaffold), nil

	case PhaseDefinition:
		return cp.HasArtifact(ArtifactPRD) && cp.WorkProgress.TotalItems >= 1, nil

	case PhaseDecomposition:
		// Complete when no open item remains classified Complex. A Complex
		// item must never reach direct scheduling.
		for _, id := range cp.WorkProgress.OpenItems {
			if meta, ok := cp.Item(id); ok && meta.Category == string(complexity.Complex) {
				return false, nil
			}
		}
		return true, nil

	case PhaseArchitecture:
		return cp.HasArtifact(ArtifactArchitecture), nil

	case PhaseImplementation:
		if len(cp.WorkProgress.OpenItems) > 0 || len(cp.Verification.FailingItems) > 0 {
			return false, nil
		}
		// The tracker is the second source of truth; an item opened
		// externally keeps the phase incomplete even when the checkpoint
		// shows none.
		open, err := trk.ListItems(tracker.ListFilter{
			State:  tracker.StateOpen,
			Labels: labels,
		})
		if err != nil {
			return false, err
		}
		return len(open) == 0, nil

	case PhaseQA:
		if !cp.HasArtifact(ArtifactQAReport) {
			return false, nil
		}
		for _, id := range cp.WorkProgress.FlaggedItems {
			if slices.Contains(cp.WorkProgress.OpenItems, id) {
				return false, nil
			}
		}
		return true, nil

	case PhaseVerification:
		// No external state can prove verification passed; the recorded
		// completion after a passing gate is authoritative.
		return cp.PhaseCompleted(PhaseVerification.String()), nil

	case PhaseLearning:
		return cp.HasArtifact(ArtifactFinalReport), nil
	}

	return false, nil
}

// ResumePhase walks the forward sequence and returns the first phase whose
// completion predicate does not hold, or Done when all do. A checkpoint in
// the divergence status resumes at Divergence regardless of predicates.
func ResumePhase(cp *checkpoint.Checkpoint, trk tracker.WorkItemTracker, labels []string) (Phase, error) {
	if cp.Phase.Status == checkpoint.PhaseDivergence {
		return PhaseDivergence, nil
	}
	for _, phase := range phaseOrder {
		if phase == PhaseDone {
			break
		}
		done, err := EvaluatePredicate(cp, phase, trk, labels)
		if err != nil {
			return phase, err
		}
		if !done {
			return phase, nil
		}
	}
	return PhaseDone, nil
}

func (m *Machine) phaseComplete(cp *checkpoint.Checkpoint, phase Phase) (bool, error) {
	return EvaluatePredicate(cp, phase, m.tracker, m.cfg.Tracker.Labels)
}
