// Package resume routes control back into the orchestration state machine
// after a suspension. It owns the one step that must happen before any
// phase-resume decision: reconciling the checkpoint's recorded work
// progress against the live tracker, which may have changed while the
// process was down.
package resume

import (
	"slices"
	"time"

	"github.com/forgeflow/forgeflow/internal/checkpoint"
	"github.com/forgeflow/forgeflow/internal/config"
	"github.com/forgeflow/forgeflow/internal/errors"
	"github.com/forgeflow/forgeflow/internal/logging"
	"github.com/forgeflow/forgeflow/internal/orchestrator"
	"github.com/forgeflow/forgeflow/internal/tracker"
)

// Controller reconciles and resumes a suspended run.
type Controller struct {
	cfg     *config.Config
	store   *checkpoint.Store
	tracker tracker.WorkItemTracker
	logger  *logging.Logger
}

// NewController creates a Controller.
func NewController(cfg *config.Config, store *checkpoint.Store, trk tracker.WorkItemTracker, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Controller{
		cfg:     cfg,
		store:   store,
		tracker: trk,
		logger:  logger,
	}
}

// Outcome is the result of a resume decision.
type Outcome struct {
	// NewProject is true when no checkpoint exists yet.
	NewProject bool
	// Point is where the machine should re-enter. Meaningless for a new
	// project.
	Point orchestrator.ResumptionPoint
	// Checkpoint is the reconciled document, nil for a new project.
	Checkpoint *checkpoint.Checkpoint
}

// Resume loads the checkpoint, reconciles it against the tracker and
// recomputes the phase predicates to produce the resumption point.
// A missing checkpoint signals a new project; a corrupt one fails with
// ErrCorruptState and is never auto-remediated here.
func (c *Controller) Resume() (Outcome, error) {
	cp, err := c.store.Load()
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return Outcome{NewProject: true}, nil
		}
		return Outcome{}, err
	}

	logger := c.logger.WithProject(cp.Project.Name)

	if err := c.reconcile(cp, logger); err != nil {
		return Outcome{}, err
	}

	// Reload: reconciliation may have rewritten work progress.
	cp, err = c.store.Load()
	if err != nil {
		return Outcome{}, err
	}

	phase, err := orchestrator.ResumePhase(cp, c.tracker, c.cfg.Tracker.Labels)
	if err != nil {
		return Outcome{}, err
	}

	point := orchestrator.ResumptionPoint{
		Phase:               phase,
		ItemID:              cp.WorkProgress.InProgressItem,
		VerificationAttempt: cp.Verification.AttemptCount,
	}
	logger.Info("resumption point computed",
		"phase", phase.String(),
		"item_id", point.ItemID,
		"verification_attempt", point.VerificationAttempt,
	)
	return Outcome{Point: point, Checkpoint: cp}, nil
}

// reconcile computes the symmetric difference between the checkpoint's
// recorded item sets and the tracker's live view, and rewrites the
// checkpoint to match. The tracker always wins; the resolution is recorded
// on the checkpoint and logged, never silently dropped.
func (c *Controller) reconcile(cp *checkpoint.Checkpoint, logger *logging.Logger) error {
	items, err := c.tracker.ListItems(tracker.ListFilter{Labels: c.cfg.Tracker.Labels})
	if err != nil {
		return errors.NewTrackerError("reconciliation query failed", err).
			WithProvider(c.cfg.Tracker.Provider)
	}

	live := make(map[string]tracker.ItemState, len(items))
	for _, it := range items {
		live[it.ID] = it.State
	}

	var closedExternal, openedExternal, removedExternal []string

	for id, state := range live {
		switch state {
		case tracker.StateClosed:
			if !cp.ItemCompleted(id) {
				closedExternal = append(closedExternal, id)
			}
		case tracker.StateOpen:
			if !slices.Contains(cp.WorkProgress.OpenItems, id) {
				openedExternal = append(openedExternal, id)
			}
		}
	}
	for _, id := range cp.WorkProgress.OpenItems {
		if _, ok := live[id]; !ok {
			removedExternal = append(removedExternal, id)
		}
	}

	if len(closedExternal) == 0 && len(openedExternal) == 0 && len(removedExternal) == 0 {
		return nil
	}

	slices.Sort(closedExternal)
	slices.Sort(openedExternal)
	slices.Sort(removedExternal)

	logger.Warn("checkpoint and tracker disagree, tracker wins",
		"closed_external", closedExternal,
		"opened_external", openedExternal,
		"removed_external", removedExternal,
		"conflict", errors.ErrReconciliationConflict.Error(),
	)

	_, err = c.store.Mutate(func(doc *checkpoint.Checkpoint) error {
		for _, id := range closedExternal {
			doc.CompleteItem(id)
		}
		for _, id := range openedExternal {
			if doc.ItemCompleted(id) {
				doc.ReopenItem(id)
			} else {
				doc.AddOpenItem(id)
			}
		}
		for _, id := range removedExternal {
			doc.RemoveOpenItem(id)
		}
		if ip := doc.WorkProgress.InProgressItem; ip != "" && !slices.Contains(doc.WorkProgress.OpenItems, ip) {
			doc.WorkProgress.InProgressItem = ""
		}
		// Adopted items the checkpoint never counted would otherwise push
		// the completed count past the total.
		doc.WorkProgress.TotalItems = len(doc.WorkProgress.CompletedItems) + len(doc.WorkProgress.OpenItems)
		doc.RecordReconciliation(checkpoint.ReconciliationEntry{
			Timestamp:       time.Now().UTC(),
			ClosedExternal:  closedExternal,
			OpenedExternal:  openedExternal,
			RemovedExternal: removedExternal,
		})
		return nil
	})
	return err
}
