package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/forgeflow/forgeflow/internal/agent"
	"github.com/forgeflow/forgeflow/internal/approval"
	"github.com/forgeflow/forgeflow/internal/checkpoint"
	"github.com/forgeflow/forgeflow/internal/complexity"
	"github.com/forgeflow/forgeflow/internal/config"
	"github.com/forgeflow/forgeflow/internal/errors"
	"github.com/forgeflow/forgeflow/internal/history"
	"github.com/forgeflow/forgeflow/internal/logging"
	"github.com/forgeflow/forgeflow/internal/tracker"
)

// Recorder persists completed-project records for the optimizer.
type Recorder interface {
	Append(rec history.ProjectRecord) error
}

// Machine is the phase-sequenced orchestration state machine. Execution is
// single-threaded and checkpoint-synchronous: phases run in strict order,
// items run one at a time, and every logical unit of work ends with one
// atomic checkpoint write. Any external failure suspends the machine at
// the last written checkpoint.
type Machine struct {
	cfg      *config.Config
	store    *checkpoint.Store
	tracker  tracker.WorkItemTracker
	invoker  agent.Invoker
	analyzer *complexity.Analyzer
	ladder   *BudgetLadder
	verifier *Verifier
	gate     approval.Gate
	records  Recorder
	logger   *logging.Logger
	now      func() time.Time

	project     string
	request     string
	reduceScope bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithGate sets the approval gate. Defaults to AutoDeny, which suspends
// the run at every gate instead of guessing.
func WithGate(g approval.Gate) Option {
	return func(m *Machine) { m.gate = g }
}

// WithRecorder sets the completed-project record sink.
func WithRecorder(r Recorder) Option {
	return func(m *Machine) { m.records = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithClock overrides the wall clock, for time-budget tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a Machine over the given collaborators.
func NewMachine(cfg *config.Config, store *checkpoint.Store, trk tracker.WorkItemTracker, inv agent.Invoker, opts ...Option) *Machine {
	m := &Machine{
		cfg:      cfg,
		store:    store,
		tracker:  trk,
		invoker:  inv,
		ladder:   NewBudgetLadder(cfg.Resources),
		verifier: NewVerifier(cfg.Verification),
		gate:     approval.AutoDeny{},
		logger:   logging.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.analyzer = complexity.NewAnalyzer(cfg.Complexity, cfg.Resources, &agentSplitter{machine: m})
	return m
}

// Run drives the machine from the given resumption point until the run
// completes, diverges without an exit decision, or an external failure
// suspends it. The checkpoint must already exist.
func (m *Machine) Run(ctx context.Context, start ResumptionPoint) error {
	cp, err := m.store.Load()
	if err != nil {
		return err
	}
	m.project = cp.Project.Name
	m.request = cp.Project.Request
	m.logger = m.logger.WithProject(m.project)

	phase := start.Phase
	if phase == "" {
		phase = PhaseInfra
	}

	for {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: run interrupted", errors.ErrCanceled)
		}

		switch phase {
		case PhaseDone:
			m.logger.Info("run complete")
			return nil
		case PhaseDivergence:
			next, err := m.handleDivergence(ctx)
			if err != nil {
				return err
			}
			phase = next
			continue
		}

		cp, err = m.store.Load()
		if err != nil {
			return err
		}

		done, err := m.phaseComplete(cp, phase)
		if err != nil {
			return m.suspend(phase, err)
		}
		if done {
			if _, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
				c.CompletePhase(phase.String())
				return nil
			}); err != nil {
				return err
			}
			m.logger.WithPhase(phase.String()).Info("phase complete")
			next, ok := phase.Next()
			if !ok {
				return nil
			}
			phase = next
			continue
		}

		if cp.Phase.Current != phase.String() {
			if _, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
				c.EnterPhase(phase.String())
				return nil
			}); err != nil {
				return err
			}
			m.logger.WithPhase(phase.String()).Info("phase entered")
		} else if err := m.checkTimeBudget(ctx, cp, phase); err != nil {
			return err
		}

		next, err := m.runPhase(ctx, phase, start)
		if err != nil {
			return m.suspend(phase, err)
		}
		start = ResumptionPoint{}
		phase = next
	}
}

// suspend wraps an external failure so the caller knows the run is
// resumable from the last written checkpoint.
func (m *Machine) suspend(phase Phase, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errors.ErrCanceled) || errors.Is(err, errors.ErrApprovalRequired) {
		return err
	}
	m.logger.WithPhase(phase.String()).Error("run suspended", "error", err)
	return errors.NewPhaseError("suspended at last checkpoint", err).WithPhase(phase.String())
}

func (m *Machine) runPhase(ctx context.Context, phase Phase, start ResumptionPoint) (Phase, error) {
	switch phase {
	case PhaseInfra:
		return m.runInfra(ctx)
	case PhaseDefinition:
		return m.runDefinition(ctx)
	case PhaseDecomposition:
		return m.runDecomposition(ctx)
	case PhaseArchitecture:
		return m.runArchitecture(ctx)
	case PhaseImplementation:
		return m.runImplementation(ctx, start)
	case PhaseQA:
		return m.runQA(ctx)
	case PhaseVerification:
		return m.runVerification(ctx)
	case PhaseLearning:
		return m.runLearning(ctx)
	}
	return phase, fmt.Errorf("no handler for phase %q", phase)
}

// invoke runs one capability and, on success, records the invocation and
// any produced artifacts in a single checkpoint write. Nothing is written
// before or during the call, so a cancelled invocation is re-attempted
// from scratch on resume.
func (m *Machine) invoke(ctx context.Context, capability agent.Capability, itemID string, input map[string]any) (agent.Result, error) {
	started := m.now().UTC()
	res, err := m.invoker.Invoke(ctx, agent.Request{
		Capability: capability,
		Project:    m.project,
		ItemID:     itemID,
		Input:      input,
	})
	if err != nil {
		return res, err
	}
	completed := m.now().UTC()

	_, err = m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.RecordInvocation(checkpoint.AgentInvocation{
			Capability:  capability.String(),
			Phase:       c.Phase.Current,
			ItemID:      itemID,
			Status:      "completed",
			StartedAt:   started,
			CompletedAt: &completed,
		})
		for _, a := range res.Artifacts {
			c.AddArtifact(a)
		}
		c.Phase.Status = checkpoint.PhaseInProgress
		return nil
	})
	return res, err
}

// checkTimeBudget raises an approval gate when a phase has exceeded its
// wall-clock budget. A breach is informational, never an abort: the
// decision is extend, reduce scope, or proceed as-is.
func (m *Machine) checkTimeBudget(ctx context.Context, cp *checkpoint.Checkpoint, phase Phase) error {
	budget := m.phaseBudget(phase)
	if budget <= 0 || cp.Phase.StartedAt.IsZero() {
		return nil
	}
	elapsed := m.now().Sub(cp.Phase.StartedAt)
	if elapsed <= budget {
		return nil
	}

	m.logger.WithPhase(phase.String()).Warn("phase over time budget",
		"elapsed", elapsed.String(), "budget", budget.String())

	decision, err := m.gate.Request(ctx, approval.Request{
		Kind:  approval.KindTimeBudget,
		Title: fmt.Sprintf("phase %s exceeded its time budget", phase),
		Detail: fmt.Sprintf("elapsed %s against a budget of %s",
			elapsed.Round(time.Minute), budget),
		Options: []approval.Option{
			{ID: "extend", Label: "Extend the budget and continue"},
			{ID: "reduce", Label: "Reduce scope (drop low-priority items)"},
			{ID: "proceed", Label: "Proceed as-is"},
		},
	})
	if err != nil {
		return err
	}

	if decision == "reduce" {
		m.reduceScope = true
	}
	_, err = m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.RestartPhaseClock()
		return nil
	})
	return err
}

func (m *Machine) phaseBudget(phase Phase) time.Duration {
	minutes := 0
	switch phase {
	case PhaseInfra:
		minutes = m.cfg.Phases.InfraBudgetMinutes
	case PhaseDefinition:
		minutes = m.cfg.Phases.DefinitionBudgetMinutes
	case PhaseDecomposition:
		minutes = m.cfg.Phases.DecompositionBudgetMinutes
	case PhaseArchitecture:
		minutes = m.cfg.Phases.ArchitectureBudgetMinutes
	case PhaseImplementation:
		minutes = m.cfg.Phases.ImplementationBudgetMinutes
	case PhaseQA:
		minutes = m.cfg.Phases.QABudgetMinutes
	case PhaseVerification:
		minutes = m.cfg.Phases.VerificationBudgetMinutes
	case PhaseLearning:
		minutes = m.cfg.Phases.LearningBudgetMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (m *Machine) runInfra(ctx context.Context) (Phase, error) {
	_, err := m.invoke(ctx, agent.CapScaffold, "", map[string]any{
		"request": m.request,
	})
	if err != nil {
		return PhaseInfra, err
	}
	_, err = m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.AddArtifact(ArtifactScaffold)
		return nil
	})
	return PhaseInfra, err
}

// itemSpec is the wire shape of one work item description produced by the
// define-product and qa capabilities.
type itemSpec struct {
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Kind            string   `json:"kind"`
	Priority        string   `json:"priority"`
	Files           int      `json:"files"`
	LOC             int      `json:"loc"`
	DependencyCount int      `json:"dependency_count"`
	DependsOn       []string `json:"depends_on"`
}

func (m *Machine) runDefinition(ctx context.Context) (Phase, error) {
	res, err := m.invoke(ctx, agent.CapDefineProduct, "", map[string]any{
		"request": m.request,
	})
	if err != nil {
		return PhaseDefinition, err
	}

	var specs []itemSpec
	if err := decodeOutput(res.Output, "items", &specs); err != nil {
		return PhaseDefinition, err
	}
	if len(specs) == 0 {
		return PhaseDefinition, fmt.Errorf("product definition produced no work items")
	}

	ids, err := m.createItems(ctx, specs, nil, false)
	if err != nil {
		return PhaseDefinition, err
	}

	_, err = m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.AddArtifact(ArtifactPRD)
		return nil
	})
	m.logger.WithPhase(PhaseDefinition.String()).Info("work items created", "count", len(ids))
	return PhaseDefinition, err
}

// createItems scores, creates and records a batch of item specs.
// titleToID maps sibling titles to created IDs so intra-batch dependencies
// resolve; existing open items with the same title are reused so a
// replayed phase does not duplicate them. flagged marks the items as
// QA-filed defects.
func (m *Machine) createItems(ctx context.Context, specs []itemSpec, inheritDeps []string, flagged bool) ([]string, error) {
	existing, err := m.tracker.ListItems(tracker.ListFilter{Labels: m.cfg.Tracker.Labels})
	if err != nil {
		return nil, err
	}
	byTitle := make(map[string]string, len(existing))
	for _, it := range existing {
		byTitle[it.Title] = it.ID
	}

	titleToID := make(map[string]string, len(specs))
	ids := make([]string, 0, len(specs))

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return ids, err
		}

		est := complexity.Estimate{
			Title:           spec.Title,
			Files:           spec.Files,
			LOC:             spec.LOC,
			DependencyCount: spec.DependencyCount,
		}
		score := m.analyzer.Score(est)
		category := m.analyzer.Classify(score)
		resource := m.analyzer.EstimateResource(est)

		kind := KindFeature
		if strings.EqualFold(spec.Kind, string(KindBug)) {
			kind = KindBug
		}
		priority := ParsePriority(spec.Priority)

		id, ok := byTitle[spec.Title]
		if !ok {
			labels := append(append([]string{}, m.cfg.Tracker.Labels...),
				"kind:"+string(kind), "priority:"+priority.String())
			id, err = m.tracker.CreateItem(tracker.CreateOptions{
				Title:  spec.Title,
				Body:   spec.Body,
				Labels: labels,
			})
			if err != nil {
				return ids, err
			}
		}
		titleToID[spec.Title] = id
		ids = append(ids, id)

		deps := append([]string{}, inheritDeps...)
		for _, dep := range spec.DependsOn {
			if depID, ok := titleToID[dep]; ok {
				deps = append(deps, depID)
			} else if depID, ok := byTitle[dep]; ok {
				deps = append(deps, depID)
			}
		}

		meta := checkpoint.ItemMeta{
			Title:             spec.Title,
			Kind:              string(kind),
			Priority:          priority.String(),
			Files:             spec.Files,
			LOC:               spec.LOC,
			DependencyCount:   spec.DependencyCount,
			Score:             score,
			Category:          string(category),
			EstimatedResource: resource,
			DependsOn:         deps,
		}
		if _, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
			c.AddOpenItem(id)
			c.UpsertItem(id, meta)
			if flagged {
				c.FlagItem(id)
			}
			return nil
		}); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

func (m *Machine) runDecomposition(ctx context.Context) (Phase, error) {
	cp, err := m.store.Load()
	if err != nil {
		return PhaseDecomposition, err
	}

	for _, id := range append([]string{}, cp.WorkProgress.OpenItems...) {
		meta, ok := cp.Item(id)
		if !ok || meta.Category != string(complexity.Complex) {
			continue
		}
		if err := m.decomposeItem(ctx, id, meta); err != nil {
			return PhaseDecomposition, err
		}
	}
	return PhaseDecomposition, nil
}

// decomposeItem splits one over-threshold item into children, creates them
// and closes the parent. The parent counts as covered by its children, not
// as abandoned.
func (m *Machine) decomposeItem(ctx context.Context, id string, meta checkpoint.ItemMeta) error {
	logger := m.logger.WithItem(id)
	logger.Info("decomposing item", "score", meta.Score, "category", meta.Category)

	assessment, err := m.analyzer.Analyze(ctx, complexity.Estimate{
		Title:           meta.Title,
		Files:           meta.Files,
		LOC:             meta.LOC,
		DependencyCount: meta.DependencyCount,
	})
	if err != nil {
		return err
	}

	specs := make([]itemSpec, 0, len(assessment.DecompositionAdvice))
	for _, child := range assessment.DecompositionAdvice {
		specs = append(specs, itemSpec{
			Title:           child.Title,
			Kind:            meta.Kind,
			Priority:        meta.Priority,
			Files:           child.Files,
			LOC:             child.LOC,
			DependencyCount: child.DependencyCount,
			DependsOn:       child.DependsOn,
		})
	}

	childIDs, err := m.createItems(ctx, specs, meta.DependsOn, false)
	if err != nil {
		return err
	}

	evidence := fmt.Sprintf("decomposed into %s", strings.Join(childIDs, ", "))
	if err := m.tracker.CloseItem(id, evidence); err != nil {
		return err
	}

	_, err = m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.MarkItemSplit(id)
		c.CompleteItem(id)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("item decomposed", "children", len(childIDs))
	return nil
}

func (m *Machine) runArchitecture(ctx context.Context) (Phase, error) {
	_, err := m.invoke(ctx, agent.CapDesignArchitecture, "", map[string]any{
		"request": m.request,
	})
	if err != nil {
		return PhaseArchitecture, err
	}
	_, err = m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.AddArtifact(ArtifactArchitecture)
		return nil
	})
	return PhaseArchitecture, err
}

func (m *Machine) runImplementation(ctx context.Context, start ResumptionPoint) (Phase, error) {
	for {
		if err := ctx.Err(); err != nil {
			return PhaseImplementation, fmt.Errorf("%w: implementation interrupted", errors.ErrCanceled)
		}

		cp, err := m.store.Load()
		if err != nil {
			return PhaseImplementation, err
		}

		if err := m.checkTimeBudget(ctx, cp, PhaseImplementation); err != nil {
			return PhaseImplementation, err
		}

		// Verification rework comes first: only the failing sub-items are
		// carried back, never a full restart.
		if len(cp.Verification.FailingItems) > 0 {
			if err := m.fixFailingItems(ctx, cp); err != nil {
				return PhaseImplementation, err
			}
			return PhaseVerification, nil
		}

		item, ok := m.nextReadyItem(cp, start.ItemID)
		start.ItemID = ""
		if !ok {
			if len(cp.WorkProgress.OpenItems) > 0 {
				return PhaseImplementation, fmt.Errorf(
					"no schedulable item among %d open items (dependency cycle?)",
					len(cp.WorkProgress.OpenItems))
			}
			return PhaseImplementation, nil
		}

		if m.reduceScope && item.Priority == PriorityLow {
			if err := m.descopeItem(item); err != nil {
				return PhaseImplementation, err
			}
			continue
		}

		if err := m.workItem(ctx, item); err != nil {
			return PhaseImplementation, err
		}
	}
}

// nextReadyItem picks the next open item whose dependencies are all
// completed, ordered by priority descending with item ID as the stable
// tie-break. preferred, when set and ready, wins outright so a resumed run
// continues the item it was suspended in.
func (m *Machine) nextReadyItem(cp *checkpoint.Checkpoint, preferred string) (WorkItem, bool) {
	var ready []WorkItem
	for _, id := range cp.WorkProgress.OpenItems {
		meta, ok := cp.Item(id)
		if !ok {
			// Item created externally; schedule it with neutral defaults.
			meta = checkpoint.ItemMeta{Title: id, Kind: string(KindFeature), Priority: PriorityMedium.String()}
		}
		depsDone := true
		for _, dep := range meta.DependsOn {
			if !cp.ItemCompleted(dep) {
				depsDone = false
				break
			}
		}
		if !depsDone {
			continue
		}
		ready = append(ready, WorkItem{
			ID:                id,
			Title:             meta.Title,
			Kind:              ItemKind(meta.Kind),
			Priority:          ParsePriority(meta.Priority),
			Score:             meta.Score,
			Category:          meta.Category,
			EstimatedResource: meta.EstimatedResource,
			DependsOn:         meta.DependsOn,
		})
	}
	if len(ready) == 0 {
		return WorkItem{}, false
	}

	if preferred != "" {
		for _, it := range ready {
			if it.ID == preferred {
				return it, true
			}
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].ID < ready[j].ID
	})
	return ready[0], true
}

// workItem schedules one item through the budget ladder and runs its
// checkpointed sub-units.
func (m *Machine) workItem(ctx context.Context, item WorkItem) error {
	logger := m.logger.WithItem(item.ID)

	decision := m.ladder.Classify(item.EstimatedResource)
	if decision == Refuse {
		// Hard precondition: an item whose estimate exceeds the ceiling is
		// never scheduled directly.
		logger.Warn("estimate exceeds resource ceiling, routing to decomposition",
			"estimate", item.EstimatedResource, "error", errors.ErrResourceCeiling.Error())
		cp, err := m.store.Load()
		if err != nil {
			return err
		}
		meta, ok := cp.Item(item.ID)
		if !ok {
			return fmt.Errorf("%w: no shape recorded for item %s", errors.ErrResourceCeiling, item.ID)
		}
		return m.decomposeItem(ctx, item.ID, meta)
	}

	units := 1
	if decision == ProceedChunked {
		units = m.ladder.ChunkCount(item.EstimatedResource)
	}
	logger.Info("working item", "decision", decision.String(), "units", units)

	if _, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.SetInProgress(item.ID)
		return nil
	}); err != nil {
		return err
	}

	for unit := 1; unit <= units; unit++ {
		res, err := m.invoke(ctx, agent.CapImplement, item.ID, map[string]any{
			"title": item.Title,
			"unit":  unit,
			"units": units,
		})
		if err != nil {
			return err
		}

		approaching := false
		if _, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
			approaching = c.TrackUsage(res.CostTokens, m.cfg.Resources.ApproachingRatio)
			c.RecordItemCost(item.ID, res.CostTokens)
			return nil
		}); err != nil {
			return err
		}

		// Crossing the approaching ratio mid-item stops work here: the
		// finished units are persisted and the remainder becomes a new
		// dependent item, so no recorded unit silently exceeds the ceiling.
		if approaching && unit < units {
			logger.Warn("approaching resource limit mid-item, splitting remainder",
				"unit", unit, "units", units)
			if err := m.splitRemainder(item, unit, units); err != nil {
				return err
			}
			break
		}
	}

	if err := m.tracker.CloseItem(item.ID, fmt.Sprintf("implemented (%s)", item.Title)); err != nil {
		return err
	}
	if _, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.CompleteItem(item.ID)
		return nil
	}); err != nil {
		return err
	}
	logger.Info("item complete")
	return nil
}

// splitRemainder creates a dependent item covering the unfinished share of
// a mid-item budget stop.
func (m *Machine) splitRemainder(item WorkItem, unitsDone, unitsPlanned int) error {
	remainderShare := float64(unitsPlanned-unitsDone) / float64(unitsPlanned)
	remainderEst := int64(float64(item.EstimatedResource) * remainderShare)

	labels := append(append([]string{}, m.cfg.Tracker.Labels...),
		"kind:"+string(item.Kind), "priority:"+item.Priority.String())
	id, err := m.tracker.CreateItem(tracker.CreateOptions{
		Title: item.Title + " (remainder)",
		Body: fmt.Sprintf("Continuation of %s: work stopped after unit %d of %d at the resource limit.",
			item.ID, unitsDone, unitsPlanned),
		Labels: labels,
	})
	if err != nil {
		return err
	}

	_, err = m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.AddOpenItem(id)
		c.UpsertItem(id, checkpoint.ItemMeta{
			Title:             item.Title + " (remainder)",
			Kind:              string(item.Kind),
			Priority:          item.Priority.String(),
			Score:             item.Score,
			Category:          item.Category,
			EstimatedResource: remainderEst,
			DependsOn:         []string{item.ID},
		})
		c.MarkItemSplit(item.ID)
		return nil
	})
	return err
}

// descopeItem drops a low-priority item after an approved scope reduction.
func (m *Machine) descopeItem(item WorkItem) error {
	if err := m.tracker.CloseItem(item.ID, "descoped after time-budget decision"); err != nil {
		return err
	}
	_, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.CompleteItem(item.ID)
		c.AddDisclosedGap(fmt.Sprintf("item %s (%s) descoped after time-budget decision", item.ID, item.Title))
		return nil
	})
	m.logger.WithItem(item.ID).Warn("item descoped")
	return err
}

// fixFailingItems reworks the sub-items carried back from a failed
// verification attempt.
func (m *Machine) fixFailingItems(ctx context.Context, cp *checkpoint.Checkpoint) error {
	for _, id := range append([]string{}, cp.Verification.FailingItems...) {
		meta, _ := cp.Item(id)
		res, err := m.invoke(ctx, agent.CapImplement, id, map[string]any{
			"title": meta.Title,
			"mode":  "fix",
		})
		if err != nil {
			return err
		}
		if _, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
			c.TrackUsage(res.CostTokens, m.cfg.Resources.ApproachingRatio)
			c.RecordItemCost(id, res.CostTokens)
			return nil
		}); err != nil {
			return err
		}
		if err := m.tracker.Comment(id, "verification fix applied"); err != nil {
			return err
		}
	}

	_, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.ClearFailingItems()
		return nil
	})
	return err
}

func (m *Machine) runQA(ctx context.Context) (Phase, error) {
	res, err := m.invoke(ctx, agent.CapQA, "", nil)
	if err != nil {
		return PhaseQA, err
	}

	var defects []itemSpec
	if err := decodeOutput(res.Output, "defects", &defects); err != nil {
		return PhaseQA, err
	}

	if _, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.AddArtifact(ArtifactQAReport)
		return nil
	}); err != nil {
		return PhaseQA, err
	}

	if len(defects) == 0 {
		return PhaseQA, nil
	}

	for i := range defects {
		defects[i].Kind = string(KindBug)
		if defects[i].Priority == "" {
			defects[i].Priority = PriorityHigh.String()
		}
	}
	ids, err := m.createItems(ctx, defects, nil, true)
	if err != nil {
		return PhaseQA, err
	}
	m.logger.WithPhase(PhaseQA.String()).Warn("defects filed, returning to implementation", "count", len(ids))
	return PhaseImplementation, nil
}

func (m *Machine) runVerification(ctx context.Context) (Phase, error) {
	cp, err := m.store.Load()
	if err != nil {
		return PhaseVerification, err
	}

	res, err := m.invoke(ctx, agent.CapVerify, "", map[string]any{
		"quarantined_tests": cp.Verification.QuarantinedTests,
		"coverage_target":   m.cfg.Verification.CoverageTarget,
	})
	if err != nil {
		return PhaseVerification, err
	}

	outcome, err := parseOutcome(res.Output)
	if err != nil {
		return PhaseVerification, err
	}

	assessment := m.verifier.Evaluate(outcome, cp.Verification.FailureHistory, cp.Verification.QuarantinedTests)
	logger := m.logger.WithPhase(PhaseVerification.String())

	if assessment.Pass {
		_, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
			for _, t := range assessment.Quarantined {
				c.QuarantineTest(t)
			}
			for _, g := range assessment.DisclosedGaps {
				c.AddDisclosedGap(g)
			}
			c.ResetVerification()
			c.CompletePhase(PhaseVerification.String())
			return nil
		})
		if err != nil {
			return PhaseVerification, err
		}
		for _, t := range assessment.Quarantined {
			logger.Warn("test quarantined as flaky", "test", t)
		}
		for _, g := range assessment.DisclosedGaps {
			logger.Warn("disclosed gap accepted", "gap", g)
		}
		logger.Info("verification passed")
		return PhaseVerification, nil
	}

	// The attempt cap stored at run creation bounds this loop, not the live
	// config value: the counter is capped against the stored value, so a
	// config raised mid-run would otherwise never satisfy the divergence
	// comparison and the loop would lose its bound.
	attempts, maxAttempts := 0, 0
	_, err = m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		attempts = c.RecordVerificationFailure(assessment.Reason, outcome.FailingTests, assessment.FailingItems)
		maxAttempts = c.Verification.MaxAttempts
		for _, g := range assessment.DisclosedGaps {
			c.AddDisclosedGap(g)
		}
		return nil
	})
	if err != nil {
		return PhaseVerification, err
	}
	logger.Warn("verification failed",
		"attempt", attempts,
		"max_attempts", maxAttempts,
		"reason", assessment.Reason)

	if attempts >= maxAttempts {
		_, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
			c.MarkDivergence()
			return nil
		})
		if err != nil {
			return PhaseVerification, err
		}
		logger.Error("verification diverged", "attempts", attempts)
		return PhaseDivergence, nil
	}
	return PhaseImplementation, nil
}

// parseOutcome decodes the verify capability's structured output.
func parseOutcome(output map[string]any) (Outcome, error) {
	var wire struct {
		FailingTests []string `json:"failing_tests"`
		FailingItems []string `json:"failing_items"`
		Coverage     *float64 `json:"coverage"`
		Summary      string   `json:"summary"`
	}
	data, err := json.Marshal(output)
	if err != nil {
		return Outcome{}, fmt.Errorf("re-encode verification output: %w", err)
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Outcome{}, fmt.Errorf("decode verification output: %w", err)
	}

	outcome := Outcome{
		FailingTests: wire.FailingTests,
		FailingItems: wire.FailingItems,
		Coverage:     -1,
		Summary:      wire.Summary,
	}
	if wire.Coverage != nil {
		outcome.Coverage = *wire.Coverage
	}
	return outcome, nil
}

func (m *Machine) runLearning(ctx context.Context) (Phase, error) {
	cp, err := m.store.Load()
	if err != nil {
		return PhaseLearning, err
	}

	if m.records != nil {
		if err := m.records.Append(buildRecord(cp)); err != nil {
			return PhaseLearning, err
		}
	}

	_, err = m.invoke(ctx, agent.CapReport, "", map[string]any{
		"disclosed_gaps":    cp.Verification.DisclosedGaps,
		"quarantined_tests": cp.Verification.QuarantinedTests,
		"items_completed":   len(cp.WorkProgress.CompletedItems),
	})
	if err != nil {
		return PhaseLearning, err
	}

	_, err = m.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.AddArtifact(ArtifactFinalReport)
		return nil
	})
	return PhaseLearning, err
}

// buildRecord derives the completed project's history record from the
// checkpoint.
func buildRecord(cp *checkpoint.Checkpoint) history.ProjectRecord {
	rec := history.ProjectRecord{
		Project:              cp.Project.Name,
		RunID:                cp.Project.RunID,
		VerificationAttempts: len(cp.Verification.FailureHistory),
		Diverged:             cp.Phase.Status == checkpoint.PhaseDivergence,
		DisclosedGaps:        append([]string{}, cp.Verification.DisclosedGaps...),
	}
	for id, meta := range cp.Items {
		rec.Items = append(rec.Items, history.ItemRecord{
			ItemID:            id,
			Score:             meta.Score,
			Category:          meta.Category,
			EstimatedResource: meta.EstimatedResource,
			ActualResource:    meta.ActualResource,
			Split:             meta.Split,
			Commits:           meta.Commits,
		})
	}
	sort.Slice(rec.Items, func(i, j int) bool { return rec.Items[i].ItemID < rec.Items[j].ItemID })
	return rec
}

// handleDivergence renders the divergence report and asks for an exit
// decision. Divergence is never exited silently.
func (m *Machine) handleDivergence(ctx context.Context) (Phase, error) {
	cp, err := m.store.Load()
	if err != nil {
		return PhaseDivergence, err
	}

	decision, err := m.gate.Request(ctx, approval.Request{
		Kind:   approval.KindDivergenceExit,
		Title:  fmt.Sprintf("verification diverged after %d attempts", cp.Verification.AttemptCount),
		Detail: DivergenceReport(cp),
		Options: []approval.Option{
			{ID: "narrow", Label: "Narrow scope: descope the failing items"},
			{ID: "relax", Label: "Relax the gate: quarantine the failing tests"},
			{ID: "manual", Label: "Stop for manual intervention"},
		},
	})
	if err != nil {
		return PhaseDivergence, err
	}

	switch decision {
	case "narrow":
		for _, id := range append([]string{}, cp.Verification.FailingItems...) {
			if err := m.tracker.CloseItem(id, "descoped after divergence"); err != nil && !errors.Is(err, tracker.ErrItemNotFound) {
				return PhaseDivergence, err
			}
		}
		_, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
			for _, id := range append([]string{}, c.Verification.FailingItems...) {
				c.CompleteItem(id)
				c.AddDisclosedGap(fmt.Sprintf("item %s descoped after divergence", id))
			}
			c.ResetVerification()
			c.EnterPhase(PhaseVerification.String())
			return nil
		})
		return PhaseVerification, err

	case "relax":
		_, err := m.store.Mutate(func(c *checkpoint.Checkpoint) error {
			if n := len(c.Verification.FailureHistory); n > 0 {
				for _, t := range c.Verification.FailureHistory[n-1].Tests {
					c.QuarantineTest(t)
				}
			}
			c.AddDisclosedGap("verification gate relaxed by operator after divergence")
			c.ResetVerification()
			c.EnterPhase(PhaseVerification.String())
			return nil
		})
		return PhaseVerification, err
	}

	return PhaseDivergence, errors.Wrap(errors.ErrDivergence, "manual intervention selected; run halted")
}
