// Package checkpoint provides the durable state document for an in-progress
// orchestration run and its persistence layer.
//
// The checkpoint is the single source of truth for where a run stands: the
// current phase, per-item work progress, resource usage, verification
// attempts and the append-only agent invocation log. It is mutated
// exclusively through Store.Mutate, one logical transaction per phase
// completion, item completion or verification attempt. Mutation functions
// use set-union semantics so that replaying a write after a crash never
// double-counts progress.
package checkpoint

import (
	"slices"
	"time"
)

// SchemaVersion is the current checkpoint document schema version.
// Documents with an older version are migrated forward on load; documents
// with a newer version are refused.
const SchemaVersion = 1

// PhaseStatus represents the status of the current phase.
type PhaseStatus string

const (
	// PhaseNotStarted means the phase has been entered but no work recorded.
	PhaseNotStarted PhaseStatus = "not_started"
	// PhaseInProgress means the phase has recorded at least one unit of work.
	PhaseInProgress PhaseStatus = "in_progress"
	// PhaseComplete means the phase's completion predicate held.
	PhaseComplete PhaseStatus = "complete"
	// PhaseDivergence means bounded verification retries were exhausted.
	// Terminal until an explicit approval decision exits it.
	PhaseDivergence PhaseStatus = "divergence"
)

// ProjectIdentity identifies the project a checkpoint belongs to.
type ProjectIdentity struct {
	Name        string    `json:"name"`
	RunID       string    `json:"run_id"`
	Request     string    `json:"request"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// PhaseState records the current phase and its status.
type PhaseState struct {
	Current   string      `json:"current"`
	StartedAt time.Time   `json:"started_at"`
	Status    PhaseStatus `json:"status"`
}

// WorkProgress tracks per-item progress within the implementation loop.
// Invariants: CompletedItems and OpenItems are disjoint; InProgressItem is
// either empty or a member of OpenItems.
type WorkProgress struct {
	TotalItems     int      `json:"total_items"`
	CompletedItems []string `json:"completed_items"`
	OpenItems      []string `json:"open_items"`
	InProgressItem string   `json:"in_progress_item,omitempty"`
	FlaggedItems   []string `json:"flagged_items,omitempty"`
}

// ResourceTracking records session-scoped resource usage. Used is
// monotonically non-decreasing within a session and resets to zero at the
// start of a new session, not on resume-in-place.
type ResourceTracking struct {
	Budget            int64 `json:"budget"`
	Used              int64 `json:"used"`
	LastUnitCost      int64 `json:"last_unit_cost"`
	ThresholdExceeded bool  `json:"threshold_exceeded"`
}

// VerificationFailure records one failed verification attempt. Tests holds
// the failing test identities of that attempt; the flaky-quarantine policy
// inspects them across the recent attempt window.
type VerificationFailure struct {
	Message   string    `json:"message"`
	Tests     []string  `json:"tests,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// VerificationState tracks the bounded retry loop. AttemptCount never
// exceeds MaxAttempts; once it reaches MaxAttempts with a further failure
// the phase transitions to divergence and is never silently retried.
type VerificationState struct {
	AttemptCount     int                   `json:"attempt_count"`
	MaxAttempts      int                   `json:"max_attempts"`
	LastAttemptAt    *time.Time            `json:"last_attempt_at,omitempty"`
	FailureHistory   []VerificationFailure `json:"failure_history,omitempty"`
	FailingItems     []string              `json:"failing_items,omitempty"`
	QuarantinedTests []string              `json:"quarantined_tests,omitempty"`
	DisclosedGaps    []string              `json:"disclosed_gaps,omitempty"`
}

// AgentInvocation is one entry in the append-only capability invocation log.
type AgentInvocation struct {
	Capability  string     `json:"capability"`
	Phase       string     `json:"phase"`
	ItemID      string     `json:"item_id,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ReconciliationEntry records one resolution of checkpoint/tracker
// disagreement. The tracker is always trusted as ground truth; the entry
// exists so the resolution is never silently dropped.
type ReconciliationEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	ClosedExternal  []string  `json:"closed_external,omitempty"`
	OpenedExternal  []string  `json:"opened_external,omitempty"`
	RemovedExternal []string  `json:"removed_external,omitempty"`
}

// ItemMeta is the orchestrator-derived shape of one work item. The tracker
// stays ground truth for item state; the shape estimates and outcome
// counters live here because no tracker backend can be trusted to carry
// them.
type ItemMeta struct {
	Title             string   `json:"title"`
	Kind              string   `json:"kind"`
	Priority          string   `json:"priority"`
	Files             int      `json:"files"`
	LOC               int      `json:"loc"`
	DependencyCount   int      `json:"dependency_count"`
	Score             int      `json:"score"`
	Category          string   `json:"category"`
	EstimatedResource int64    `json:"estimated_resource"`
	ActualResource    int64    `json:"actual_resource"`
	DependsOn         []string `json:"depends_on,omitempty"`
	// Commits counts checkpointed sub-units of work recorded for the item.
	Commits int `json:"commits"`
	// Split reports whether the item was split after classification.
	Split bool `json:"split"`
}

// Checkpoint is the durable snapshot of an in-progress orchestration run.
type Checkpoint struct {
	Version          int                   `json:"version"`
	Project          ProjectIdentity       `json:"project"`
	Phase            PhaseState            `json:"phase"`
	PhasesCompleted  []string              `json:"phases_completed"`
	WorkProgress     WorkProgress          `json:"work_progress"`
	ResourceTracking ResourceTracking      `json:"resource_tracking"`
	Verification     VerificationState     `json:"verification"`
	Items            map[string]ItemMeta   `json:"items,omitempty"`
	AgentInvocations []AgentInvocation     `json:"agent_invocations,omitempty"`
	Artifacts        []string              `json:"artifacts,omitempty"`
	Reconciliations  []ReconciliationEntry `json:"reconciliations,omitempty"`
	// ResumeHint is a derived, free-text pointer to the resumption step.
	// The structured fields above are authoritative; this is display only.
	ResumeHint string `json:"resume_hint,omitempty"`
}

// New creates a fresh checkpoint for the given project identity.
func New(identity ProjectIdentity, maxVerificationAttempts int, resourceBudget int64) *Checkpoint {
	return &Checkpoint{
		Version:         SchemaVersion,
		Project:         identity,
		PhasesCompleted: []string{},
		WorkProgress: WorkProgress{
			CompletedItems: []string{},
			OpenItems:      []string{},
		},
		ResourceTracking: ResourceTracking{
			Budget: resourceBudget,
		},
		Verification: VerificationState{
			MaxAttempts: maxVerificationAttempts,
		},
	}
}

// addToSet inserts id into a sorted string set, returning the set unchanged
// if id is already present. Set semantics keep replayed mutations idempotent.
func addToSet(set []string, id string) []string {
	idx, found := slices.BinarySearch(set, id)
	if found {
		return set
	}
	return slices.Insert(set, idx, id)
}

// removeFromSet removes id from a sorted string set if present.
func removeFromSet(set []string, id string) []string {
	idx, found := slices.BinarySearch(set, id)
	if !found {
		return set
	}
	return slices.Delete(set, idx, idx+1)
}

// containsSet reports whether a sorted string set contains id.
func containsSet(set []string, id string) bool {
	_, found := slices.BinarySearch(set, id)
	return found
}

// EnterPhase records entry into a new phase.
func (c *Checkpoint) EnterPhase(phase string) {
	c.Phase = PhaseState{
		Current:   phase,
		StartedAt: time.Now().UTC(),
		Status:    PhaseNotStarted,
	}
}

// CompletePhase marks the current phase complete and appends it to the
// ordered completed set. Re-applying for an already-completed phase is a
// no-op.
func (c *Checkpoint) CompletePhase(phase string) {
	if c.Phase.Current == phase {
		c.Phase.Status = PhaseComplete
	}
	if !slices.Contains(c.PhasesCompleted, phase) {
		c.PhasesCompleted = append(c.PhasesCompleted, phase)
	}
}

// PhaseCompleted reports whether the named phase has been completed.
func (c *Checkpoint) PhaseCompleted(phase string) bool {
	return slices.Contains(c.PhasesCompleted, phase)
}

// AddOpenItem records a newly created work item. Idempotent.
func (c *Checkpoint) AddOpenItem(id string) {
	if containsSet(c.WorkProgress.CompletedItems, id) {
		return
	}
	before := len(c.WorkProgress.OpenItems)
	c.WorkProgress.OpenItems = addToSet(c.WorkProgress.OpenItems, id)
	if len(c.WorkProgress.OpenItems) != before {
		c.WorkProgress.TotalItems++
	}
}

// SetInProgress marks the item currently being worked. The item must be
// open; setting an unknown item is ignored so replays stay safe.
func (c *Checkpoint) SetInProgress(id string) {
	if id == "" || containsSet(c.WorkProgress.OpenItems, id) {
		c.WorkProgress.InProgressItem = id
	}
}

// CompleteItem moves an item from open to completed. Idempotent: completing
// an already-completed item changes nothing.
func (c *Checkpoint) CompleteItem(id string) {
	c.WorkProgress.OpenItems = removeFromSet(c.WorkProgress.OpenItems, id)
	c.WorkProgress.CompletedItems = addToSet(c.WorkProgress.CompletedItems, id)
	if c.WorkProgress.InProgressItem == id {
		c.WorkProgress.InProgressItem = ""
	}
}

// ReopenItem moves a completed item back to the open set, preserving the
// total count. Reconciliation uses this when the tracker shows an item
// reopened externally.
func (c *Checkpoint) ReopenItem(id string) {
	c.WorkProgress.CompletedItems = removeFromSet(c.WorkProgress.CompletedItems, id)
	c.WorkProgress.OpenItems = addToSet(c.WorkProgress.OpenItems, id)
}

// RemoveOpenItem drops an open item entirely. Reconciliation uses this
// when the tracker shows an item deleted externally.
func (c *Checkpoint) RemoveOpenItem(id string) {
	if !containsSet(c.WorkProgress.OpenItems, id) {
		return
	}
	c.WorkProgress.OpenItems = removeFromSet(c.WorkProgress.OpenItems, id)
	if c.WorkProgress.TotalItems > 0 {
		c.WorkProgress.TotalItems--
	}
	if c.WorkProgress.InProgressItem == id {
		c.WorkProgress.InProgressItem = ""
	}
}

// ItemCompleted reports whether an item is in the completed set.
func (c *Checkpoint) ItemCompleted(id string) bool {
	return containsSet(c.WorkProgress.CompletedItems, id)
}

// FlagItem records an item needing attention (e.g. a QA-reported defect).
func (c *Checkpoint) FlagItem(id string) {
	c.WorkProgress.FlaggedItems = addToSet(c.WorkProgress.FlaggedItems, id)
}

// AddArtifact records a produced artifact identifier for idempotent
// re-creation checks.
func (c *Checkpoint) AddArtifact(id string) {
	c.Artifacts = addToSet(c.Artifacts, id)
}

// HasArtifact reports whether an artifact has been recorded.
func (c *Checkpoint) HasArtifact(id string) bool {
	return containsSet(c.Artifacts, id)
}

// TrackUsage adds a completed sub-unit's actual cost to session usage.
// Usage only grows within a session. Returns true when cumulative usage
// has crossed the approaching-limit ratio of the budget.
func (c *Checkpoint) TrackUsage(cost int64, approachingRatio float64) bool {
	if cost < 0 {
		cost = 0
	}
	c.ResourceTracking.Used += cost
	c.ResourceTracking.LastUnitCost = cost
	if c.ResourceTracking.Budget > 0 {
		ratio := float64(c.ResourceTracking.Used) / float64(c.ResourceTracking.Budget)
		c.ResourceTracking.ThresholdExceeded = ratio > approachingRatio
	}
	return c.ResourceTracking.ThresholdExceeded
}

// ResetSessionUsage zeroes usage at the start of a new session.
// Resume-in-place does not call this.
func (c *Checkpoint) ResetSessionUsage(budget int64) {
	c.ResourceTracking = ResourceTracking{Budget: budget}
}

// RecordVerificationFailure appends a failure and increments the attempt
// counter, capped at MaxAttempts. Returns the new attempt count.
func (c *Checkpoint) RecordVerificationFailure(message string, failingTests, failingItems []string) int {
	now := time.Now().UTC()
	if c.Verification.AttemptCount < c.Verification.MaxAttempts {
		c.Verification.AttemptCount++
	}
	c.Verification.LastAttemptAt = &now
	c.Verification.FailureHistory = append(c.Verification.FailureHistory, VerificationFailure{
		Message:   message,
		Tests:     failingTests,
		Timestamp: now,
	})
	c.Verification.FailingItems = nil
	for _, id := range failingItems {
		c.Verification.FailingItems = addToSet(c.Verification.FailingItems, id)
	}
	return c.Verification.AttemptCount
}

// MarkDivergence transitions the current phase to the divergence status.
// Only the verification phase does this, and only at the attempt cap.
func (c *Checkpoint) MarkDivergence() {
	c.Phase.Status = PhaseDivergence
}

// RestartPhaseClock resets the current phase's wall-clock start after an
// approved time-budget extension.
func (c *Checkpoint) RestartPhaseClock() {
	c.Phase.StartedAt = time.Now().UTC()
}

// QuarantineTest records a test excluded from the verification gate.
func (c *Checkpoint) QuarantineTest(test string) {
	c.Verification.QuarantinedTests = addToSet(c.Verification.QuarantinedTests, test)
}

// AddDisclosedGap records a compromise that must surface in the final
// report.
func (c *Checkpoint) AddDisclosedGap(gap string) {
	c.Verification.DisclosedGaps = addToSet(c.Verification.DisclosedGaps, gap)
}

// UpsertItem stores the derived shape of a work item.
func (c *Checkpoint) UpsertItem(id string, meta ItemMeta) {
	if c.Items == nil {
		c.Items = make(map[string]ItemMeta)
	}
	c.Items[id] = meta
}

// Item returns a work item's stored shape.
func (c *Checkpoint) Item(id string) (ItemMeta, bool) {
	meta, ok := c.Items[id]
	return meta, ok
}

// RecordItemCost adds one sub-unit's actual cost to an item's outcome
// counters.
func (c *Checkpoint) RecordItemCost(id string, cost int64) {
	meta, ok := c.Items[id]
	if !ok {
		return
	}
	meta.ActualResource += cost
	meta.Commits++
	c.Items[id] = meta
}

// MarkItemSplit records that an item had to be split after classification.
func (c *Checkpoint) MarkItemSplit(id string) {
	meta, ok := c.Items[id]
	if !ok {
		return
	}
	meta.Split = true
	c.Items[id] = meta
}

// ResetVerification clears the retry loop after a successful verification.
func (c *Checkpoint) ResetVerification() {
	c.Verification.AttemptCount = 0
	c.Verification.FailingItems = nil
}

// ClearFailingItems drops the carried failing items without resetting the
// attempt counter. Called once their fixes have been applied.
func (c *Checkpoint) ClearFailingItems() {
	c.Verification.FailingItems = nil
}

// RecordInvocation appends an entry to the capability invocation log.
func (c *Checkpoint) RecordInvocation(inv AgentInvocation) {
	c.AgentInvocations = append(c.AgentInvocations, inv)
}

// RecordReconciliation appends an entry to the reconciliation log. The
// caller applies the work-progress rewrites; this only records them.
func (c *Checkpoint) RecordReconciliation(entry ReconciliationEntry) {
	c.Reconciliations = append(c.Reconciliations, entry)
}

// Invariant violations returned by Validate.
type InvariantViolation struct {
	Field   string
	Message string
}

func (v InvariantViolation) Error() string {
	return v.Field + ": " + v.Message
}

// Validate checks the checkpoint's structural invariants. A violation here
// indicates a programming error in a mutation function, not bad input.
func (c *Checkpoint) Validate() []InvariantViolation {
	var violations []InvariantViolation

	for _, id := range c.WorkProgress.CompletedItems {
		if containsSet(c.WorkProgress.OpenItems, id) {
			violations = append(violations, InvariantViolation{
				Field:   "work_progress",
				Message: "item " + id + " is both completed and open",
			})
		}
	}

	if ip := c.WorkProgress.InProgressItem; ip != "" && !containsSet(c.WorkProgress.OpenItems, ip) {
		violations = append(violations, InvariantViolation{
			Field:   "work_progress.in_progress_item",
			Message: "in-progress item " + ip + " is not open",
		})
	}

	if c.Verification.AttemptCount > c.Verification.MaxAttempts {
		violations = append(violations, InvariantViolation{
			Field:   "verification.attempt_count",
			Message: "attempt count exceeds max attempts",
		})
	}

	if c.ResourceTracking.Used < 0 {
		violations = append(violations, InvariantViolation{
			Field:   "resource_tracking.used",
			Message: "usage is negative",
		})
	}

	return violations
}
