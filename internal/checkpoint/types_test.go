package checkpoint

import (
	"reflect"
	"testing"
)

func newTestCheckpoint() *Checkpoint {
	return New(ProjectIdentity{Name: "demo", RunID: "r"}, 3, 200_000)
}

func TestTrackUsageThresholdBoundary(t *testing.T) {
	tests := []struct {
		name string
		used int64
		want bool
	}{
		{"well under", 100_000, false},
		{"exactly at ratio", 150_000, false},
		{"just over ratio", 150_001, true},
		{"at budget", 200_000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := newTestCheckpoint()
			got := cp.TrackUsage(tt.used, 0.75)
			if got != tt.want {
				t.Errorf("TrackUsage(%d) = %v, want %v", tt.used, got, tt.want)
			}
			if got != cp.ResourceTracking.ThresholdExceeded {
				t.Error("return value disagrees with ThresholdExceeded")
			}
		})
	}
}

func TestTrackUsageIsMonotonic(t *testing.T) {
	cp := newTestCheckpoint()
	cp.TrackUsage(10_000, 0.75)
	cp.TrackUsage(-5_000, 0.75) // negative cost is clamped, never subtracts
	if cp.ResourceTracking.Used != 10_000 {
		t.Errorf("Used = %d, want 10000", cp.ResourceTracking.Used)
	}
	cp.TrackUsage(2_500, 0.75)
	if cp.ResourceTracking.Used != 12_500 {
		t.Errorf("Used = %d, want 12500", cp.ResourceTracking.Used)
	}
	if cp.ResourceTracking.LastUnitCost != 2_500 {
		t.Errorf("LastUnitCost = %d, want 2500", cp.ResourceTracking.LastUnitCost)
	}
}

func TestResetSessionUsage(t *testing.T) {
	cp := newTestCheckpoint()
	cp.TrackUsage(190_000, 0.75)
	cp.ResetSessionUsage(200_000)
	if cp.ResourceTracking.Used != 0 || cp.ResourceTracking.ThresholdExceeded {
		t.Errorf("usage not reset: %+v", cp.ResourceTracking)
	}
	if cp.ResourceTracking.Budget != 200_000 {
		t.Errorf("Budget = %d, want 200000", cp.ResourceTracking.Budget)
	}
}

func TestItemSetMutationsAreIdempotent(t *testing.T) {
	cp := newTestCheckpoint()
	cp.AddOpenItem("2")
	cp.AddOpenItem("1")
	cp.AddOpenItem("2")
	if cp.WorkProgress.TotalItems != 2 {
		t.Errorf("TotalItems = %d, want 2", cp.WorkProgress.TotalItems)
	}
	if !reflect.DeepEqual(cp.WorkProgress.OpenItems, []string{"1", "2"}) {
		t.Errorf("OpenItems = %v, want sorted [1 2]", cp.WorkProgress.OpenItems)
	}

	cp.CompleteItem("1")
	cp.CompleteItem("1")
	if !reflect.DeepEqual(cp.WorkProgress.CompletedItems, []string{"1"}) {
		t.Errorf("CompletedItems = %v, want [1]", cp.WorkProgress.CompletedItems)
	}
	// Re-adding a completed item must not resurrect it as open.
	cp.AddOpenItem("1")
	if !reflect.DeepEqual(cp.WorkProgress.OpenItems, []string{"2"}) {
		t.Errorf("OpenItems = %v, want [2]", cp.WorkProgress.OpenItems)
	}
	if cp.WorkProgress.TotalItems != 2 {
		t.Errorf("TotalItems = %d, want 2 after replay", cp.WorkProgress.TotalItems)
	}
}

func TestCompleteItemClearsInProgress(t *testing.T) {
	cp := newTestCheckpoint()
	cp.AddOpenItem("1")
	cp.SetInProgress("1")
	cp.CompleteItem("1")
	if cp.WorkProgress.InProgressItem != "" {
		t.Errorf("InProgressItem = %q, want empty", cp.WorkProgress.InProgressItem)
	}
}

func TestReopenAndRemove(t *testing.T) {
	cp := newTestCheckpoint()
	cp.AddOpenItem("1")
	cp.AddOpenItem("2")
	cp.CompleteItem("1")

	cp.ReopenItem("1")
	if !containsSet(cp.WorkProgress.OpenItems, "1") || containsSet(cp.WorkProgress.CompletedItems, "1") {
		t.Errorf("reopen failed: %+v", cp.WorkProgress)
	}
	if cp.WorkProgress.TotalItems != 2 {
		t.Errorf("TotalItems = %d, want 2 after reopen", cp.WorkProgress.TotalItems)
	}

	cp.SetInProgress("2")
	cp.RemoveOpenItem("2")
	if containsSet(cp.WorkProgress.OpenItems, "2") {
		t.Error("removed item still open")
	}
	if cp.WorkProgress.TotalItems != 1 {
		t.Errorf("TotalItems = %d, want 1 after removal", cp.WorkProgress.TotalItems)
	}
	if cp.WorkProgress.InProgressItem != "" {
		t.Error("removal did not clear in-progress pointer")
	}
}

func TestRecordVerificationFailureCapsAttempts(t *testing.T) {
	cp := newTestCheckpoint()
	for i := 0; i < 5; i++ {
		cp.RecordVerificationFailure("tests failed", []string{"TestX"}, []string{"3"})
	}
	if cp.Verification.AttemptCount != 3 {
		t.Errorf("AttemptCount = %d, want capped at 3", cp.Verification.AttemptCount)
	}
	if len(cp.Verification.FailureHistory) != 5 {
		t.Errorf("FailureHistory length = %d, want 5", len(cp.Verification.FailureHistory))
	}
	if !reflect.DeepEqual(cp.Verification.FailingItems, []string{"3"}) {
		t.Errorf("FailingItems = %v, want [3]", cp.Verification.FailingItems)
	}
}

func TestResetVerificationKeepsHistory(t *testing.T) {
	cp := newTestCheckpoint()
	cp.RecordVerificationFailure("tests failed", []string{"TestX"}, []string{"3"})
	cp.QuarantineTest("TestFlaky")
	cp.AddDisclosedGap("coverage 76% against an 80% target")

	cp.ResetVerification()
	if cp.Verification.AttemptCount != 0 || cp.Verification.FailingItems != nil {
		t.Errorf("retry loop not cleared: %+v", cp.Verification)
	}
	if len(cp.Verification.FailureHistory) != 1 {
		t.Error("failure history must survive a reset")
	}
	if len(cp.Verification.QuarantinedTests) != 1 || len(cp.Verification.DisclosedGaps) != 1 {
		t.Error("quarantine and disclosed gaps must survive a reset")
	}
}

func TestItemMetaCounters(t *testing.T) {
	cp := newTestCheckpoint()
	cp.UpsertItem("1", ItemMeta{Title: "auth", Category: "medium", EstimatedResource: 30_000})

	cp.RecordItemCost("1", 12_000)
	cp.RecordItemCost("1", 8_000)
	cp.MarkItemSplit("1")

	meta, ok := cp.Item("1")
	if !ok {
		t.Fatal("item meta missing")
	}
	if meta.ActualResource != 20_000 {
		t.Errorf("ActualResource = %d, want 20000", meta.ActualResource)
	}
	if meta.Commits != 2 {
		t.Errorf("Commits = %d, want 2", meta.Commits)
	}
	if !meta.Split {
		t.Error("Split not recorded")
	}

	// Counters for unknown items are dropped, not invented.
	cp.RecordItemCost("99", 1_000)
	if _, ok := cp.Item("99"); ok {
		t.Error("cost recording created a phantom item")
	}
}

func TestValidateCatchesOverlap(t *testing.T) {
	cp := newTestCheckpoint()
	cp.WorkProgress.OpenItems = []string{"1"}
	cp.WorkProgress.CompletedItems = []string{"1"}
	if len(cp.Validate()) == 0 {
		t.Error("overlapping open/completed sets passed validation")
	}

	cp = newTestCheckpoint()
	cp.WorkProgress.InProgressItem = "9"
	if len(cp.Validate()) == 0 {
		t.Error("dangling in-progress item passed validation")
	}
}
