package orchestrator

import (
	"testing"

	"github.com/forgeflow/forgeflow/internal/config"
)

func testLadder() *BudgetLadder {
	return NewBudgetLadder(config.Default().Resources)
}

func TestClassifyZoneBoundaries(t *testing.T) {
	tests := []struct {
		estimate int64
		want     BudgetDecision
	}{
		{0, Proceed},
		{99_999, Proceed},
		{100_000, ProceedChunked},
		{150_000, ProceedChunked},
		{150_001, Refuse},
		{400_000, Refuse},
	}
	l := testLadder()
	for _, tt := range tests {
		if got := l.Classify(tt.estimate); got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.estimate, got, tt.want)
		}
	}
}

func TestChunkCount(t *testing.T) {
	tests := []struct {
		estimate int64
		want     int
	}{
		{100_000, 2},
		{150_000, 2},
		{200_001, 3},
		{900_000, 3}, // clamped
	}
	l := testLadder()
	for _, tt := range tests {
		if got := l.ChunkCount(tt.estimate); got != tt.want {
			t.Errorf("ChunkCount(%d) = %d, want %d", tt.estimate, got, tt.want)
		}
	}
}

func TestApproachingLimitExactThreshold(t *testing.T) {
	l := testLadder()
	tests := []struct {
		name   string
		used   int64
		budget int64
		want   bool
	}{
		{"under", 100_000, 200_000, false},
		{"exactly at ratio", 150_000, 200_000, false},
		{"one over", 150_001, 200_000, true},
		{"zero budget never approaches", 1_000_000, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.ApproachingLimit(tt.used, tt.budget); got != tt.want {
				t.Errorf("ApproachingLimit(%d, %d) = %v, want %v", tt.used, tt.budget, got, tt.want)
			}
		})
	}
}
