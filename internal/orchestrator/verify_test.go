package orchestrator

import (
	"reflect"
	"strings"
	"testing"

	"github.com/forgeflow/forgeflow/internal/checkpoint"
	"github.com/forgeflow/forgeflow/internal/config"
)

func testVerifier() *Verifier {
	return NewVerifier(config.Default().Verification)
}

func failures(tests ...[]string) []checkpoint.VerificationFailure {
	var out []checkpoint.VerificationFailure
	for _, ts := range tests {
		out = append(out, checkpoint.VerificationFailure{Message: "tests failed", Tests: ts})
	}
	return out
}

func TestEvaluateCleanPass(t *testing.T) {
	a := testVerifier().Evaluate(Outcome{Coverage: 92}, nil, nil)
	if !a.Pass {
		t.Fatalf("clean outcome failed: %+v", a)
	}
	if len(a.Quarantined) != 0 || len(a.DisclosedGaps) != 0 {
		t.Errorf("clean pass recorded policy actions: %+v", a)
	}
}

func TestEvaluateQuarantinesRepeatedlyFlakyTest(t *testing.T) {
	// TestFlaky failed on the previous attempt and fails again now while
	// nothing else fails: it qualifies for quarantine and the gate passes.
	hist := failures([]string{"TestFlaky"})
	a := testVerifier().Evaluate(Outcome{
		FailingTests: []string{"TestFlaky"},
		Coverage:     85,
	}, hist, nil)

	if !a.Pass {
		t.Fatalf("expected pass with quarantine, got %+v", a)
	}
	if !reflect.DeepEqual(a.Quarantined, []string{"TestFlaky"}) {
		t.Errorf("Quarantined = %v, want [TestFlaky]", a.Quarantined)
	}
}

func TestEvaluateNoQuarantineWithNonFlakyFailures(t *testing.T) {
	// TestFlaky would qualify, but TestNew fails for the first time. Mixed
	// failures mean real breakage; nothing is quarantined.
	hist := failures([]string{"TestFlaky"})
	a := testVerifier().Evaluate(Outcome{
		FailingTests: []string{"TestFlaky", "TestNew"},
		FailingItems: []string{"3"},
		Coverage:     85,
	}, hist, nil)

	if a.Pass {
		t.Fatal("mixed failures passed the gate")
	}
	if len(a.Quarantined) != 0 {
		t.Errorf("Quarantined = %v, want none", a.Quarantined)
	}
	if !reflect.DeepEqual(a.FailingTests, []string{"TestFlaky", "TestNew"}) {
		t.Errorf("FailingTests = %v", a.FailingTests)
	}
	if !reflect.DeepEqual(a.FailingItems, []string{"3"}) {
		t.Errorf("FailingItems = %v", a.FailingItems)
	}
}

func TestEvaluateFirstFailureIsNotFlaky(t *testing.T) {
	// No history: one failure of a test is not enough for quarantine.
	a := testVerifier().Evaluate(Outcome{
		FailingTests: []string{"TestOnce"},
		Coverage:     85,
	}, nil, nil)
	if a.Pass || len(a.Quarantined) != 0 {
		t.Errorf("single failure treated as flaky: %+v", a)
	}
}

func TestEvaluateIgnoresAlreadyQuarantined(t *testing.T) {
	a := testVerifier().Evaluate(Outcome{
		FailingTests: []string{"TestFlaky"},
		Coverage:     85,
	}, nil, []string{"TestFlaky"})
	if !a.Pass {
		t.Fatalf("quarantined test still gates: %+v", a)
	}
}

func TestEvaluateCoverageToleranceBand(t *testing.T) {
	tests := []struct {
		name     string
		coverage float64
		wantPass bool
		wantGap  bool
	}{
		{"above target", 85, true, false},
		{"at target", 80, true, false},
		{"within tolerance", 76, true, true},
		{"at tolerance edge", 75, true, true},
		{"below tolerance", 74.9, false, false},
		{"far below", 40, false, false},
		{"unreported", -1, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testVerifier().Evaluate(Outcome{Coverage: tt.coverage}, nil, nil)
			if a.Pass != tt.wantPass {
				t.Errorf("Pass = %v, want %v", a.Pass, tt.wantPass)
			}
			if (len(a.DisclosedGaps) > 0) != tt.wantGap {
				t.Errorf("DisclosedGaps = %v, wantGap %v", a.DisclosedGaps, tt.wantGap)
			}
		})
	}
}

func TestEvaluateReasonNamesEveryCause(t *testing.T) {
	a := testVerifier().Evaluate(Outcome{
		FailingTests: []string{"TestA", "TestB"},
		Coverage:     60,
		Summary:      "integration suite red",
	}, nil, nil)
	if a.Pass {
		t.Fatal("expected failure")
	}
	for _, want := range []string{"2 failing tests", "coverage 60.0%", "integration suite red"} {
		if !strings.Contains(a.Reason, want) {
			t.Errorf("Reason %q missing %q", a.Reason, want)
		}
	}
}
