package complexity

import (
	"context"
	"fmt"
	"testing"

	"github.com/forgeflow/forgeflow/internal/config"
	"github.com/forgeflow/forgeflow/internal/errors"
)

func testAnalyzer(splitter Splitter) *Analyzer {
	cfg := config.Default()
	return NewAnalyzer(cfg.Complexity, cfg.Resources, splitter)
}

func TestScore(t *testing.T) {
	a := testAnalyzer(nil)

	tests := []struct {
		name string
		est  Estimate
		want int
	}{
		{
			name: "empty estimate scores zero",
			est:  Estimate{},
			want: 0,
		},
		{
			name: "single file small item",
			est:  Estimate{Files: 1, LOC: 100},
			want: 200,
		},
		{
			name: "files dominate",
			est:  Estimate{Files: 5, LOC: 100},
			want: 600,
		},
		{
			name: "dependencies add fixed penalty",
			est:  Estimate{Files: 2, LOC: 300, DependencyCount: 4},
			want: 700,
		},
		{
			name: "large item",
			est:  Estimate{Files: 10, LOC: 600, DependencyCount: 4},
			want: 1800,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Score(tt.est); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	a := testAnalyzer(nil)

	tests := []struct {
		score int
		want  Category
	}{
		{0, Simple},
		{499, Simple},
		{500, Simple},
		{501, Medium},
		{900, Medium},
		{1500, Medium},
		{1501, Complex},
		{1800, Complex},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("score_%d", tt.score), func(t *testing.T) {
			if got := a.Classify(tt.score); got != tt.want {
				t.Errorf("Classify(%d) = %s, want %s", tt.score, got, tt.want)
			}
		})
	}
}

// Every non-negative score must land in exactly one category.
func TestClassifyTotalPartition(t *testing.T) {
	a := testAnalyzer(nil)
	for score := 0; score <= 2000; score++ {
		got := a.Classify(score)
		if got != Simple && got != Medium && got != Complex {
			t.Fatalf("Classify(%d) produced unknown category %q", score, got)
		}
	}
}

func TestEstimateResource(t *testing.T) {
	a := testAnalyzer(nil)

	// base 5000 + 2 files * 2000 + 300 loc * 10 + 450 test loc * 10 + review 8000
	est := Estimate{Files: 2, LOC: 300, DependencyCount: 4}
	want := int64(5000 + 4000 + 3000 + 4500 + 8000)
	if got := a.EstimateResource(est); got != want {
		t.Errorf("EstimateResource() = %d, want %d", got, want)
	}
}

// splitFunc adapts a function to the Splitter interface.
type splitFunc func(ctx context.Context, est Estimate, reason string) ([]Estimate, error)

func (f splitFunc) Split(ctx context.Context, est Estimate, reason string) ([]Estimate, error) {
	return f(ctx, est, reason)
}

func TestAnalyzeSimpleAndMediumSkipDecomposition(t *testing.T) {
	called := false
	a := testAnalyzer(splitFunc(func(ctx context.Context, est Estimate, reason string) ([]Estimate, error) {
		called = true
		return nil, nil
	}))

	for _, est := range []Estimate{
		{Title: "small", Files: 1, LOC: 100},
		{Title: "medium", Files: 4, LOC: 400, DependencyCount: 2},
	} {
		got, err := a.Analyze(context.Background(), est)
		if err != nil {
			t.Fatalf("Analyze(%q) returned error: %v", est.Title, err)
		}
		if got.DecompositionAdvice != nil {
			t.Errorf("Analyze(%q) produced decomposition advice for a non-complex item", est.Title)
		}
	}
	if called {
		t.Error("splitter invoked for non-complex items")
	}
}

func TestAnalyzeComplexDecomposes(t *testing.T) {
	children := []Estimate{
		{Title: "part-a", Files: 3, LOC: 300},
		{Title: "part-b", Files: 3, LOC: 300, DependsOn: []string{"part-a"}},
	}
	a := testAnalyzer(splitFunc(func(ctx context.Context, est Estimate, reason string) ([]Estimate, error) {
		return children, nil
	}))

	got, err := a.Analyze(context.Background(), Estimate{Title: "big", Files: 10, LOC: 600, DependencyCount: 4})
	if err != nil {
		t.Fatalf("Analyze() returned error: %v", err)
	}
	if got.Category != Complex {
		t.Errorf("Category = %s, want %s", got.Category, Complex)
	}
	if len(got.DecompositionAdvice) != 2 {
		t.Fatalf("DecompositionAdvice has %d children, want 2", len(got.DecompositionAdvice))
	}
	if got.DecompositionAdvice[1].DependsOn[0] != "part-a" {
		t.Errorf("child dependency not preserved: %v", got.DecompositionAdvice[1].DependsOn)
	}
}

func TestAnalyzeRetriesInvalidSplitOnce(t *testing.T) {
	calls := 0
	a := testAnalyzer(splitFunc(func(ctx context.Context, est Estimate, reason string) ([]Estimate, error) {
		calls++
		if calls == 1 {
			// First split leaves a child over the complex threshold.
			return []Estimate{
				{Title: "still-big", Files: 12, LOC: 600},
				{Title: "ok", Files: 1, LOC: 100},
			}, nil
		}
		return []Estimate{
			{Title: "half-a", Files: 5, LOC: 300},
			{Title: "half-b", Files: 5, LOC: 300},
		}, nil
	}))

	got, err := a.Analyze(context.Background(), Estimate{Title: "big", Files: 20, LOC: 1000})
	if err != nil {
		t.Fatalf("Analyze() returned error: %v", err)
	}
	if calls != 2 {
		t.Errorf("splitter called %d times, want 2", calls)
	}
	if len(got.DecompositionAdvice) != 2 {
		t.Errorf("DecompositionAdvice has %d children, want 2", len(got.DecompositionAdvice))
	}
}

func TestAnalyzeFailsAfterSecondInvalidSplit(t *testing.T) {
	calls := 0
	a := testAnalyzer(splitFunc(func(ctx context.Context, est Estimate, reason string) ([]Estimate, error) {
		calls++
		return []Estimate{{Title: "only-one", Files: 1, LOC: 100}}, nil
	}))

	_, err := a.Analyze(context.Background(), Estimate{Title: "big", Files: 20, LOC: 1000})
	if !errors.Is(err, errors.ErrDecompositionFailed) {
		t.Fatalf("Analyze() error = %v, want ErrDecompositionFailed", err)
	}
	if calls != 2 {
		t.Errorf("splitter called %d times, want 2", calls)
	}
}

func TestAnalyzeRejectsUnknownSiblingDependency(t *testing.T) {
	a := testAnalyzer(splitFunc(func(ctx context.Context, est Estimate, reason string) ([]Estimate, error) {
		return []Estimate{
			{Title: "a", Files: 1, LOC: 100},
			{Title: "b", Files: 1, LOC: 100, DependsOn: []string{"missing"}},
		}, nil
	}))

	_, err := a.Analyze(context.Background(), Estimate{Title: "big", Files: 20, LOC: 1000})
	if !errors.Is(err, errors.ErrDecompositionFailed) {
		t.Fatalf("Analyze() error = %v, want ErrDecompositionFailed", err)
	}
}

func TestAnalyzeComplexWithoutSplitter(t *testing.T) {
	a := testAnalyzer(nil)
	_, err := a.Analyze(context.Background(), Estimate{Title: "big", Files: 20, LOC: 1000})
	if !errors.Is(err, errors.ErrDecompositionFailed) {
		t.Fatalf("Analyze() error = %v, want ErrDecompositionFailed", err)
	}
}
