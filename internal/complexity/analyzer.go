// Package complexity scores work items from their estimated shape and
// decides whether they are schedulable directly or must be decomposed
// first.
//
// Score formula: files carry the heaviest weight, LOC is a linear term,
// and each dependency adds a fixed penalty. The category boundaries are
// the configuration values the threshold optimizer is permitted to
// adjust.
package complexity

import (
	"context"
	"fmt"
	"math"

	"github.com/forgeflow/forgeflow/internal/config"
	"github.com/forgeflow/forgeflow/internal/errors"
)

// Category classifies a work item's complexity.
type Category string

const (
	// Simple items are scheduled directly.
	Simple Category = "simple"
	// Medium items are scheduled directly, possibly chunked.
	Medium Category = "medium"
	// Complex items must be decomposed before scheduling.
	Complex Category = "complex"
)

// Estimate is the shape estimate for one work item.
type Estimate struct {
	Title           string   `json:"title"`
	Files           int      `json:"files"`
	LOC             int      `json:"loc"`
	DependencyCount int      `json:"dependency_count"`
	// DependsOn carries the partial order between sibling children of a
	// decomposition: titles of children that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`
}

// Assessment is the analyzer's output for one item.
type Assessment struct {
	Score             int
	Category          Category
	EstimatedResource int64
	// DecompositionAdvice is populated for Complex items: child estimates
	// that each score below the Complex threshold, annotated with their
	// partial-order dependencies.
	DecompositionAdvice []Estimate
}

// Splitter produces a decomposition of an over-threshold estimate. In
// production this delegates to the agent's decompose capability; the
// analyzer owns validating the result, not inventing it.
type Splitter interface {
	Split(ctx context.Context, est Estimate, reason string) ([]Estimate, error)
}

// Analyzer scores and classifies work item estimates.
type Analyzer struct {
	complexity config.ComplexityConfig
	resources  config.ResourceConfig
	splitter   Splitter
}

// NewAnalyzer creates an Analyzer. splitter may be nil when callers only
// score and classify; Analyze on a Complex item then fails rather than
// silently skipping decomposition.
func NewAnalyzer(complexityCfg config.ComplexityConfig, resourceCfg config.ResourceConfig, splitter Splitter) *Analyzer {
	return &Analyzer{
		complexity: complexityCfg,
		resources:  resourceCfg,
		splitter:   splitter,
	}
}

// Score computes the complexity score:
// files*fileWeight + loc + dependencies*dependencyWeight.
func (a *Analyzer) Score(est Estimate) int {
	return est.Files*a.complexity.FileWeight +
		est.LOC +
		est.DependencyCount*a.complexity.DependencyWeight
}

// Classify maps a score onto a category. The mapping is a total partition:
// every non-negative score lands in exactly one category, with no gaps and
// no overlaps at the boundaries.
func (a *Analyzer) Classify(score int) Category {
	switch {
	case score <= a.complexity.SimpleMax:
		return Simple
	case score <= a.complexity.MediumMax:
		return Medium
	default:
		return Complex
	}
}

// EstimateResource computes the context-budget estimate for an item:
// a base cost for reading shared context, per-file read costs, per-line
// implementation and test costs (test LOC assumed at the configured ratio
// of implementation LOC), and a fixed review cost.
func (a *Analyzer) EstimateResource(est Estimate) int64 {
	testLOC := int64(math.Round(float64(est.LOC) * a.resources.TestLocRatio))
	return a.resources.BaseCost +
		int64(est.Files)*a.resources.FileReadCost +
		int64(est.LOC)*a.resources.ImplementCostPerLine +
		testLOC*a.resources.TestCostPerLine +
		a.resources.ReviewCost
}

// Analyze scores and classifies an estimate. For Complex items it requests
// a decomposition and validates the result: every child must score below
// the Complex threshold. An invalid split is re-requested once; a second
// invalid split is fatal, since scheduling a complex item whole would
// blow the per-invocation resource budget.
func (a *Analyzer) Analyze(ctx context.Context, est Estimate) (Assessment, error) {
	score := a.Score(est)
	assessment := Assessment{
		Score:             score,
		Category:          a.Classify(score),
		EstimatedResource: a.EstimateResource(est),
	}

	if assessment.Category != Complex {
		return assessment, nil
	}

	if a.splitter == nil {
		return assessment, errors.Wrapf(errors.ErrDecompositionFailed,
			"item %q is complex (score %d) and no splitter is available", est.Title, score)
	}

	children, err := a.splitter.Split(ctx, est, fmt.Sprintf("score %d exceeds complex threshold %d", score, a.complexity.MediumMax))
	if err != nil {
		return assessment, errors.Wrapf(err, "decomposition of %q failed", est.Title)
	}

	if bad := a.invalidChildren(children); bad != "" {
		children, err = a.splitter.Split(ctx, est, fmt.Sprintf("previous split invalid: %s", bad))
		if err != nil {
			return assessment, errors.Wrapf(err, "decomposition retry of %q failed", est.Title)
		}
		if bad := a.invalidChildren(children); bad != "" {
			return assessment, errors.Wrapf(errors.ErrDecompositionFailed,
				"item %q: %s after retry", est.Title, bad)
		}
	}

	assessment.DecompositionAdvice = children
	return assessment, nil
}

// invalidChildren validates a proposed split. Returns an empty string when
// valid, otherwise a description of the first violation.
func (a *Analyzer) invalidChildren(children []Estimate) string {
	if len(children) < 2 {
		return "split produced fewer than two children"
	}

	titles := make(map[string]bool, len(children))
	for _, c := range children {
		if c.Title == "" {
			return "split produced a child with no title"
		}
		titles[c.Title] = true
	}

	for _, c := range children {
		if score := a.Score(c); a.Classify(score) == Complex {
			return fmt.Sprintf("child %q still scores %d (complex)", c.Title, score)
		}
		for _, dep := range c.DependsOn {
			if !titles[dep] {
				return fmt.Sprintf("child %q depends on unknown sibling %q", c.Title, dep)
			}
		}
	}

	return ""
}
