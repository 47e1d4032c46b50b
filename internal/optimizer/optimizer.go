// Package optimizer is the offline statistical analysis over completed
// project records. It recommends threshold adjustments with a graded
// confidence; it has no write path to live configuration.
package optimizer

import (
	"fmt"
	"math"

	"github.com/forgeflow/forgeflow/internal/complexity"
	"github.com/forgeflow/forgeflow/internal/config"
	"github.com/forgeflow/forgeflow/internal/history"
	"github.com/forgeflow/forgeflow/internal/logging"
)

// Optimizer analyzes historical records against the current thresholds.
type Optimizer struct {
	complexity config.ComplexityConfig
	resources  config.ResourceConfig
	cfg        config.OptimizerConfig
	logger     *logging.Logger
}

// New creates an Optimizer bound to the current configuration values, the
// ones its recommendations are deltas against.
func New(cfg *config.Config, logger *logging.Logger) *Optimizer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Optimizer{
		complexity: cfg.Complexity,
		resources:  cfg.Resources,
		cfg:        cfg.Optimizer,
		logger:     logger,
	}
}

// Analyze evaluates the history and produces recommendations. Below the
// minimum sample size it returns the insufficient-sample status with an
// empty list.
func (o *Optimizer) Analyze(records []history.ProjectRecord) Analysis {
	analysis := Analysis{
		Status:        StatusOK,
		SampleSize:    len(records),
		MinSampleSize: o.cfg.MinSampleSize,
	}

	if len(records) < o.cfg.MinSampleSize {
		analysis.Status = StatusInsufficientSample
		o.logger.Info("optimizer gated",
			"sample_size", len(records),
			"min_sample_size", o.cfg.MinSampleSize,
		)
		return analysis
	}

	if rec, ok := o.evaluateSimpleBoundary(records); ok {
		analysis.Recommendations = append(analysis.Recommendations, rec)
	}
	if rec, ok := o.evaluateMediumBoundary(records); ok {
		analysis.Recommendations = append(analysis.Recommendations, rec)
	}
	if rec, ok := o.evaluateOverflow(records); ok {
		analysis.Recommendations = append(analysis.Recommendations, rec)
	}

	return analysis
}

// rateMetric collects one per-project rate: matched/eligible over the
// project's items. Projects with no eligible items contribute no sample.
func rateMetric(records []history.ProjectRecord, eligible, matched func(history.ItemRecord) bool) []float64 {
	var rates []float64
	for _, rec := range records {
		n, hits := 0, 0
		for _, item := range rec.Items {
			if !eligible(item) {
				continue
			}
			n++
			if matched(item) {
				hits++
			}
		}
		if n > 0 {
			rates = append(rates, float64(hits)/float64(n))
		}
	}
	return rates
}

// confidence applies the fixed assignment rules over a filtered metric.
func confidence(n int, cv float64) Confidence {
	switch {
	case n >= 30 && cv < 0.15:
		return ConfidenceHigh
	case n >= 10 && cv < 0.25:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// evaluateSimpleBoundary recommends a lower Simple upper bound when the
// observed split rate for items classified Simple exceeds the target:
// Simple items should essentially never need a split.
func (o *Optimizer) evaluateSimpleBoundary(records []history.ProjectRecord) (Recommendation, bool) {
	rates := removeOutliers(rateMetric(records,
		func(it history.ItemRecord) bool { return it.Category == string(complexity.Simple) },
		func(it history.ItemRecord) bool { return it.Split },
	), o.cfg.IQRMultiplier)

	rate := mean(rates)
	if len(rates) == 0 || rate <= o.cfg.SimpleSplitRateTarget {
		return Recommendation{}, false
	}

	old := float64(o.complexity.SimpleMax)
	return Recommendation{
		ParameterName: "complexity.simple_max",
		OldValue:      old,
		NewValue:      math.Round(old * 0.8),
		Confidence:    confidence(len(rates), coefficientOfVariation(rates)),
		SampleSize:    len(rates),
		Reasoning: fmt.Sprintf(
			"%.1f%% of items classified Simple required a split (target %.1f%%); the Simple upper bound is admitting items that are not simple",
			rate*100, o.cfg.SimpleSplitRateTarget*100),
	}, true
}

// evaluateMediumBoundary recommends a lower Medium upper bound when too
// many Medium items needed three or more checkpointed sub-units.
func (o *Optimizer) evaluateMediumBoundary(records []history.ProjectRecord) (Recommendation, bool) {
	rates := removeOutliers(rateMetric(records,
		func(it history.ItemRecord) bool { return it.Category == string(complexity.Medium) },
		func(it history.ItemRecord) bool { return it.Commits >= 3 },
	), o.cfg.IQRMultiplier)

	rate := mean(rates)
	if len(rates) == 0 || rate <= o.cfg.MediumCommitRateTarget {
		return Recommendation{}, false
	}

	old := float64(o.complexity.MediumMax)
	return Recommendation{
		ParameterName: "complexity.medium_max",
		OldValue:      old,
		NewValue:      math.Round(old * 0.8),
		Confidence:    confidence(len(rates), coefficientOfVariation(rates)),
		SampleSize:    len(rates),
		Reasoning: fmt.Sprintf(
			"%.1f%% of Medium items needed 3+ commits (target %.1f%%); items near the Medium upper bound behave like Complex ones",
			rate*100, o.cfg.MediumCommitRateTarget*100),
	}, true
}

// evaluateOverflow recommends a smaller direct-schedule zone when any item
// actually cost more than the chunked ceiling. The overflow target is
// always zero.
func (o *Optimizer) evaluateOverflow(records []history.ProjectRecord) (Recommendation, bool) {
	rates := removeOutliers(rateMetric(records,
		func(it history.ItemRecord) bool { return it.ActualResource > 0 },
		func(it history.ItemRecord) bool { return it.ActualResource > o.resources.ChunkBelow },
	), o.cfg.IQRMultiplier)

	rate := mean(rates)
	if len(rates) == 0 || rate == 0 {
		return Recommendation{}, false
	}

	old := float64(o.resources.ProceedBelow)
	return Recommendation{
		ParameterName: "resources.proceed_below",
		OldValue:      old,
		NewValue:      math.Round(old * 0.8),
		Confidence:    confidence(len(rates), coefficientOfVariation(rates)),
		SampleSize:    len(rates),
		Reasoning: fmt.Sprintf(
			"%.1f%% of items exceeded the chunked ceiling in actual cost (target 0%%); estimates admitted to the direct zone are running over",
			rate*100),
	}, true
}
