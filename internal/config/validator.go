package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "complexity.simple_max")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidTrackerProviders returns the list of valid tracker providers
func ValidTrackerProviders() []string {
	return []string{"github", "memory"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Complexity.SimpleMax <= 0 {
		errors = append(errors, ValidationError{
			Field:   "complexity.simple_max",
			Value:   c.Complexity.SimpleMax,
			Message: "must be positive",
		})
	}
	if c.Complexity.MediumMax <= c.Complexity.SimpleMax {
		errors = append(errors, ValidationError{
			Field:   "complexity.medium_max",
			Value:   c.Complexity.MediumMax,
			Message: "must be greater than complexity.simple_max",
		})
	}
	if c.Complexity.FileWeight <= 0 {
		errors = append(errors, ValidationError{
			Field:   "complexity.file_weight",
			Value:   c.Complexity.FileWeight,
			Message: "must be positive",
		})
	}
	if c.Complexity.DependencyWeight < 0 {
		errors = append(errors, ValidationError{
			Field:   "complexity.dependency_weight",
			Value:   c.Complexity.DependencyWeight,
			Message: "must not be negative",
		})
	}

	if c.Resources.ProceedBelow <= 0 {
		errors = append(errors, ValidationError{
			Field:   "resources.proceed_below",
			Value:   c.Resources.ProceedBelow,
			Message: "must be positive",
		})
	}
	if c.Resources.ChunkBelow <= c.Resources.ProceedBelow {
		errors = append(errors, ValidationError{
			Field:   "resources.chunk_below",
			Value:   c.Resources.ChunkBelow,
			Message: "must be greater than resources.proceed_below",
		})
	}
	if c.Resources.AgentBudget < c.Resources.ChunkBelow {
		errors = append(errors, ValidationError{
			Field:   "resources.agent_budget",
			Value:   c.Resources.AgentBudget,
			Message: "must be at least resources.chunk_below",
		})
	}
	if c.Resources.ApproachingRatio <= 0 || c.Resources.ApproachingRatio >= 1 {
		errors = append(errors, ValidationError{
			Field:   "resources.approaching_ratio",
			Value:   c.Resources.ApproachingRatio,
			Message: "must be between 0 and 1 exclusive",
		})
	}
	if c.Resources.TestLocRatio < 0 {
		errors = append(errors, ValidationError{
			Field:   "resources.test_loc_ratio",
			Value:   c.Resources.TestLocRatio,
			Message: "must not be negative",
		})
	}

	if c.Verification.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "verification.max_attempts",
			Value:   c.Verification.MaxAttempts,
			Message: "must be at least 1",
		})
	}
	if c.Verification.CoverageTarget < 0 || c.Verification.CoverageTarget > 100 {
		errors = append(errors, ValidationError{
			Field:   "verification.coverage_target",
			Value:   c.Verification.CoverageTarget,
			Message: "must be a percentage between 0 and 100",
		})
	}
	if c.Verification.CoverageTolerance < 0 || c.Verification.CoverageTolerance > c.Verification.CoverageTarget {
		errors = append(errors, ValidationError{
			Field:   "verification.coverage_tolerance",
			Value:   c.Verification.CoverageTolerance,
			Message: "must be between 0 and verification.coverage_target",
		})
	}
	if c.Verification.FlakyWindow < 1 {
		errors = append(errors, ValidationError{
			Field:   "verification.flaky_window",
			Value:   c.Verification.FlakyWindow,
			Message: "must be at least 1",
		})
	}
	if c.Verification.FlakyMinFailures < 1 || c.Verification.FlakyMinFailures > c.Verification.FlakyWindow {
		errors = append(errors, ValidationError{
			Field:   "verification.flaky_min_failures",
			Value:   c.Verification.FlakyMinFailures,
			Message: "must be between 1 and verification.flaky_window",
		})
	}

	if !slices.Contains(ValidTrackerProviders(), c.Tracker.Provider) {
		errors = append(errors, ValidationError{
			Field:   "tracker.provider",
			Value:   c.Tracker.Provider,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTrackerProviders(), ", ")),
		})
	}

	if c.Optimizer.MinSampleSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "optimizer.min_sample_size",
			Value:   c.Optimizer.MinSampleSize,
			Message: "must be at least 1",
		})
	}
	if c.Optimizer.IQRMultiplier <= 0 {
		errors = append(errors, ValidationError{
			Field:   "optimizer.iqr_multiplier",
			Value:   c.Optimizer.IQRMultiplier,
			Message: "must be positive",
		})
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
