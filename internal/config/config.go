package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete forgeflow configuration.
// Every threshold the optimizer is permitted to tune lives here; the
// orchestration core never hardcodes one.
type Config struct {
	Project      ProjectConfig      `mapstructure:"project"`
	Complexity   ComplexityConfig   `mapstructure:"complexity"`
	Resources    ResourceConfig     `mapstructure:"resources"`
	Verification VerificationConfig `mapstructure:"verification"`
	Phases       PhaseConfig        `mapstructure:"phases"`
	Tracker      TrackerConfig      `mapstructure:"tracker"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Optimizer    OptimizerConfig    `mapstructure:"optimizer"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Paths        PathsConfig        `mapstructure:"paths"`
}

// ProjectConfig holds project-level settings.
type ProjectConfig struct {
	// Name identifies the project; defaults to the working directory name.
	Name string `mapstructure:"name"`
	// DryRun routes all tracker and agent calls to in-memory fakes.
	DryRun bool `mapstructure:"dry_run"`
}

// ComplexityConfig controls work item scoring and classification.
// The category boundaries are exactly the values the optimizer may
// recommend adjusting.
type ComplexityConfig struct {
	// FileWeight is the per-file score contribution. File count dominates
	// because cross-file coordination is the primary implementation cost.
	FileWeight int `mapstructure:"file_weight"`
	// DependencyWeight is the per-dependency score penalty.
	DependencyWeight int `mapstructure:"dependency_weight"`
	// SimpleMax is the inclusive upper score bound for Simple items.
	SimpleMax int `mapstructure:"simple_max"`
	// MediumMax is the inclusive upper score bound for Medium items.
	// Scores above it classify as Complex.
	MediumMax int `mapstructure:"medium_max"`
}

// ResourceConfig controls the context-budget model and the scheduling ladder.
type ResourceConfig struct {
	// AgentBudget is the per-agent context budget ceiling in tokens.
	AgentBudget int64 `mapstructure:"agent_budget"`
	// ProceedBelow is the estimate below which an item is scheduled directly.
	ProceedBelow int64 `mapstructure:"proceed_below"`
	// ChunkBelow is the estimate below which an item is scheduled in 2-3
	// checkpointed sub-units. Estimates above it are refused and routed
	// to mandatory decomposition.
	ChunkBelow int64 `mapstructure:"chunk_below"`
	// ApproachingRatio is the fraction of AgentBudget at which mid-item
	// work is stopped and the remainder split into a dependent item.
	ApproachingRatio float64 `mapstructure:"approaching_ratio"`
	// BaseCost is the fixed cost of reading shared context before any work.
	BaseCost int64 `mapstructure:"base_cost"`
	// FileReadCost is the per-file read cost.
	FileReadCost int64 `mapstructure:"file_read_cost"`
	// ImplementCostPerLine is the per-LOC implementation cost.
	ImplementCostPerLine int64 `mapstructure:"implement_cost_per_line"`
	// TestCostPerLine is the per-test-LOC cost. Test LOC is assumed to be
	// TestLocRatio times implementation LOC.
	TestCostPerLine int64 `mapstructure:"test_cost_per_line"`
	// TestLocRatio is the assumed test-to-implementation LOC ratio.
	TestLocRatio float64 `mapstructure:"test_loc_ratio"`
	// ReviewCost is the fixed per-item review cost.
	ReviewCost int64 `mapstructure:"review_cost"`
}

// VerificationConfig controls the bounded verification retry loop.
type VerificationConfig struct {
	// MaxAttempts is the attempt count at which a further failure
	// transitions the run to divergence.
	MaxAttempts int `mapstructure:"max_attempts"`
	// CoverageTarget is the required coverage percentage.
	CoverageTarget float64 `mapstructure:"coverage_target"`
	// CoverageTolerance is the band below CoverageTarget within which a
	// shortfall is downgraded to a disclosed gap instead of a failure.
	CoverageTolerance float64 `mapstructure:"coverage_tolerance"`
	// FlakyWindow is how many recent attempts are inspected when deciding
	// whether a failing test is transient.
	FlakyWindow int `mapstructure:"flaky_window"`
	// FlakyMinFailures is the minimum failures of the same test within the
	// window for it to qualify for quarantine.
	FlakyMinFailures int `mapstructure:"flaky_min_failures"`
}

// PhaseConfig controls wall-clock budgets per phase, in minutes.
// Exceeding a budget raises an approval gate, never an abort.
type PhaseConfig struct {
	InfraBudgetMinutes          int `mapstructure:"infra_budget_minutes"`
	DefinitionBudgetMinutes     int `mapstructure:"definition_budget_minutes"`
	DecompositionBudgetMinutes  int `mapstructure:"decomposition_budget_minutes"`
	ArchitectureBudgetMinutes   int `mapstructure:"architecture_budget_minutes"`
	ImplementationBudgetMinutes int `mapstructure:"implementation_budget_minutes"`
	QABudgetMinutes             int `mapstructure:"qa_budget_minutes"`
	VerificationBudgetMinutes   int `mapstructure:"verification_budget_minutes"`
	LearningBudgetMinutes       int `mapstructure:"learning_budget_minutes"`
}

// TrackerConfig controls the work item tracker backend.
type TrackerConfig struct {
	// Provider selects the tracker backend. Options: "github", "memory".
	Provider string `mapstructure:"provider"`
	// Labels are applied to every item forgeflow creates.
	Labels []string `mapstructure:"labels"`
}

// AgentConfig controls the external agent capability runner.
type AgentConfig struct {
	// Command is the agent binary to invoke for capabilities.
	Command string `mapstructure:"command"`
	// Args are prepended to every capability invocation.
	Args []string `mapstructure:"args"`
	// TimeoutMinutes bounds a single capability invocation.
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
}

// OptimizerConfig controls threshold analysis over historical records.
type OptimizerConfig struct {
	// MinSampleSize is the record count below which analysis returns an
	// insufficient-sample status instead of guessing.
	MinSampleSize int `mapstructure:"min_sample_size"`
	// SimpleSplitRateTarget is the maximum acceptable fraction of Simple
	// items that required a split.
	SimpleSplitRateTarget float64 `mapstructure:"simple_split_rate_target"`
	// MediumCommitRateTarget is the maximum acceptable fraction of Medium
	// items that needed three or more commits.
	MediumCommitRateTarget float64 `mapstructure:"medium_commit_rate_target"`
	// IQRMultiplier is the fence multiplier for outlier removal.
	IQRMultiplier float64 `mapstructure:"iqr_multiplier"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// PathsConfig controls where forgeflow keeps its state.
type PathsConfig struct {
	// StateDir is the directory holding the checkpoint, run lock, history
	// and logs. Defaults to .forgeflow in the working directory.
	StateDir string `mapstructure:"state_dir"`
}

// ResolveStateDir returns the state directory, resolving the default
// against baseDir when unset.
func (p *PathsConfig) ResolveStateDir(baseDir string) string {
	if p.StateDir != "" {
		return p.StateDir
	}
	return filepath.Join(baseDir, ".forgeflow")
}

// Timeout returns the capability invocation timeout as a duration.
func (a *AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMinutes) * time.Minute
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{},
		Complexity: ComplexityConfig{
			FileWeight:       100,
			DependencyWeight: 50,
			SimpleMax:        500,
			MediumMax:        1500,
		},
		Resources: ResourceConfig{
			AgentBudget:          200_000,
			ProceedBelow:         100_000,
			ChunkBelow:           150_000,
			ApproachingRatio:     0.75,
			BaseCost:             5_000,
			FileReadCost:         2_000,
			ImplementCostPerLine: 10,
			TestCostPerLine:      10,
			TestLocRatio:         1.5,
			ReviewCost:           8_000,
		},
		Verification: VerificationConfig{
			MaxAttempts:       3,
			CoverageTarget:    80,
			CoverageTolerance: 5,
			FlakyWindow:       3,
			FlakyMinFailures:  2,
		},
		Phases: PhaseConfig{
			InfraBudgetMinutes:          15,
			DefinitionBudgetMinutes:     30,
			DecompositionBudgetMinutes:  20,
			ArchitectureBudgetMinutes:   30,
			ImplementationBudgetMinutes: 240,
			QABudgetMinutes:             60,
			VerificationBudgetMinutes:   60,
			LearningBudgetMinutes:       15,
		},
		Tracker: TrackerConfig{
			Provider: "github",
			Labels:   []string{"forgeflow"},
		},
		Agent: AgentConfig{
			Command:        "claude",
			TimeoutMinutes: 30,
		},
		Optimizer: OptimizerConfig{
			MinSampleSize:          5,
			SimpleSplitRateTarget:  0.05,
			MediumCommitRateTarget: 0.40,
			IQRMultiplier:          1.5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Paths: PathsConfig{},
	}
}

// SetDefaults registers all default values with viper so they apply even
// without a config file.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("project.name", defaults.Project.Name)
	viper.SetDefault("project.dry_run", defaults.Project.DryRun)

	viper.SetDefault("complexity.file_weight", defaults.Complexity.FileWeight)
	viper.SetDefault("complexity.dependency_weight", defaults.Complexity.DependencyWeight)
	viper.SetDefault("complexity.simple_max", defaults.Complexity.SimpleMax)
	viper.SetDefault("complexity.medium_max", defaults.Complexity.MediumMax)

	viper.SetDefault("resources.agent_budget", defaults.Resources.AgentBudget)
	viper.SetDefault("resources.proceed_below", defaults.Resources.ProceedBelow)
	viper.SetDefault("resources.chunk_below", defaults.Resources.ChunkBelow)
	viper.SetDefault("resources.approaching_ratio", defaults.Resources.ApproachingRatio)
	viper.SetDefault("resources.base_cost", defaults.Resources.BaseCost)
	viper.SetDefault("resources.file_read_cost", defaults.Resources.FileReadCost)
	viper.SetDefault("resources.implement_cost_per_line", defaults.Resources.ImplementCostPerLine)
	viper.SetDefault("resources.test_cost_per_line", defaults.Resources.TestCostPerLine)
	viper.SetDefault("resources.test_loc_ratio", defaults.Resources.TestLocRatio)
	viper.SetDefault("resources.review_cost", defaults.Resources.ReviewCost)

	viper.SetDefault("verification.max_attempts", defaults.Verification.MaxAttempts)
	viper.SetDefault("verification.coverage_target", defaults.Verification.CoverageTarget)
	viper.SetDefault("verification.coverage_tolerance", defaults.Verification.CoverageTolerance)
	viper.SetDefault("verification.flaky_window", defaults.Verification.FlakyWindow)
	viper.SetDefault("verification.flaky_min_failures", defaults.Verification.FlakyMinFailures)

	viper.SetDefault("phases.infra_budget_minutes", defaults.Phases.InfraBudgetMinutes)
	viper.SetDefault("phases.definition_budget_minutes", defaults.Phases.DefinitionBudgetMinutes)
	viper.SetDefault("phases.decomposition_budget_minutes", defaults.Phases.DecompositionBudgetMinutes)
	viper.SetDefault("phases.architecture_budget_minutes", defaults.Phases.ArchitectureBudgetMinutes)
	viper.SetDefault("phases.implementation_budget_minutes", defaults.Phases.ImplementationBudgetMinutes)
	viper.SetDefault("phases.qa_budget_minutes", defaults.Phases.QABudgetMinutes)
	viper.SetDefault("phases.verification_budget_minutes", defaults.Phases.VerificationBudgetMinutes)
	viper.SetDefault("phases.learning_budget_minutes", defaults.Phases.LearningBudgetMinutes)

	viper.SetDefault("tracker.provider", defaults.Tracker.Provider)
	viper.SetDefault("tracker.labels", defaults.Tracker.Labels)

	viper.SetDefault("agent.command", defaults.Agent.Command)
	viper.SetDefault("agent.args", defaults.Agent.Args)
	viper.SetDefault("agent.timeout_minutes", defaults.Agent.TimeoutMinutes)

	viper.SetDefault("optimizer.min_sample_size", defaults.Optimizer.MinSampleSize)
	viper.SetDefault("optimizer.simple_split_rate_target", defaults.Optimizer.SimpleSplitRateTarget)
	viper.SetDefault("optimizer.medium_commit_rate_target", defaults.Optimizer.MediumCommitRateTarget)
	viper.SetDefault("optimizer.iqr_multiplier", defaults.Optimizer.IQRMultiplier)

	viper.SetDefault("logging.level", defaults.Logging.Level)

	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
}

// Load unmarshals and validates the current viper configuration.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if
// unmarshaling fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "forgeflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".forgeflow"
	}
	return filepath.Join(home, ".config", "forgeflow")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
