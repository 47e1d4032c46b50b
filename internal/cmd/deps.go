package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgeflow/forgeflow/internal/agent"
	"github.com/forgeflow/forgeflow/internal/approval"
	"github.com/forgeflow/forgeflow/internal/checkpoint"
	"github.com/forgeflow/forgeflow/internal/config"
	"github.com/forgeflow/forgeflow/internal/history"
	"github.com/forgeflow/forgeflow/internal/logging"
	"github.com/forgeflow/forgeflow/internal/orchestrator"
	"github.com/forgeflow/forgeflow/internal/tracker"
)

// deps bundles the collaborators a command needs. Built per invocation;
// commands share nothing across processes except the state directory.
type deps struct {
	cfg      *config.Config
	stateDir string
	logger   *logging.Logger
	store    *checkpoint.Store
	tracker  tracker.WorkItemTracker
	invoker  agent.Invoker
	history  *history.Store
}

func loadDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cwd)
	}
	stateDir := cfg.Paths.ResolveStateDir(cwd)

	logger, err := logging.NewLogger(stateDir, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	store, err := checkpoint.NewStore(stateDir, logger)
	if err != nil {
		return nil, err
	}

	hist, err := history.NewStore(stateDir)
	if err != nil {
		return nil, err
	}

	d := &deps{
		cfg:      cfg,
		stateDir: stateDir,
		logger:   logger,
		store:    store,
		history:  hist,
	}

	if cfg.Project.DryRun {
		d.tracker = tracker.NewMemoryTracker()
		d.invoker = agent.NewScriptedInvoker()
		return d, nil
	}

	switch cfg.Tracker.Provider {
	case "github":
		d.tracker = tracker.NewGitHubTracker()
	case "memory":
		d.tracker = tracker.NewMemoryTracker()
	default:
		return nil, fmt.Errorf("unknown tracker provider %q", cfg.Tracker.Provider)
	}
	d.invoker = agent.NewExecInvoker(cfg.Agent, logger)
	return d, nil
}

// gate returns the interactive prompt when stdin is a terminal, otherwise
// the auto-deny gate so unattended runs suspend at approval points.
func (d *deps) gate() approval.Gate {
	info, err := os.Stdin.Stat()
	if err == nil && info.Mode()&os.ModeCharDevice != 0 {
		return approval.Prompt{}
	}
	return approval.AutoDeny{}
}

// machine assembles the orchestration state machine.
func (d *deps) machine() *orchestrator.Machine {
	return orchestrator.NewMachine(d.cfg, d.store, d.tracker, d.invoker,
		orchestrator.WithLogger(d.logger),
		orchestrator.WithGate(d.gate()),
		orchestrator.WithRecorder(d.history),
	)
}
