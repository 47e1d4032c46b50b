package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgeflow/forgeflow/internal/checkpoint"
	"github.com/forgeflow/forgeflow/internal/resume"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a suspended run",
	Long: `Resume a suspended orchestration run from its last checkpoint.

Before re-entering the phase sequence, the recorded work progress is
reconciled against the live tracker: items closed, created or deleted
externally while the run was down are resolved in the tracker's favor and
the delta is recorded on the checkpoint.`,
	Args: cobra.NoArgs,
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	d, err := loadDeps()
	if err != nil {
		return err
	}
	defer d.logger.Close()

	lock, err := checkpoint.AcquireRunLock(d.stateDir, d.cfg.Project.Name, d.logger)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	controller := resume.NewController(d.cfg, d.store, d.tracker, d.logger)
	outcome, err := controller.Resume()
	if err != nil {
		return err
	}
	if outcome.NewProject {
		return fmt.Errorf("no run exists for this project; use 'forgeflow start'")
	}

	// A resumed process is a new session: usage gating starts from a fresh
	// budget while per-item actuals keep accumulating.
	if _, err := d.store.Mutate(func(c *checkpoint.Checkpoint) error {
		c.ResetSessionUsage(d.cfg.Resources.AgentBudget)
		return nil
	}); err != nil {
		return err
	}

	fmt.Printf("Resuming at phase %s\n", outcome.Point.Phase)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.machine().Run(ctx, outcome.Point); err != nil {
		fmt.Println("Run suspended; continue with 'forgeflow resume'.")
		return err
	}
	fmt.Println("Run complete.")
	return nil
}
