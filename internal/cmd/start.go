package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/forgeflow/forgeflow/internal/checkpoint"
	"github.com/forgeflow/forgeflow/internal/orchestrator"
)

var startCmd = &cobra.Command{
	Use:   "start <request...>",
	Short: "Start a new orchestration run",
	Long: `Start a new orchestration run for the given build request.

The request text is handed to the agent's product-definition capability;
everything after that is driven by the phase sequence. A project can have
at most one run: use "forgeflow resume" to continue a suspended run and
"forgeflow reset" to discard one.

Examples:
  # Start a run
  forgeflow start "a CLI tool that mirrors RSS feeds to a local archive"

  # Start against the in-memory fakes
  forgeflow start --dry-run "a test request"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
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

	exists, err := d.store.Exists()
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("a run already exists for this project; use 'forgeflow resume' or 'forgeflow reset'")
	}

	request := strings.Join(args, " ")
	identity := checkpoint.ProjectIdentity{
		Name:      d.cfg.Project.Name,
		RunID:     uuid.NewString(),
		Request:   request,
		StartedAt: time.Now().UTC(),
	}
	if _, err := d.store.Initialize(identity, d.cfg.Verification.MaxAttempts, d.cfg.Resources.AgentBudget); err != nil {
		return err
	}

	fmt.Printf("Run %s started for project %s\n", identity.RunID, identity.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.machine().Run(ctx, orchestrator.ResumptionPoint{}); err != nil {
		fmt.Println("Run suspended; continue with 'forgeflow resume'.")
		return err
	}
	fmt.Println("Run complete.")
	return nil
}
