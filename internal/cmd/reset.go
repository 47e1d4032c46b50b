package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeflow/forgeflow/internal/approval"
	"github.com/forgeflow/forgeflow/internal/checkpoint"
	"github.com/forgeflow/forgeflow/internal/errors"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the current run's state",
	Long: `Delete the checkpoint so the next start begins fresh.

Deletion is always an explicit action; nothing in the orchestration core
deletes state on its own. When the checkpoint is corrupt the deletion
requires confirmation, because the document may still be recoverable from
version control history of the state file.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation")
}

func runReset(cmd *cobra.Command, args []string) error {
	d, err := loadDeps()
	if err != nil {
		return err
	}
	defer d.logger.Close()

	if lock, locked := checkpoint.IsRunLocked(d.stateDir); locked {
		return fmt.Errorf("%w: pid %d on %s is still running this project",
			errors.ErrRunLocked, lock.PID, lock.Hostname)
	}

	_, loadErr := d.store.Load()
	if errors.Is(loadErr, errors.ErrNotFound) {
		fmt.Println("Nothing to reset.")
		return nil
	}

	if !resetForce {
		detail := "The checkpoint and its run history pointer will be deleted."
		if errors.Is(loadErr, errors.ErrCorruptState) {
			detail = "The checkpoint is CORRUPT. It may be recoverable from version control; deleting it abandons the run."
		}
		decision, err := d.gate().Request(cmd.Context(), approval.Request{
			Kind:   approval.KindStateReset,
			Title:  fmt.Sprintf("Delete run state for %s?", d.cfg.Project.Name),
			Detail: detail,
			Options: []approval.Option{
				{ID: "delete", Label: "Delete the run state"},
				{ID: "keep", Label: "Keep it"},
			},
		})
		if err != nil {
			return err
		}
		if decision != "delete" {
			fmt.Println("Keeping run state.")
			return nil
		}
	}

	if err := d.store.Delete(); err != nil {
		return err
	}
	fmt.Println("Run state deleted.")
	return nil
}
