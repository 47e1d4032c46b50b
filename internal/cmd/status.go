package cmd

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/forgeflow/forgeflow/internal/checkpoint"
	"github.com/forgeflow/forgeflow/internal/errors"
	"github.com/forgeflow/forgeflow/internal/orchestrator"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current run state",
	Long: `Show the current run's phase, work progress, resource usage and
verification state, read from the checkpoint.

With --watch, the view re-renders whenever the checkpoint file changes.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Re-render on checkpoint changes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := loadDeps()
	if err != nil {
		return err
	}
	defer d.logger.Close()

	if err := renderStatus(d); err != nil {
		return err
	}
	if !statusWatch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: the atomic rename replaces the
	// checkpoint inode on every write.
	if err := watcher.Add(d.stateDir); err != nil {
		return fmt.Errorf("failed to watch state directory: %w", err)
	}

	fmt.Println("Watching for changes... (Ctrl+C to stop)")
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != d.store.Path() {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			fmt.Print("\033[H\033[2J")
			if err := renderStatus(d); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}

func renderStatus(d *deps) error {
	cp, err := d.store.Load()
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			fmt.Println("No run exists for this project. Start one with 'forgeflow start'.")
			return nil
		}
		return err
	}

	fmt.Println(orchestrator.StatusReport(cp))

	if lock, locked := checkpoint.IsRunLocked(d.stateDir); locked {
		fmt.Printf("Run in progress: pid %d on %s\n", lock.PID, lock.Hostname)
	}
	if cp.Phase.Status == checkpoint.PhaseDivergence {
		fmt.Println(orchestrator.DivergenceReport(cp))
	}
	return nil
}
