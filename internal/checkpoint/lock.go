package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/forgeflow/forgeflow/internal/errors"
	"github.com/forgeflow/forgeflow/internal/logging"
)

// RunLockFileName is the name of the run lock file within a state directory.
const RunLockFileName = "run.lock"

// RunLock represents an acquired orchestration run lock. At most one
// process may drive a project's checkpoint at a time; a second invocation
// must be refused (or offered resume semantics) rather than racing.
type RunLock struct {
	Project   string    `json:"project"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	// Internal fields (not serialized)
	lockFile string
	logger   *logging.Logger
}

// AcquireRunLock attempts to acquire an exclusive run lock for the project's
// state directory. Returns ErrRunLocked if another live process holds it.
// Stale locks left behind by dead processes are cleaned automatically.
func AcquireRunLock(stateDir, project string, logger *logging.Logger) (*RunLock, error) {
	lockPath := filepath.Join(stateDir, RunLockFileName)

	if existing, err := ReadRunLock(lockPath); err == nil {
		if isProcessAlive(existing.PID) {
			if logger != nil {
				logger.Error("failed to acquire run lock",
					"project", project,
					"holder_pid", existing.PID,
					"holder_host", existing.Hostname,
				)
			}
			return nil, fmt.Errorf("%w: PID %d on %s", errors.ErrRunLocked, existing.PID, existing.Hostname)
		}
		oldPID := existing.PID
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale run lock: %w", err)
		}
		if logger != nil {
			logger.Warn("stale run lock cleaned",
				"project", project,
				"old_pid", oldPID,
			)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	lock := &RunLock{
		Project:   project,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
		lockFile:  lockPath,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run lock: %w", err)
	}

	// O_EXCL so a concurrent acquirer loses the race cleanly.
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			if existing, readErr := ReadRunLock(lockPath); readErr == nil {
				return nil, fmt.Errorf("%w: PID %d on %s", errors.ErrRunLocked, existing.PID, existing.Hostname)
			}
			return nil, errors.ErrRunLocked
		}
		return nil, fmt.Errorf("failed to create run lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write run lock file: %w", err)
	}

	if logger != nil {
		logger.Info("run lock acquired",
			"project", project,
			"pid", lock.PID,
		)
	}

	return lock, nil
}

// Release releases the run lock by removing the lock file.
// Safe to call multiple times; never removes a lock owned by another PID.
func (l *RunLock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}

	existing, err := ReadRunLock(l.lockFile)
	if err != nil {
		return nil
	}
	if existing.PID != l.PID {
		return nil
	}

	if err := os.Remove(l.lockFile); err != nil {
		return err
	}

	if l.logger != nil {
		l.logger.Info("run lock released", "project", l.Project)
	}
	return nil
}

// ReadRunLock reads a run lock file and returns the lock info.
func ReadRunLock(lockPath string) (*RunLock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock RunLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse run lock file: %w", err)
	}
	lock.lockFile = lockPath

	return &lock, nil
}

// IsRunLocked checks whether a state directory is held by a live process.
// Returns the lock info if held, nil otherwise.
func IsRunLocked(stateDir string) (*RunLock, bool) {
	lock, err := ReadRunLock(filepath.Join(stateDir, RunLockFileName))
	if err != nil {
		return nil, false
	}
	if !isProcessAlive(lock.PID) {
		return lock, false
	}
	return lock, true
}

// isProcessAlive reports whether a process with the given PID exists.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering a signal.
	return proc.Signal(syscall.Signal(0)) == nil
}
