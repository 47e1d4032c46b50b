package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgeflow/forgeflow/internal/errors"
	"github.com/forgeflow/forgeflow/internal/logging"
)

// StateFileName is the checkpoint document's file name within the state
// directory.
const StateFileName = "checkpoint.json"

// Store persists the checkpoint document for one project.
//
// Atomicity: every write goes through an exclusive flock around a full
// read-modify-write, and the document is written to a temporary file and
// renamed into place. A crash between any two Mutate calls leaves the
// previous document intact; no partial unit is ever observably persisted.
type Store struct {
	dir    string
	path   string
	logger *logging.Logger
}

// NewStore creates a Store rooted at the given state directory.
// The directory is created if it does not exist.
func NewStore(stateDir string, logger *logging.Logger) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Store{
		dir:    stateDir,
		path:   filepath.Join(stateDir, StateFileName),
		logger: logger,
	}, nil
}

// Path returns the checkpoint document's path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a checkpoint document exists.
func (s *Store) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat checkpoint: %w", err)
	}
	return true, nil
}

// Load reads the checkpoint document.
//
// A missing document returns ErrNotFound (a new project, not a failure).
// An unparsable document returns ErrCorruptState; callers must never
// auto-delete on that, since the file may be recoverable from version
// control history.
func (s *Store) Load() (*Checkpoint, error) {
	fl := NewFileLock(s.dir)
	if err := fl.Lock(); err != nil {
		return nil, errors.NewCheckpointError("failed to acquire lock", err).WithPath(s.path)
	}
	defer func() { _ = fl.Unlock() }()

	return s.loadLocked()
}

// loadLocked reads and migrates the document. Caller holds the flock.
func (s *Store) loadLocked() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.NewCheckpointError("failed to read checkpoint", err).WithPath(s.path)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.NewCheckpointError("failed to parse checkpoint", errors.ErrCorruptState).
			WithPath(s.path).
			WithSeverity(errors.SeverityCritical)
	}

	if err := migrate(&cp); err != nil {
		return nil, err
	}

	return &cp, nil
}

// Initialize creates a new checkpoint document for the project. Fails if a
// document already exists; a run is created exactly once.
func (s *Store) Initialize(identity ProjectIdentity, maxVerificationAttempts int, resourceBudget int64) (*Checkpoint, error) {
	fl := NewFileLock(s.dir)
	if err := fl.Lock(); err != nil {
		return nil, errors.NewCheckpointError("failed to acquire lock", err).WithPath(s.path)
	}
	defer func() { _ = fl.Unlock() }()

	if _, err := os.Stat(s.path); err == nil {
		return nil, errors.NewCheckpointError("checkpoint already exists", nil).
			WithProject(identity.Name).
			WithPath(s.path)
	}

	now := time.Now().UTC()
	if identity.StartedAt.IsZero() {
		identity.StartedAt = now
	}
	identity.LastUpdated = now

	cp := New(identity, maxVerificationAttempts, resourceBudget)
	if err := s.writeLocked(cp); err != nil {
		return nil, err
	}

	s.logger.Info("checkpoint initialized",
		"project", identity.Name,
		"run_id", identity.RunID,
	)
	return cp, nil
}

// Mutate applies fn to the current document under the exclusive lock and
// persists the result atomically. fn must be idempotent when replayed:
// the document it receives may already reflect a previous application of
// the same logical change.
//
// The mutated document's invariants are checked before the write; a
// violation aborts the transaction and leaves the stored document unchanged.
func (s *Store) Mutate(fn func(*Checkpoint) error) (*Checkpoint, error) {
	fl := NewFileLock(s.dir)
	if err := fl.Lock(); err != nil {
		return nil, errors.NewCheckpointError("failed to acquire lock", err).WithPath(s.path)
	}
	defer func() { _ = fl.Unlock() }()

	cp, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	if err := fn(cp); err != nil {
		return nil, err
	}

	if violations := cp.Validate(); len(violations) > 0 {
		return nil, errors.NewCheckpointError(
			fmt.Sprintf("mutation violates invariants: %v", violations[0]),
			errors.ErrInvalidInput,
		).WithProject(cp.Project.Name).WithPath(s.path)
	}

	cp.Project.LastUpdated = time.Now().UTC()

	if err := s.writeLocked(cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// Delete removes the checkpoint document. Deletion is always an explicit
// user action; nothing in the orchestration core calls this.
func (s *Store) Delete() error {
	fl := NewFileLock(s.dir)
	if err := fl.Lock(); err != nil {
		return errors.NewCheckpointError("failed to acquire lock", err).WithPath(s.path)
	}
	defer func() { _ = fl.Unlock() }()

	if err := os.Remove(s.path); err != nil {
		if os.IsNotExist(err) {
			return errors.ErrNotFound
		}
		return errors.NewCheckpointError("failed to delete checkpoint", err).WithPath(s.path)
	}

	s.logger.Warn("checkpoint deleted", "path", s.path)
	return nil
}

// writeLocked persists the document atomically. Caller holds the flock.
func (s *Store) writeLocked(cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.NewCheckpointError("failed to marshal checkpoint", err).WithPath(s.path)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.NewCheckpointError("failed to create temp file", err).WithPath(s.path)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.NewCheckpointError("failed to write temp file", err).WithPath(s.path)
	}
	// Flush to disk before the rename; otherwise a crash can leave an
	// empty or partial file behind the "atomic" replacement.
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.NewCheckpointError("failed to sync temp file", err).WithPath(s.path)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.NewCheckpointError("failed to close temp file", err).WithPath(s.path)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return errors.NewCheckpointError("failed to rename temp file", err).WithPath(s.path)
	}

	return nil
}

// migrate brings an older document forward to the current schema version.
// Documents written by a newer binary are refused rather than guessed at.
func migrate(cp *Checkpoint) error {
	switch {
	case cp.Version > SchemaVersion:
		return errors.NewCheckpointError(
			fmt.Sprintf("document version %d is newer than supported version %d", cp.Version, SchemaVersion),
			errors.ErrStaleVersion,
		)
	case cp.Version == SchemaVersion:
		return nil
	}

	// Version 0 documents predate the explicit version field; the layout is
	// otherwise identical to version 1.
	cp.Version = SchemaVersion
	if cp.WorkProgress.CompletedItems == nil {
		cp.WorkProgress.CompletedItems = []string{}
	}
	if cp.WorkProgress.OpenItems == nil {
		cp.WorkProgress.OpenItems = []string{}
	}
	if cp.PhasesCompleted == nil {
		cp.PhasesCompleted = []string{}
	}
	return nil
}
