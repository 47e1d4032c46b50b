// Package history is the append-only record store for completed projects.
// One record is written per project by the learning phase; the threshold
// optimizer reads the store in batch. Nothing in the orchestration core
// mutates existing records.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/forgeflow/forgeflow/internal/checkpoint"
)

// FileName is the record store's file name within the state directory.
const FileName = "history.jsonl"

// ItemRecord captures the outcome of one work item.
type ItemRecord struct {
	ItemID            string `json:"item_id"`
	Score             int    `json:"score"`
	Category          string `json:"category"`
	EstimatedResource int64  `json:"estimated_resource"`
	ActualResource    int64  `json:"actual_resource"`
	// Split reports whether the item had to be split after classification,
	// either by decomposition or by a mid-item budget stop.
	Split bool `json:"split"`
	// Commits is how many checkpointed sub-units the item took.
	Commits int `json:"commits"`
}

// ProjectRecord is one completed project's outcome.
type ProjectRecord struct {
	RecordID             string       `json:"record_id"`
	Project              string       `json:"project"`
	RunID                string       `json:"run_id"`
	CompletedAt          time.Time    `json:"completed_at"`
	Items                []ItemRecord `json:"items"`
	VerificationAttempts int          `json:"verification_attempts"`
	Diverged             bool         `json:"diverged"`
	DisclosedGaps        []string     `json:"disclosed_gaps,omitempty"`
}

// Store is a flock-guarded JSONL file, one record per line.
type Store struct {
	path     string
	lockPath string
}

// NewStore creates a Store rooted at the given state directory.
func NewStore(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{
		path:     filepath.Join(stateDir, FileName),
		lockPath: filepath.Join(stateDir, "history.lock"),
	}, nil
}

// Path returns the record store's path.
func (s *Store) Path() string {
	return s.path
}

// Append writes one record. A missing RecordID or CompletedAt is filled in.
func (s *Store) Append(rec ProjectRecord) error {
	if rec.RecordID == "" {
		rec.RecordID = uuid.NewString()
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal project record: %w", err)
	}

	fl := checkpoint.NewFileLockAt(s.lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock history store: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append project record: %w", err)
	}
	return f.Sync()
}

// Load reads all records in write order. A missing file is an empty
// history, not an error. Unparsable lines are skipped so one bad write
// cannot make the whole history unreadable.
func (s *Store) Load() ([]ProjectRecord, error) {
	fl := checkpoint.NewFileLockAt(s.lockPath)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("lock history store: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history store: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []ProjectRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec ProjectRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history store: %w", err)
	}
	return records, nil
}
