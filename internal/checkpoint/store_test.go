package checkpoint

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/forgeflow/forgeflow/internal/errors"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	return s
}

func testIdentity() ProjectIdentity {
	return ProjectIdentity{Name: "demo", RunID: "run-1", Request: "build a thing"}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.Load()
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestLoadCorruptReturnsCorruptState(t *testing.T) {
	s := testStore(t)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load()
	if !errors.Is(err, errors.ErrCorruptState) {
		t.Fatalf("Load() error = %v, want ErrCorruptState", err)
	}
	if errors.Is(err, errors.ErrNotFound) {
		t.Error("corrupt state must be distinguishable from not found")
	}
	// The document must survive: it may be recoverable from version
	// control history.
	if _, statErr := os.Stat(s.Path()); statErr != nil {
		t.Errorf("corrupt document was removed: %v", statErr)
	}
}

func TestInitializeRefusesSecondRun(t *testing.T) {
	s := testStore(t)
	if _, err := s.Initialize(testIdentity(), 3, 200_000); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if _, err := s.Initialize(testIdentity(), 3, 200_000); err == nil {
		t.Fatal("second Initialize() succeeded, want error")
	}
}

func TestMutatePersistsAndUpdatesTimestamp(t *testing.T) {
	s := testStore(t)
	first, err := s.Initialize(testIdentity(), 3, 200_000)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Mutate(func(c *Checkpoint) error {
		c.AddOpenItem("1")
		return nil
	}); err != nil {
		t.Fatalf("Mutate() failed: %v", err)
	}

	cp, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cp.WorkProgress.OpenItems, []string{"1"}) {
		t.Errorf("OpenItems = %v, want [1]", cp.WorkProgress.OpenItems)
	}
	if !cp.Project.LastUpdated.After(first.Project.LastUpdated) {
		t.Error("LastUpdated was not advanced by Mutate")
	}
}

// Replaying the same logical mutation after a crash mid-write must not
// double-count progress.
func TestMutateReplayIsIdempotent(t *testing.T) {
	s := testStore(t)
	if _, err := s.Initialize(testIdentity(), 3, 200_000); err != nil {
		t.Fatal(err)
	}

	complete := func(c *Checkpoint) error {
		c.AddOpenItem("1")
		c.CompleteItem("1")
		return nil
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Mutate(complete); err != nil {
			t.Fatalf("Mutate() replay %d failed: %v", i+1, err)
		}
	}

	cp, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cp.WorkProgress.CompletedItems, []string{"1"}) {
		t.Errorf("CompletedItems = %v, want [1]", cp.WorkProgress.CompletedItems)
	}
	if cp.WorkProgress.TotalItems != 1 {
		t.Errorf("TotalItems = %d, want 1", cp.WorkProgress.TotalItems)
	}
}

func TestMutateAbortsOnInvariantViolation(t *testing.T) {
	s := testStore(t)
	if _, err := s.Initialize(testIdentity(), 3, 200_000); err != nil {
		t.Fatal(err)
	}

	_, err := s.Mutate(func(c *Checkpoint) error {
		c.ResourceTracking.Used = -1
		return nil
	})
	if err == nil {
		t.Fatal("Mutate() accepted an invariant violation")
	}

	cp, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cp.ResourceTracking.Used != 0 {
		t.Errorf("stored document changed despite aborted transaction: used = %d", cp.ResourceTracking.Used)
	}
}

func TestLoadRefusesNewerSchema(t *testing.T) {
	s := testStore(t)
	doc := []byte(`{"version": 99, "project": {"name": "demo"}}`)
	if err := os.WriteFile(s.Path(), doc, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load()
	if !errors.Is(err, errors.ErrStaleVersion) {
		t.Fatalf("Load() error = %v, want ErrStaleVersion", err)
	}
}

func TestLoadMigratesVersionZero(t *testing.T) {
	s := testStore(t)
	doc := []byte(`{"project": {"name": "demo"}, "phase": {"current": "infra"}}`)
	if err := os.WriteFile(s.Path(), doc, 0644); err != nil {
		t.Fatal(err)
	}

	cp, err := s.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cp.Version != SchemaVersion {
		t.Errorf("Version = %d, want %d", cp.Version, SchemaVersion)
	}
	if cp.WorkProgress.OpenItems == nil || cp.WorkProgress.CompletedItems == nil {
		t.Error("migration did not fill empty item sets")
	}
}

func TestDeleteIsExplicit(t *testing.T) {
	s := testStore(t)
	if _, err := s.Initialize(testIdentity(), 3, 200_000); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := s.Load(); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Load() after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("second Delete() = %v, want ErrNotFound", err)
	}
}

func TestWriteIsAtomic(t *testing.T) {
	s := testStore(t)
	if _, err := s.Initialize(testIdentity(), 3, 200_000); err != nil {
		t.Fatal(err)
	}
	// No temp file may be left behind after a successful write.
	if _, err := os.Stat(filepath.Join(filepath.Dir(s.Path()), StateFileName+".tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}
