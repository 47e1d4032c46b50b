package tracker

import (
	"errors"
	"testing"
)

func TestMemoryTrackerLifecycle(t *testing.T) {
	m := NewMemoryTracker()

	id1, err := m.CreateItem(CreateOptions{Title: "first", Labels: []string{"forgeflow"}})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := m.CreateItem(CreateOptions{Title: "second", Labels: []string{"forgeflow", "kind:bug"}})
	if err != nil {
		t.Fatal(err)
	}
	if id1 != "1" || id2 != "2" {
		t.Errorf("ids = %s, %s, want sequential 1, 2", id1, id2)
	}

	if err := m.CloseItem(id1, "done in commit abc"); err != nil {
		t.Fatal(err)
	}
	if got := m.Evidence(id1); got != "done in commit abc" {
		t.Errorf("Evidence = %q", got)
	}

	open, err := m.ListItems(ListFilter{State: StateOpen})
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].ID != id2 {
		t.Errorf("open items = %v", open)
	}

	bugs, err := m.ListItems(ListFilter{Labels: []string{"kind:bug"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(bugs) != 1 || bugs[0].ID != id2 {
		t.Errorf("labeled items = %v", bugs)
	}
}

func TestMemoryTrackerExternalEdits(t *testing.T) {
	m := NewMemoryTracker()
	id, _ := m.CreateItem(CreateOptions{Title: "x"})
	if err := m.CloseItem(id, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Reopen(id); err != nil {
		t.Fatal(err)
	}
	open, _ := m.ListItems(ListFilter{State: StateOpen})
	if len(open) != 1 {
		t.Fatalf("reopened item not listed as open")
	}

	if err := m.Remove(id); err != nil {
		t.Fatal(err)
	}
	all, _ := m.ListItems(ListFilter{})
	if len(all) != 0 {
		t.Errorf("removed item still listed: %v", all)
	}
}

func TestMemoryTrackerUnknownItem(t *testing.T) {
	m := NewMemoryTracker()
	if err := m.CloseItem("99", ""); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("CloseItem error = %v, want ErrItemNotFound", err)
	}
	if err := m.Comment("99", "hi"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("Comment error = %v, want ErrItemNotFound", err)
	}
}
