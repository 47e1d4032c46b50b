package tracker

import (
	"fmt"
	"slices"
	"strconv"
	"sync"
)

// MemoryTracker is an in-memory WorkItemTracker used by tests and dry-run
// mode. It is safe for concurrent use.
type MemoryTracker struct {
	mu       sync.Mutex
	nextID   int
	items    map[string]*memoryItem
	order    []string
	comments map[string][]string
}

type memoryItem struct {
	summary  ItemSummary
	body     string
	evidence string
}

// NewMemoryTracker creates an empty in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		nextID:   1,
		items:    make(map[string]*memoryItem),
		comments: make(map[string][]string),
	}
}

// CreateItem creates a new open item with a sequential numeric ID.
func (m *MemoryTracker) CreateItem(opts CreateOptions) (string, error) {
	if opts.Title == "" {
		return "", fmt.Errorf("item title is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := strconv.Itoa(m.nextID)
	m.nextID++

	m.items[id] = &memoryItem{
		summary: ItemSummary{
			ID:     id,
			Title:  opts.Title,
			State:  StateOpen,
			Labels: slices.Clone(opts.Labels),
		},
		body: opts.Body,
	}
	m.order = append(m.order, id)
	return id, nil
}

// CloseItem closes an item, recording the evidence.
func (m *MemoryTracker) CloseItem(id, evidence string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	item.summary.State = StateClosed
	item.evidence = evidence
	return nil
}

// Reopen reopens a closed item. Tests use this to simulate external edits.
func (m *MemoryTracker) Reopen(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	item.summary.State = StateOpen
	return nil
}

// Remove deletes an item entirely. Tests use this to simulate external
// deletion.
func (m *MemoryTracker) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	delete(m.items, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	return nil
}

// ListItems returns items matching the filter in creation order.
func (m *MemoryTracker) ListItems(filter ListFilter) ([]ItemSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []ItemSummary
	for _, id := range m.order {
		item := m.items[id]
		if filter.State != "" && item.summary.State != filter.State {
			continue
		}
		if !hasAllLabels(item.summary.Labels, filter.Labels) {
			continue
		}
		s := item.summary
		s.Labels = slices.Clone(s.Labels)
		result = append(result, s)
	}
	return result, nil
}

// Comment records a comment on an item.
func (m *MemoryTracker) Comment(id, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	m.comments[id] = append(m.comments[id], body)
	return nil
}

// Comments returns the comments recorded for an item.
func (m *MemoryTracker) Comments(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.comments[id])
}

// Evidence returns the closing evidence recorded for an item.
func (m *MemoryTracker) Evidence(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		return item.evidence
	}
	return ""
}

func hasAllLabels(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}

// Ensure MemoryTracker implements WorkItemTracker
var _ WorkItemTracker = (*MemoryTracker)(nil)
