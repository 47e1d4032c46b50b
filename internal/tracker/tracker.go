// Package tracker provides an abstraction over external work item stores.
// It defines the WorkItemTracker interface that the orchestration core
// depends on; any issue-tracking backend satisfying the interface is
// substitutable (GitHub, Linear, an in-memory fake for tests).
package tracker

// ItemState is the lifecycle state of a work item.
type ItemState string

const (
	// StateOpen means the item is awaiting or undergoing implementation.
	StateOpen ItemState = "open"
	// StateClosed means the item has been completed (or externally resolved).
	StateClosed ItemState = "closed"
)

// ItemSummary is the tracker's view of a work item.
type ItemSummary struct {
	// ID is the provider-specific identifier. For GitHub this is the issue
	// number rendered as a string.
	ID string
	// Title is the item's title.
	Title string
	// State is the item's lifecycle state.
	State ItemState
	// Labels are the tags applied to the item.
	Labels []string
	// URL is the web URL to view the item, when the provider has one.
	URL string
}

// ListFilter narrows a ListItems query. Zero values match everything.
type ListFilter struct {
	// State restricts results to items in the given state.
	State ItemState
	// Labels restricts results to items carrying all of the given labels.
	Labels []string
}

// CreateOptions contains the parameters for creating a work item.
type CreateOptions struct {
	// Title is the item title (required).
	Title string
	// Body is the item description in markdown.
	Body string
	// Labels are tags to apply to the item.
	Labels []string
}

// WorkItemTracker defines the narrow interface the orchestration core
// consumes. The checkpoint treats the tracker as an independently-queryable
// second source of truth that it periodically reconciles against.
type WorkItemTracker interface {
	// CreateItem creates a new work item and returns its ID.
	CreateItem(opts CreateOptions) (string, error)

	// CloseItem closes a work item, recording evidence of the completing
	// work (e.g. a commit or artifact reference) as a closing comment.
	CloseItem(id, evidence string) error

	// ListItems returns items matching the filter.
	ListItems(filter ListFilter) ([]ItemSummary, error)

	// Comment adds a comment to an item.
	Comment(id, body string) error
}
