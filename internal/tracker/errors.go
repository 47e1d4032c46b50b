package tracker

import "errors"

// Sentinel errors for work item tracker operations.
var (
	// ErrItemNotFound indicates that the requested item does not exist.
	ErrItemNotFound = errors.New("work item not found")

	// ErrAuthRequired indicates that authentication is required.
	ErrAuthRequired = errors.New("authentication required")

	// ErrProviderUnavailable indicates that the provider tool/API is not
	// available. The orchestrator suspends at the last checkpoint when it
	// sees this.
	ErrProviderUnavailable = errors.New("provider unavailable")
)
