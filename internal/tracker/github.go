package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// CommandExecutor is a function type that executes a command and returns its
// output. This allows for dependency injection in tests.
type CommandExecutor func(name string, args ...string) ([]byte, error)

// defaultExecutor runs commands using os/exec.
var defaultExecutor CommandExecutor = func(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	return cmd.CombinedOutput()
}

// GitHubTracker implements WorkItemTracker for GitHub using the gh CLI.
type GitHubTracker struct {
	executor CommandExecutor
}

// NewGitHubTracker creates a new GitHubTracker using the default command
// executor.
func NewGitHubTracker() *GitHubTracker {
	return &GitHubTracker{
		executor: defaultExecutor,
	}
}

// NewGitHubTrackerWithExecutor creates a new GitHubTracker with a custom
// command executor for testing.
func NewGitHubTrackerWithExecutor(executor CommandExecutor) *GitHubTracker {
	return &GitHubTracker{
		executor: executor,
	}
}

// CreateItem creates a GitHub issue using the gh CLI and returns the issue
// number as the item ID.
func (g *GitHubTracker) CreateItem(opts CreateOptions) (string, error) {
	if opts.Title == "" {
		return "", fmt.Errorf("item title is required")
	}

	args := []string{"issue", "create",
		"--title", opts.Title,
		"--body", opts.Body,
	}
	for _, label := range opts.Labels {
		args = append(args, "--label", label)
	}

	output, err := g.executor("gh", args...)
	if err != nil {
		return "", g.classifyError(err, output)
	}

	url := strings.TrimSpace(string(output))
	num, err := parseIssueNumber(url)
	if err != nil {
		return "", err
	}

	return strconv.Itoa(num), nil
}

// CloseItem closes a GitHub issue, recording the completing evidence as the
// closing comment.
func (g *GitHubTracker) CloseItem(id, evidence string) error {
	num, err := parseItemID(id)
	if err != nil {
		return err
	}

	args := []string{"issue", "close", strconv.Itoa(num)}
	if evidence != "" {
		args = append(args, "--comment", evidence)
	}

	output, err := g.executor("gh", args...)
	if err != nil {
		return g.classifyError(err, output)
	}
	return nil
}

// issueListEntry is the subset of gh's JSON issue representation we consume.
type issueListEntry struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	URL    string `json:"url"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// ListItems lists GitHub issues matching the filter.
func (g *GitHubTracker) ListItems(filter ListFilter) ([]ItemSummary, error) {
	args := []string{"issue", "list", "--json", "number,title,state,url,labels"}

	switch filter.State {
	case StateOpen:
		args = append(args, "--state", "open")
	case StateClosed:
		args = append(args, "--state", "closed")
	default:
		args = append(args, "--state", "all")
	}
	for _, label := range filter.Labels {
		args = append(args, "--label", label)
	}

	output, err := g.executor("gh", args...)
	if err != nil {
		return nil, g.classifyError(err, output)
	}

	var entries []issueListEntry
	if err := json.Unmarshal(output, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse issue list: %w", err)
	}

	items := make([]ItemSummary, 0, len(entries))
	for _, e := range entries {
		state := StateOpen
		if strings.EqualFold(e.State, "closed") {
			state = StateClosed
		}
		labels := make([]string, 0, len(e.Labels))
		for _, l := range e.Labels {
			labels = append(labels, l.Name)
		}
		items = append(items, ItemSummary{
			ID:     strconv.Itoa(e.Number),
			Title:  e.Title,
			State:  state,
			Labels: labels,
			URL:    e.URL,
		})
	}

	return items, nil
}

// Comment adds a comment to a GitHub issue.
func (g *GitHubTracker) Comment(id, body string) error {
	num, err := parseItemID(id)
	if err != nil {
		return err
	}

	output, err := g.executor("gh", "issue", "comment", strconv.Itoa(num), "--body", body)
	if err != nil {
		return g.classifyError(err, output)
	}
	return nil
}

// classifyError analyzes the error and output from a gh command and returns
// a more specific error type when possible. Errors are wrapped to preserve
// context while enabling errors.Is() checks.
func (g *GitHubTracker) classifyError(err error, output []byte) error {
	outStr := strings.ToLower(string(output))

	// "executable file not found" means gh is not installed
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, execErr)
	}

	switch {
	case strings.Contains(outStr, "not logged in") ||
		strings.Contains(outStr, "authentication required") ||
		strings.Contains(outStr, "gh auth login"):
		return fmt.Errorf("%w: %s", ErrAuthRequired, strings.TrimSpace(string(output)))

	case strings.Contains(outStr, "could not find issue") ||
		strings.Contains(outStr, "issue not found"):
		return fmt.Errorf("%w: %s", ErrItemNotFound, strings.TrimSpace(string(output)))

	case strings.Contains(outStr, "could not resolve to a repository"):
		return fmt.Errorf("repository not found or not accessible: %s", strings.TrimSpace(string(output)))
	}

	return fmt.Errorf("gh command failed: %w\n%s", err, string(output))
}

// parseIssueNumber extracts the issue number from a gh output URL,
// e.g. https://github.com/owner/repo/issues/123.
func parseIssueNumber(output string) (int, error) {
	re := regexp.MustCompile(`/issues/(\d+)`)
	matches := re.FindStringSubmatch(output)
	if len(matches) < 2 {
		return 0, fmt.Errorf("could not parse issue number from: %s", output)
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid issue number: %w", err)
	}

	return num, nil
}

// parseItemID converts a tracker item ID back to a GitHub issue number.
func parseItemID(id string) (int, error) {
	num, err := strconv.Atoi(id)
	if err != nil || num <= 0 {
		return 0, fmt.Errorf("invalid item ID %q: expected issue number", id)
	}
	return num, nil
}

// Ensure GitHubTracker implements WorkItemTracker
var _ WorkItemTracker = (*GitHubTracker)(nil)
