package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/forgeflow/forgeflow/internal/checkpoint"
)

var (
	reportTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205")).
				MarginBottom(1)

	reportHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86"))

	reportLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Width(18)

	reportValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	reportWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	reportErrorStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("196"))

	reportOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
)

func reportRow(label, value string) string {
	return reportLabelStyle.Render(label) + reportValueStyle.Render(value) + "\n"
}

// DivergenceReport renders the human-readable report for a diverged run:
// the failure history and what each exit option means. Every hard stop
// produces one of these; the system never fails silently.
func DivergenceReport(cp *checkpoint.Checkpoint) string {
	var b strings.Builder

	b.WriteString(reportErrorStyle.Render("VERIFICATION DIVERGED") + "\n\n")
	b.WriteString(reportRow("Project", cp.Project.Name))
	b.WriteString(reportRow("Attempts", fmt.Sprintf("%d of %d", cp.Verification.AttemptCount, cp.Verification.MaxAttempts)))
	if len(cp.Verification.FailingItems) > 0 {
		b.WriteString(reportRow("Failing items", strings.Join(cp.Verification.FailingItems, ", ")))
	}

	if len(cp.Verification.FailureHistory) > 0 {
		b.WriteString("\n" + reportHeaderStyle.Render("Failure history") + "\n")
		for i, f := range cp.Verification.FailureHistory {
			line := fmt.Sprintf("  %d. [%s] %s", i+1, f.Timestamp.Format(time.RFC3339), f.Message)
			b.WriteString(reportWarnStyle.Render(line) + "\n")
			if len(f.Tests) > 0 {
				b.WriteString(reportValueStyle.Render("     tests: "+strings.Join(f.Tests, ", ")) + "\n")
			}
		}
	}

	b.WriteString("\n" + reportHeaderStyle.Render("Exit options") + "\n")
	b.WriteString(reportValueStyle.Render("  narrow  descope the failing items and re-verify") + "\n")
	b.WriteString(reportValueStyle.Render("  relax   quarantine the failing tests and re-verify") + "\n")
	b.WriteString(reportValueStyle.Render("  manual  halt for operator intervention") + "\n")

	return b.String()
}

// StatusReport renders the current run state for the status command.
func StatusReport(cp *checkpoint.Checkpoint) string {
	var b strings.Builder

	b.WriteString(reportTitleStyle.Render("forgeflow · "+cp.Project.Name) + "\n")

	phase := cp.Phase.Current
	if phase == "" {
		phase = PhaseInfra.String()
	}
	status := string(cp.Phase.Status)
	switch cp.Phase.Status {
	case checkpoint.PhaseDivergence:
		status = reportErrorStyle.Render(status)
	case checkpoint.PhaseComplete:
		status = reportOKStyle.Render(status)
	default:
		status = reportValueStyle.Render(status)
	}

	b.WriteString(reportRow("Run", cp.Project.RunID))
	b.WriteString(reportLabelStyle.Render("Phase") + reportValueStyle.Render(phase) + " (" + status + ")\n")
	b.WriteString(reportRow("Phases done", strings.Join(cp.PhasesCompleted, " → ")))
	b.WriteString(reportRow("Items", fmt.Sprintf("%d/%d complete, %d open",
		len(cp.WorkProgress.CompletedItems), cp.WorkProgress.TotalItems, len(cp.WorkProgress.OpenItems))))
	if cp.WorkProgress.InProgressItem != "" {
		b.WriteString(reportRow("In progress", cp.WorkProgress.InProgressItem))
	}

	if cp.ResourceTracking.Budget > 0 {
		pct := float64(cp.ResourceTracking.Used) / float64(cp.ResourceTracking.Budget) * 100
		usage := fmt.Sprintf("%d / %d tokens (%.0f%%)", cp.ResourceTracking.Used, cp.ResourceTracking.Budget, pct)
		if cp.ResourceTracking.ThresholdExceeded {
			usage = reportWarnStyle.Render(usage + "  approaching limit")
			b.WriteString(reportLabelStyle.Render("Resources") + usage + "\n")
		} else {
			b.WriteString(reportRow("Resources", usage))
		}
	}

	if cp.Verification.AttemptCount > 0 {
		b.WriteString(reportRow("Verification", fmt.Sprintf("attempt %d of %d",
			cp.Verification.AttemptCount, cp.Verification.MaxAttempts)))
	}
	if len(cp.Verification.QuarantinedTests) > 0 {
		b.WriteString(reportRow("Quarantined", strings.Join(cp.Verification.QuarantinedTests, ", ")))
	}
	if len(cp.Verification.DisclosedGaps) > 0 {
		b.WriteString("\n" + reportHeaderStyle.Render("Disclosed gaps") + "\n")
		for _, g := range cp.Verification.DisclosedGaps {
			b.WriteString(reportWarnStyle.Render("  · "+g) + "\n")
		}
	}

	b.WriteString("\n" + reportRow("Updated", cp.Project.LastUpdated.Format(time.RFC3339)))
	return b.String()
}
