package optimizer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	paramStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	lowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func confidenceStyle(c Confidence) lipgloss.Style {
	switch c {
	case ConfidenceHigh:
		return highStyle
	case ConfidenceMedium:
		return mediumStyle
	default:
		return lowStyle
	}
}

// Render produces the human-readable threshold report. The structured
// Analysis is what approval tooling consumes; this is what a person reads.
func Render(a Analysis) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Threshold analysis") + "\n")

	if a.Status == StatusInsufficientSample {
		b.WriteString(dimStyle.Render(fmt.Sprintf(
			"Insufficient sample: %d completed projects recorded, %d required. No recommendations.",
			a.SampleSize, a.MinSampleSize)) + "\n")
		return b.String()
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("Analyzed %d completed projects.", a.SampleSize)) + "\n\n")

	if len(a.Recommendations) == 0 {
		b.WriteString("All thresholds are performing within target. No changes recommended.\n")
		return b.String()
	}

	for _, rec := range a.Recommendations {
		b.WriteString(paramStyle.Render(rec.ParameterName) + "\n")
		b.WriteString(fmt.Sprintf("  %s → %s  ",
			formatValue(rec.OldValue), formatValue(rec.NewValue)))
		b.WriteString(confidenceStyle(rec.Confidence).Render(
			fmt.Sprintf("[%s confidence, n=%d]", rec.Confidence, rec.SampleSize)) + "\n")
		b.WriteString(dimStyle.Render("  "+rec.Reasoning) + "\n\n")
	}

	b.WriteString(dimStyle.Render("Recommendations are advisory. Apply with: forgeflow optimize --apply") + "\n")
	return b.String()
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
