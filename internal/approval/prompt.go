package approval

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/forgeflow/forgeflow/internal/errors"
)

var (
	promptTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	promptDetailStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				MarginBottom(1)

	promptSelectedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86"))

	promptOptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	promptHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)

// Prompt is the interactive gate. Each request runs a small full-screen
// selection model and blocks until the user picks an option or cancels.
type Prompt struct{}

// Request runs the selection prompt for req.
func (Prompt) Request(ctx context.Context, req Request) (Decision, error) {
	if len(req.Options) == 0 {
		return "", fmt.Errorf("approval request %q has no options", req.Title)
	}

	m := promptModel{req: req}
	p := tea.NewProgram(m, tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("approval prompt failed: %w", err)
	}

	result, ok := final.(promptModel)
	if !ok || !result.chosen {
		return "", fmt.Errorf("%w: %s", errors.ErrApprovalRequired, req.Title)
	}
	return Decision(req.Options[result.cursor].ID), nil
}

type promptModel struct {
	req    Request
	cursor int
	chosen bool
}

func (m promptModel) Init() tea.Cmd {
	return nil
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.req.Options)-1 {
			m.cursor++
		}
	case "enter":
		m.chosen = true
		return m, tea.Quit
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m promptModel) View() string {
	s := promptTitleStyle.Render(m.req.Title) + "\n"
	if m.req.Detail != "" {
		s += promptDetailStyle.Render(m.req.Detail) + "\n"
	}
	for i, opt := range m.req.Options {
		if i == m.cursor {
			s += promptSelectedStyle.Render("> "+opt.Label) + "\n"
		} else {
			s += promptOptionStyle.Render("  "+opt.Label) + "\n"
		}
	}
	s += promptHelpStyle.Render("↑/↓ select · enter confirm · esc cancel")
	return s
}

var _ Gate = Prompt{}
