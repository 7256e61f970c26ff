// Package statusview implements a live status dashboard for zeroserver,
// fed by internal/controller.Status snapshots. Grounded on
// internal/display/tui.go's bubbletea TUIModel/TUIStyles (Init/Update/View
// shape, lipgloss pane styling), stripped down from an interactive poker
// table view to a read-only status display.
package statusview

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"zeroserver/internal/controller"
)

type statusMsg controller.Status

type quitMsg struct{}

// model is the bubbletea model backing the dashboard.
type model struct {
	last     controller.Status
	styles   styles
	progress progress.Model
	quitting bool
}

type styles struct {
	Border lipgloss.Style
	Header lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
}

func newStyles() styles {
	return styles{
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#626262")).
			Padding(1, 2),
		Header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575")),
		Label:  lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")),
		Value:  lipgloss.NewStyle().Bold(true),
	}
}

func newModel() model {
	return model{styles: newStyles(), progress: progress.New(progress.WithDefaultGradient())}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.last = controller.Status(msg)
		if msg.GamesTarget > 0 {
			return m, m.progress.SetPercent(float64(msg.GamesCollected) / float64(msg.GamesTarget))
		}
	case quitMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	row := func(label string, value string) string {
		return m.styles.Label.Render(label+": ") + m.styles.Value.Render(value)
	}

	body := lipgloss.JoinVertical(
		lipgloss.Left,
		m.styles.Header.Render("zeroserver"),
		row("iteration", fmt.Sprintf("%d", m.last.Iteration)),
		row("phase", m.last.Phase),
		row("model", fmt.Sprintf("%d", m.last.ModelIteration)),
		row("workers", fmt.Sprintf("%d", m.last.Workers)),
		row("games", fmt.Sprintf("%d / %d", m.last.GamesCollected, m.last.GamesTarget)),
		m.progress.View(),
	)
	return m.styles.Border.Render(body)
}

// Run drives a bubbletea program off statuses until the channel closes or
// the user quits. It blocks; the caller should run it in its own goroutine.
func Run(statuses <-chan controller.Status) error {
	program := tea.NewProgram(newModel())

	go func() {
		for s := range statuses {
			program.Send(statusMsg(s))
		}
		program.Send(quitMsg{})
	}()

	_, err := program.Run()
	return err
}
