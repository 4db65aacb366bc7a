package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
)

// StepStartMsg indicates a step has started probing.
type StepStartMsg struct {
	Name string
	Time time.Time
}

// StepCompleteMsg reports a step's terminal result.
type StepCompleteMsg struct {
	Result model.StepResult
}

// RunFinishedMsg is sent once the executor returns; the program quits on it.
type RunFinishedMsg struct{}

type tickMsg struct{}

// Model is the Bubbletea state for the live provisioning view.
type Model struct {
	title     string
	dryRun    bool
	order     []string
	results   map[string]model.StepResult
	running   string
	total     int
	done      int
	failed    int
	warnings  int
	finished  bool
	cancelled bool
	onCancel  func()
}

// NewModel tracks the steps in order. onCancel is invoked when the operator
// presses Ctrl+C, since the terminal is in raw mode and no SIGINT arrives.
func NewModel(title string, order []string, dryRun bool, onCancel func()) Model {
	return Model{
		title:    title,
		dryRun:   dryRun,
		order:    append([]string(nil), order...),
		results:  make(map[string]model.StepResult, len(order)),
		total:    len(order),
		onCancel: onCancel,
	}
}

// Init starts the Bubbletea program.
func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

// TotalSteps returns the number of steps tracked.
func (m Model) TotalSteps() int {
	return m.total
}

// DoneSteps returns the number of steps with a terminal outcome.
func (m Model) DoneSteps() int {
	return m.done
}

// IsFinished reports whether the run has ended.
func (m Model) IsFinished() bool {
	return m.finished
}

// Cancelled reports whether the operator interrupted the run.
func (m Model) Cancelled() bool {
	return m.cancelled
}

func (m *Model) ensureStep(name string) {
	for _, existing := range m.order {
		if existing == name {
			return
		}
	}
	m.order = append(m.order, name)
	m.total++
}
