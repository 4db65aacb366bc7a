package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
)

// Update folds executor messages and key presses into the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StepStartMsg:
		return m.stepStarted(msg.Name), nil
	case StepCompleteMsg:
		return m.stepCompleted(msg.Result), nil
	case RunFinishedMsg:
		m.finished, m.running = true, ""
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m = m.cancel()
		}
	case tea.QuitMsg:
		m.finished = true
	}
	return m, nil
}

func (m Model) stepStarted(name string) Model {
	if name != "" {
		m.ensureStep(name)
		m.running = name
	}
	return m
}

// stepCompleted counts each step once even if its result is delivered twice.
func (m Model) stepCompleted(res model.StepResult) Model {
	if res.Name == "" {
		return m
	}
	m.ensureStep(res.Name)
	if _, seen := m.results[res.Name]; !seen {
		m.done++
		if res.Warning {
			m.warnings++
		} else if res.Outcome == model.OutcomeFailed {
			m.failed++
		}
	}
	m.results[res.Name] = res
	if m.running == res.Name {
		m.running = ""
	}
	return m
}

// cancel asks the executor to stop on the first Ctrl+C only.
func (m Model) cancel() Model {
	if m.cancelled {
		return m
	}
	m.cancelled = true
	if m.onCancel != nil {
		m.onCancel()
	}
	return m
}
