package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
)

func TestUpdateCountsOutcomes(t *testing.T) {
	m := NewModel("", []string{"gpu_driver", "cuda_toolkit", "gpu_container_test"}, false, nil)

	for _, res := range []model.StepResult{
		{Name: "gpu_driver", Outcome: model.OutcomeFailed},
		{Name: "cuda_toolkit", Outcome: model.OutcomeFailed, Detail: "blocked by dependency gpu_driver"},
		{Name: "gpu_container_test", Outcome: model.OutcomeFailed, Optional: true, Warning: true},
	} {
		updated, _ := m.Update(StepCompleteMsg{Result: res})
		m = updated.(Model)
	}

	require.Equal(t, 3, m.done)
	require.Equal(t, 2, m.failed)
	require.Equal(t, 1, m.warnings)
}

func TestUpdateIgnoresDuplicateCompletion(t *testing.T) {
	m := NewModel("", []string{"docker"}, false, nil)
	res := model.StepResult{Name: "docker", Outcome: model.OutcomeSkipped}

	updated, _ := m.Update(StepCompleteMsg{Result: res})
	updated, _ = updated.(Model).Update(StepCompleteMsg{Result: res})
	require.Equal(t, 1, updated.(Model).done)
}

func TestUpdateRunFinishedQuits(t *testing.T) {
	m := NewModel("", nil, false, nil)
	updated, cmd := m.Update(RunFinishedMsg{})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.True(t, updated.(Model).IsFinished())
}

func TestUpdateCtrlCCancelsOnce(t *testing.T) {
	calls := 0
	m := NewModel("", nil, false, func() { calls++ })

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.Nil(t, cmd)
	m = updated.(Model)
	require.True(t, m.Cancelled())

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.True(t, updated.(Model).Cancelled())
	require.Equal(t, 1, calls)
}

func TestUpdateHandlesQuitMsg(t *testing.T) {
	m := NewModel("", nil, false, nil)
	updated, cmd := m.Update(tea.QuitMsg{})
	require.Nil(t, cmd)
	require.True(t, updated.(Model).IsFinished())
}
