package tui

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
	"github.com/alexisbeaulieu97/whisperhost/internal/tui/components"
)

func TestViewRendersBasicLayout(t *testing.T) {
	m := NewModel("studio-box", []string{"base_packages", "docker", "workspace"}, false, nil)
	m.results["base_packages"] = model.StepResult{Name: "base_packages", Outcome: model.OutcomeSkipped, Detail: "all packages installed: curl"}
	m.done = 1
	m.running = "docker"

	view := m.View()
	require.Contains(t, view, "whisperhost • studio-box")
	require.Contains(t, view, "base_packages: all packages installed: curl")
	require.Contains(t, view, "docker checking…")
	require.Contains(t, view, "workspace")
	require.Contains(t, view, "1/3")
}

func TestViewShowsSummaryWhenFinished(t *testing.T) {
	m := NewModel("", []string{"a", "b"}, true, nil)
	m.done = 2
	m.finished = true

	view := m.View()
	require.Contains(t, view, "host provisioning (dry run)")
	require.Contains(t, view, "Dry run finished")
}

func TestOutcomeIcon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		result   model.StepResult
		expected string
	}{
		{"applied shows checkmark", model.StepResult{Outcome: model.OutcomeApplied}, "✓"},
		{"skipped shows circle-slash", model.StepResult{Outcome: model.OutcomeSkipped}, "⊘"},
		{"would apply shows star", model.StepResult{Outcome: model.OutcomeWouldApply}, "✱"},
		{"failed shows cross", model.StepResult{Outcome: model.OutcomeFailed}, "✗"},
		{"optional failure shows warning", model.StepResult{Outcome: model.OutcomeFailed, Warning: true}, "⚠"},
		{"empty shows ellipsis", model.StepResult{}, "…"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Contains(t, OutcomeIcon(tt.result), tt.expected)
		})
	}
}

func TestEntryIcon(t *testing.T) {
	require.Contains(t, EntryIcon(components.StepEntry{Running: true}), "⏳")
	require.Contains(t, EntryIcon(components.StepEntry{}), "…")
	require.Contains(t, EntryIcon(components.StepEntry{Done: true, Result: model.StepResult{Outcome: model.OutcomeApplied}}), "✓")
}
