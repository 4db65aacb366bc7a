package components

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
)

func TestNewStepList(t *testing.T) {
	t.Parallel()

	t.Run("creates empty step list", func(t *testing.T) {
		t.Parallel()
		sl := NewStepList(nil, map[string]model.StepResult{}, "")
		require.Empty(t, sl.Entries())
	})

	t.Run("marks done, running and pending steps", func(t *testing.T) {
		t.Parallel()
		order := []string{"base_packages", "docker", "workspace"}
		results := map[string]model.StepResult{
			"base_packages": {Name: "base_packages", Outcome: model.OutcomeSkipped},
		}

		entries := NewStepList(order, results, "docker").Entries()
		require.Len(t, entries, 3)

		require.Equal(t, "base_packages", entries[0].Name)
		require.True(t, entries[0].Done)
		require.False(t, entries[0].Running)
		require.Equal(t, model.OutcomeSkipped, entries[0].Result.Outcome)

		require.Equal(t, "docker", entries[1].Name)
		require.True(t, entries[1].Running)
		require.False(t, entries[1].Done)

		require.False(t, entries[2].Done)
		require.False(t, entries[2].Running)
	})

	t.Run("respects provided order", func(t *testing.T) {
		t.Parallel()
		entries := NewStepList([]string{"c", "a", "b"}, nil, "").Entries()
		require.Equal(t, "c", entries[0].Name)
		require.Equal(t, "a", entries[1].Name)
		require.Equal(t, "b", entries[2].Name)
	})

	t.Run("finished step is not running", func(t *testing.T) {
		t.Parallel()
		results := map[string]model.StepResult{"docker": {Outcome: model.OutcomeApplied}}
		entries := NewStepList([]string{"docker"}, results, "docker").Entries()
		require.False(t, entries[0].Running)
	})
}

func TestStepListEntriesReturnsCopy(t *testing.T) {
	t.Parallel()

	sl := NewStepList([]string{"docker"}, nil, "")
	entries := sl.Entries()
	entries[0].Name = "changed"
	require.Equal(t, "docker", sl.Entries()[0].Name)
}
