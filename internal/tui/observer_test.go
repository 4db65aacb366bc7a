package tui

import (
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func TestObserverForwardsEvents(t *testing.T) {
	sender := &recordingSender{}
	obs := NewObserver(sender)

	obs.StepStarted("docker")
	obs.StepFinished(model.StepResult{Name: "docker", Outcome: model.OutcomeApplied})

	require.Len(t, sender.msgs, 2)
	start, ok := sender.msgs[0].(StepStartMsg)
	require.True(t, ok)
	require.Equal(t, "docker", start.Name)
	done, ok := sender.msgs[1].(StepCompleteMsg)
	require.True(t, ok)
	require.Equal(t, model.OutcomeApplied, done.Result.Outcome)
}
