package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
	"github.com/alexisbeaulieu97/whisperhost/internal/model"
)

// Sender is the part of *tea.Program the observer needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Observer forwards executor events to a running program.
type Observer struct {
	sender Sender
}

var _ engine.Observer = (*Observer)(nil)

// NewObserver wraps a program (or any Sender).
func NewObserver(sender Sender) *Observer {
	return &Observer{sender: sender}
}

// StepStarted implements engine.Observer.
func (o *Observer) StepStarted(name string) {
	o.sender.Send(StepStartMsg{Name: name, Time: time.Now()})
}

// StepFinished implements engine.Observer.
func (o *Observer) StepFinished(result model.StepResult) {
	o.sender.Send(StepCompleteMsg{Result: result})
}
