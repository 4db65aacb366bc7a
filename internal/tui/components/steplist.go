package components

import (
	"github.com/alexisbeaulieu97/whisperhost/internal/model"
)

// StepEntry is one row of the step list.
type StepEntry struct {
	Name    string
	Running bool
	// Done is false until the step has a terminal outcome.
	Done   bool
	Result model.StepResult
}

// StepList holds the rows in execution order.
type StepList struct {
	entries []StepEntry
}

// NewStepList builds the list from the execution order, the results so far
// and the step currently running.
func NewStepList(order []string, results map[string]model.StepResult, running string) StepList {
	entries := make([]StepEntry, 0, len(order))
	for _, name := range order {
		res, done := results[name]
		entries = append(entries, StepEntry{
			Name:    name,
			Running: !done && name == running,
			Done:    done,
			Result:  res,
		})
	}
	return StepList{entries: entries}
}

// Entries returns a copy of the rows.
func (s StepList) Entries() []StepEntry {
	clone := make([]StepEntry, len(s.entries))
	copy(clone, s.entries)
	return clone
}
