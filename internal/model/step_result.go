package model

import (
	"time"
)

// Outcome is the terminal classification of one step in a run.
type Outcome string

const (
	// OutcomeSkipped means the probe reported the step already satisfied.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeApplied means apply ran and verification passed.
	OutcomeApplied Outcome = "applied"
	// OutcomeFailed covers apply failures, blocked dependencies, timeouts and interrupts.
	OutcomeFailed Outcome = "failed"
	// OutcomeWouldApply is only produced in dry-run mode.
	OutcomeWouldApply Outcome = "would_apply"
)

// IsValid reports whether the outcome is one of the known values.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSkipped, OutcomeApplied, OutcomeFailed, OutcomeWouldApply:
		return true
	default:
		return false
	}
}

// Satisfied reports whether dependents may proceed after this outcome.
func (o Outcome) Satisfied() bool {
	return o == OutcomeSkipped || o == OutcomeApplied || o == OutcomeWouldApply
}

// StepResult captures the outcome of executing a single step.
type StepResult struct {
	Name        string
	Outcome     Outcome
	Detail      string
	ProbeDetail string
	Diff        string
	Hint        string
	FollowUp    string
	Optional    bool
	Warning     bool
	Error       error
	Duration    time.Duration
	StartedAt   time.Time
}

// DurationMs returns the step duration in whole milliseconds.
func (r StepResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Blocking reports whether this result should stop dependents from running.
func (r StepResult) Blocking() bool {
	return r.Outcome == OutcomeFailed && !r.Optional
}
