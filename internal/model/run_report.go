package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrReportFinalized is returned when appending to a finalized report.
var ErrReportFinalized = errors.New("run report already finalized")

// RunReport is the ordered outcome record of one provisioning execution.
// The executor owns it until Finalize; afterwards it is read-only.
type RunReport struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	DryRun      bool
	Interrupted bool
	Success     bool

	results   []StepResult
	warnings  []string
	followUps []string
	finalized bool
}

// NewRunReport creates an empty report stamped with a fresh run id.
func NewRunReport(dryRun bool) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		DryRun:    dryRun,
	}
}

// Append records a step result in execution order.
func (r *RunReport) Append(res StepResult) error {
	if r.finalized {
		return ErrReportFinalized
	}
	r.results = append(r.results, res)
	if res.Outcome == OutcomeApplied && res.FollowUp != "" {
		r.addFollowUp(res.FollowUp)
	}
	return nil
}

// AddWarning records a run-level warning such as an unknown config key.
func (r *RunReport) AddWarning(msg string) error {
	if r.finalized {
		return ErrReportFinalized
	}
	r.warnings = append(r.warnings, msg)
	return nil
}

// AddFollowUp records a manual action the operator must take after the run.
func (r *RunReport) AddFollowUp(msg string) error {
	if r.finalized {
		return ErrReportFinalized
	}
	r.addFollowUp(msg)
	return nil
}

func (r *RunReport) addFollowUp(msg string) {
	for _, existing := range r.followUps {
		if existing == msg {
			return
		}
	}
	r.followUps = append(r.followUps, msg)
}

// MarkInterrupted flags the run as halted by a signal.
func (r *RunReport) MarkInterrupted() {
	if r.finalized {
		return
	}
	r.Interrupted = true
}

// Finalize freezes the report and computes Success.
func (r *RunReport) Finalize() {
	if r.finalized {
		return
	}
	r.Success = !r.Interrupted
	for _, res := range r.results {
		if res.Blocking() {
			r.Success = false
			break
		}
	}
	r.FinishedAt = time.Now()
	r.finalized = true
}

// Finalized reports whether the report is frozen.
func (r *RunReport) Finalized() bool {
	return r.finalized
}

// Results returns a copy of the recorded step results.
func (r *RunReport) Results() []StepResult {
	return append([]StepResult(nil), r.results...)
}

// Warnings returns run-level warnings plus one entry per failed optional step.
func (r *RunReport) Warnings() []string {
	out := append([]string(nil), r.warnings...)
	for _, res := range r.results {
		if res.Warning {
			out = append(out, res.Name+": "+res.Detail)
		}
	}
	return out
}

// FollowUps returns the manual checklist items collected during the run.
func (r *RunReport) FollowUps() []string {
	return append([]string(nil), r.followUps...)
}

// Count returns the number of results with the given outcome.
func (r *RunReport) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Result looks up a step result by name.
func (r *RunReport) Result(name string) (StepResult, bool) {
	for _, res := range r.results {
		if res.Name == name {
			return res, true
		}
	}
	return StepResult{}, false
}

// FirstFailure returns the first required step that failed.
func (r *RunReport) FirstFailure() (StepResult, bool) {
	for _, res := range r.results {
		if res.Blocking() {
			return res, true
		}
	}
	return StepResult{}, false
}

// Duration is the wall time of the run; zero until finalized.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
