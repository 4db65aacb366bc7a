package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
)

// Hinter is implemented by errors that carry an operator-facing remediation hint.
type Hinter interface {
	Hint() string
}

// HintFor returns the first non-empty hint found while unwrapping err.
func HintFor(err error) string {
	for err != nil {
		if h, ok := err.(Hinter); ok {
			if hint := strings.TrimSpace(h.Hint()); hint != "" {
				return hint
			}
		}
		err = stderrors.Unwrap(err)
	}
	return ""
}

func withHint(msg, hint string) string {
	if hint == "" {
		return msg
	}
	return msg + "\nHint: " + hint
}

// ParseError represents a configuration parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Hint suggests how to fix the file.
func (e *ParseError) Hint() string {
	return fmt.Sprintf("fix the syntax in %s or delete it to regenerate defaults", e.Path)
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Hint points at the offending field.
func (e *ValidationError) Hint() string {
	if e.Field == "" {
		return ""
	}
	return fmt.Sprintf("correct the value of %s", e.Field)
}

// ProbeError means a read-only check could not run at all, e.g. permission denied.
type ProbeError struct {
	StepID string
	Check  string
	Err    error
}

// NewProbeError constructs a ProbeError.
func NewProbeError(stepID, check string, err error) error {
	return &ProbeError{StepID: stepID, Check: check, Err: err}
}

func (e *ProbeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("probe %q for step %s could not run: %v", e.Check, e.StepID, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ProbeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Hint suggests rerunning with enough privileges.
func (e *ProbeError) Hint() string {
	if e != nil && stderrors.Is(e.Err, context.DeadlineExceeded) {
		return "the check did not finish in time; raise the step timeout (settings.timeout or --timeout) and rerun"
	}
	return "rerun with sufficient privileges (try: sudo) and check that the tool is executable"
}

// UnsatisfiedPrecondition means the probe ran and the state is still not ready.
type UnsatisfiedPrecondition struct {
	StepID string
	Detail string
	hint   string
}

// NewUnsatisfiedPrecondition constructs an UnsatisfiedPrecondition.
func NewUnsatisfiedPrecondition(stepID, detail, hint string) error {
	return &UnsatisfiedPrecondition{StepID: stepID, Detail: detail, hint: hint}
}

func (e *UnsatisfiedPrecondition) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("step %s still unsatisfied: %s", e.StepID, e.Detail)
}

// Hint returns the step-specific remediation.
func (e *UnsatisfiedPrecondition) Hint() string {
	return e.hint
}

// ApplyReason classifies why a mutating action failed.
type ApplyReason string

const (
	ReasonCommandFailed ApplyReason = "command_failed"
	ReasonLockHeld      ApplyReason = "lock_held"
	ReasonNetwork       ApplyReason = "network"
	ReasonNoGPU         ApplyReason = "gpu_not_present"
	ReasonPermission    ApplyReason = "permission_denied"
	ReasonTimeout       ApplyReason = "timeout"
	ReasonManual        ApplyReason = "manual_action_required"
)

var reasonHints = map[ApplyReason]string{
	ReasonLockHeld:   "another package manager is running; wait for it to finish (try: sudo lsof /var/lib/dpkg/lock-frontend)",
	ReasonNetwork:    "check network connectivity and mirrors, then rerun",
	ReasonNoGPU:      "no NVIDIA GPU detected; set DEVICE=cpu in the config or install a GPU",
	ReasonPermission: "rerun with root privileges (try: sudo)",
	ReasonTimeout:    "the step exceeded its timeout; rerun or raise --timeout",
}

// ApplyFailure means the side-effecting action itself failed.
type ApplyFailure struct {
	StepID string
	Reason ApplyReason
	Err    error
	hint   string
}

// NewApplyFailure constructs an ApplyFailure with an optional explicit hint.
func NewApplyFailure(stepID string, reason ApplyReason, err error, hint string) error {
	if reason == "" {
		reason = ReasonCommandFailed
	}
	return &ApplyFailure{StepID: stepID, Reason: reason, Err: err, hint: hint}
}

func (e *ApplyFailure) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("apply failed on step %s (%s): %v", e.StepID, e.Reason, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ApplyFailure) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Hint returns the explicit hint or the default for the reason.
func (e *ApplyFailure) Hint() string {
	if e.hint != "" {
		return e.hint
	}
	return reasonHints[e.Reason]
}

// DependencyBlocked means a required upstream step failed.
type DependencyBlocked struct {
	StepID     string
	Dependency string
}

// NewDependencyBlocked constructs a DependencyBlocked error.
func NewDependencyBlocked(stepID, dependency string) error {
	return &DependencyBlocked{StepID: stepID, Dependency: dependency}
}

func (e *DependencyBlocked) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("blocked by dependency %s", e.Dependency)
}

// Hint points the operator at the upstream failure.
func (e *DependencyBlocked) Hint() string {
	return fmt.Sprintf("fix step %s first; this step runs on the next attempt", e.Dependency)
}

// CycleDetected means the step dependency graph is not acyclic.
type CycleDetected struct {
	Cycle []string
}

// NewCycleDetected constructs a CycleDetected error.
func NewCycleDetected(cycle []string) error {
	return &CycleDetected{Cycle: append([]string(nil), cycle...)}
}

func (e *CycleDetected) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Cycle) == 0 {
		return withHint("dependency cycle detected", e.Hint())
	}
	return withHint(fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> ")), e.Hint())
}

// Hint explains how to break the cycle.
func (e *CycleDetected) Hint() string {
	return "break the cycle by removing one of the depends_on references"
}

// Interrupted means a termination signal arrived while the step was running.
type Interrupted struct {
	StepID string
	Err    error
}

// NewInterrupted constructs an Interrupted error.
func NewInterrupted(stepID string, err error) error {
	return &Interrupted{StepID: stepID, Err: err}
}

func (e *Interrupted) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("step %s interrupted", e.StepID)
}

// Unwrap exposes the context error.
func (e *Interrupted) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Hint tells the operator a rerun is safe.
func (e *Interrupted) Hint() string {
	return "rerun the command; completed steps are detected and skipped"
}
