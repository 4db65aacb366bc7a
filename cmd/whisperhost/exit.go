package main

import (
	"errors"
	"fmt"
	"strings"

	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// Process exit codes.
const (
	exitOK          = 0
	exitStepFailed  = 1
	exitConfigError = 2
	exitCycle       = 3
	exitInterrupted = 130
)

// exitError carries an explicit exit code. Silent errors have already been
// reported to the operator.
type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func silentExit(code int) error {
	return &exitError{code: code, silent: true}
}

func configError(err error) error {
	return &exitError{code: exitConfigError, err: err}
}

// exitCodeFor maps an error returned by a command to the process exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}

	var (
		cycleErr      *hosterrors.CycleDetected
		parseErr      *hosterrors.ParseError
		validationErr *hosterrors.ValidationError
		interrupted   *hosterrors.Interrupted
	)
	switch {
	case errors.As(err, &cycleErr):
		return exitCycle
	case errors.As(err, &parseErr), errors.As(err, &validationErr):
		return exitConfigError
	case errors.As(err, &interrupted):
		return exitInterrupted
	default:
		return exitStepFailed
	}
}

// renderError appends the remediation hint, if any.
func renderError(err error) string {
	msg := "Error: " + err.Error()
	if hint := hosterrors.HintFor(err); hint != "" && !strings.Contains(msg, hint) {
		msg += "\nHint: " + hint
	}
	return msg
}
