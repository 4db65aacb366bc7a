package internalexec

import (
	"context"
	"fmt"
	"strings"

	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

var outputReasons = []struct {
	needle string
	reason hosterrors.ApplyReason
}{
	{"Could not get lock", hosterrors.ReasonLockHeld},
	{"are you root", hosterrors.ReasonPermission},
	{"is another process using it", hosterrors.ReasonLockHeld},
	{"Temporary failure resolving", hosterrors.ReasonNetwork},
	{"Failed to fetch", hosterrors.ReasonNetwork},
	{"Could not resolve host", hosterrors.ReasonNetwork},
	{"TLS handshake timeout", hosterrors.ReasonNetwork},
	{"dial tcp", hosterrors.ReasonNetwork},
	{"No devices were found", hosterrors.ReasonNoGPU},
	{"Permission denied", hosterrors.ReasonPermission},
	{"permission denied while trying to connect to the Docker daemon", hosterrors.ReasonPermission},
	{"a password is required", hosterrors.ReasonPermission},
}

// ClassifyOutput maps well-known package manager and docker messages to a reason.
func ClassifyOutput(output string) hosterrors.ApplyReason {
	for _, candidate := range outputReasons {
		if strings.Contains(output, candidate.needle) {
			return candidate.reason
		}
	}
	return hosterrors.ReasonCommandFailed
}

// ExitFailure converts a non-zero exit into an ApplyFailure.
func ExitFailure(stepID, line string, res Result) error {
	reason := ClassifyOutput(res.Stderr + "\n" + res.Stdout)
	err := fmt.Errorf("%s exited with code %d", line, res.ExitCode)
	if msg := lastLine(res.PrimaryOutput()); msg != "" {
		err = fmt.Errorf("%s exited with code %d: %s", line, res.ExitCode, msg)
	}
	return hosterrors.NewApplyFailure(stepID, reason, err, "")
}

// Must runs a mutating command and returns an ApplyFailure when it cannot
// start or exits non-zero. Context errors are returned unchanged.
func Must(ctx context.Context, r Runner, stepID, name string, args ...string) error {
	line := CommandLine(name, args...)
	res, err := r.Run(ctx, name, args...)
	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil && IsNotFound(err):
		return hosterrors.NewApplyFailure(stepID, hosterrors.ReasonCommandFailed,
			fmt.Errorf("%s: command not found", name), fmt.Sprintf("install %s or check PATH", name))
	case err != nil && IsPermission(err):
		return hosterrors.NewApplyFailure(stepID, hosterrors.ReasonPermission, fmt.Errorf("%s: %w", line, err), "")
	case err != nil:
		return hosterrors.NewApplyFailure(stepID, hosterrors.ReasonCommandFailed, fmt.Errorf("%s: %w", line, err), "")
	case !res.Success():
		return ExitFailure(stepID, line, res)
	}
	return nil
}

// lastLine returns the last non-empty line, where apt and docker put the error.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
