package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/whisperhost/internal/plugins/internalexec"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// Matcher inspects stdout of a successful command. It returns false with a
// reason when the output does not look like a healthy tool.
type Matcher func(stdout string) (bool, string)

// Contains accepts output containing substr.
func Contains(substr string) Matcher {
	return func(stdout string) (bool, string) {
		if strings.Contains(stdout, substr) {
			return true, ""
		}
		return false, fmt.Sprintf("output does not contain %s", substr)
	}
}

// NonEmpty accepts any non-blank output.
func NonEmpty() Matcher {
	return func(stdout string) (bool, string) {
		if strings.TrimSpace(stdout) != "" {
			return true, ""
		}
		return false, "empty output"
	}
}

// HasField accepts whitespace separated output that contains field exactly.
func HasField(field string) Matcher {
	return func(stdout string) (bool, string) {
		for _, f := range strings.Fields(stdout) {
			if f == field {
				return true, ""
			}
		}
		return false, fmt.Sprintf("%q not listed", field)
	}
}

// Command runs a read-only command and classifies its result.
//
// A missing binary and a binary that exits non-zero or prints unexpected
// output are both Unsatisfied, with distinct details. Failure to execute for
// any other reason (permission denied, cancelled) is Unknown with a ProbeError.
type Command struct {
	Step   string
	Runner internalexec.Runner
	Name   string
	Args   []string
	Match  Matcher
}

// Probe implements Probe.
func (c Command) Probe(ctx context.Context) Result {
	line := internalexec.CommandLine(c.Name, c.Args...)

	res, err := c.Runner.Run(ctx, c.Name, c.Args...)
	if err != nil {
		if internalexec.IsNotFound(err) {
			return Missing("command not found: %s", c.Name)
		}
		return Failed(hosterrors.NewProbeError(c.Step, line, err), "%s could not run: %v", line, err)
	}

	if !res.Success() {
		out := res.PrimaryOutput()
		if out == "" {
			return Missing("%s exited with code %d", line, res.ExitCode)
		}
		return Missing("%s exited with code %d: %s", line, res.ExitCode, firstLine(out))
	}

	if c.Match != nil {
		if ok, reason := c.Match(res.Stdout); !ok {
			return Missing("unexpected output from %s: %s", line, reason)
		}
	}

	if out := firstLine(res.Stdout); out != "" {
		return Ok("%s", out)
	}
	return Ok("%s succeeded", line)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}
