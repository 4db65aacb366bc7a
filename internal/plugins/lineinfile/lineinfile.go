// Package lineinfileplugin builds manifest steps that keep a single line of a
// text file in the desired state, such as an entry in /etc/environment or a
// daemon option.
package lineinfileplugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/whisperhost/internal/config"
	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
	"github.com/alexisbeaulieu97/whisperhost/pkg/diff"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

const (
	statePresent = "present"
	stateAbsent  = "absent"
)

// Options configures a line step.
type Options struct {
	Name      string
	DependsOn []string
	Spec      config.LineStep
	Optional  bool
	Timeout   time.Duration
	Hint      string
	// Now stamps backup file names. Defaults to time.Now.
	Now func() time.Time
}

// plan is the computed change for the current file contents.
type plan struct {
	state   *fileState
	lines   []string
	content string
	action  string
}

func (p plan) changed() bool {
	return p.action != ""
}

// NewStep returns a step whose probe reports whether the file already holds
// the desired line and whose apply rewrites the file atomically.
func NewStep(opts Options) engine.Step {
	spec := opts.Spec
	if spec.State == "" {
		spec.State = statePresent
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	hint := opts.Hint
	if hint == "" {
		hint = fmt.Sprintf("edit %s by hand or rerun with permission to write it", spec.File)
	}

	description := fmt.Sprintf("line in %s", spec.File)
	if spec.State == stateAbsent {
		description = fmt.Sprintf("lines matching %q absent from %s", spec.Match, spec.File)
	}

	return engine.Step{
		Name:        opts.Name,
		Description: description,
		DependsOn:   opts.DependsOn,
		Probe: probe.Func(func(ctx context.Context) probe.Result {
			p, err := evaluate(ctx, spec)
			if err != nil {
				return probe.Failed(hosterrors.NewProbeError(opts.Name, "inspect "+spec.File, err), "cannot inspect %s: %v", spec.File, err)
			}
			if !p.changed() {
				if spec.State == stateAbsent {
					return probe.Ok("no lines matching %q in %s", spec.Match, spec.File)
				}
				return probe.Ok("%s contains the line", spec.File)
			}
			res := probe.Missing("%s: line needs %s", spec.File, p.action)
			res.Diff = diff.Lines([]byte(joinLines(p.state.lines, p.state.trailingNewline)), []byte(p.content), spec.File)
			return res
		}),
		Apply: func(ctx context.Context) error {
			p, err := evaluate(ctx, spec)
			if err != nil {
				return hosterrors.NewApplyFailure(opts.Name, hosterrors.ReasonCommandFailed, err, "")
			}
			if !p.changed() {
				return nil
			}
			return write(opts, spec, p)
		},
		Optional: opts.Optional,
		Timeout:  opts.Timeout,
		Hint:     hint,
	}
}

func evaluate(ctx context.Context, spec config.LineStep) (plan, error) {
	if err := ctx.Err(); err != nil {
		return plan{}, err
	}

	var pattern *regexp.Regexp
	if strings.TrimSpace(spec.Match) != "" {
		compiled, err := regexp.Compile(spec.Match)
		if err != nil {
			return plan{}, fmt.Errorf("invalid match pattern: %w", err)
		}
		pattern = compiled
	}

	state, err := readFileState(spec.File, spec.Encoding)
	if err != nil {
		return plan{}, err
	}

	lines := append([]string{}, state.lines...)
	trailing := state.trailingNewline
	action := ""

	switch spec.State {
	case stateAbsent:
		if updated, removed := removeMatchedLines(lines, findMatches(lines, pattern)); removed {
			lines, action = updated, "remove"
		}
	default:
		found := findMatches(lines, pattern)
		switch {
		case pattern != nil && len(found) > 0:
			updated, replaced, err := replaceLines(lines, found, spec.Line, spec.OnMultipleMatches)
			if err != nil {
				return plan{}, err
			}
			if replaced {
				lines, action = updated, "replace"
			}
		default:
			var appended bool
			if lines, appended = appendLineIfMissing(lines, spec.Line); appended {
				action, trailing = "append", true
			}
		}
	}

	content := joinLines(lines, trailing)
	if content == joinLines(state.lines, state.trailingNewline) {
		action = ""
	}
	return plan{state: state, lines: lines, content: content, action: action}, nil
}

func write(opts Options, spec config.LineStep, p plan) error {
	if spec.Backup && p.state.exists {
		if _, err := createBackup(p.state.path, p.state.raw, p.state.perm, opts.Now()); err != nil {
			return hosterrors.NewApplyFailure(opts.Name, reasonFor(err), fmt.Errorf("back up %s: %w", p.state.path, err), "")
		}
	}

	encoded, err := encodeContent(p.content, spec.Encoding)
	if err != nil {
		return hosterrors.NewApplyFailure(opts.Name, hosterrors.ReasonCommandFailed, fmt.Errorf("encode %s: %w", spec.File, err), "")
	}
	if err := writeFileAtomic(p.state.path, encoded, p.state.perm); err != nil {
		return hosterrors.NewApplyFailure(opts.Name, reasonFor(err), fmt.Errorf("write %s: %w", p.state.path, err), "")
	}
	return nil
}

func reasonFor(err error) hosterrors.ApplyReason {
	if errors.Is(err, fs.ErrPermission) {
		return hosterrors.ReasonPermission
	}
	return hosterrors.ReasonCommandFailed
}
