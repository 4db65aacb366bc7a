// Package symlinkplugin builds manifest steps that keep a symbolic link
// pointing at a fixed source.
package symlinkplugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexisbeaulieu97/whisperhost/internal/config"
	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// Options configures a symlink step.
type Options struct {
	Name      string
	DependsOn []string
	Spec      config.SymlinkStep
	Optional  bool
	Timeout   time.Duration
	Hint      string
}

// NewStep links Spec.Target to Spec.Source. An existing target is only
// replaced when Spec.Force is set.
func NewStep(opts Options) engine.Step {
	spec := opts.Spec
	hint := opts.Hint
	if hint == "" {
		hint = fmt.Sprintf("remove %s or set force: true on the step", spec.Target)
	}
	return engine.Step{
		Name:        opts.Name,
		Description: fmt.Sprintf("link %s -> %s", spec.Target, spec.Source),
		DependsOn:   opts.DependsOn,
		Probe: probe.Func(func(ctx context.Context) probe.Result {
			return check(opts.Name, spec)
		}),
		Apply: func(ctx context.Context) error {
			return link(opts.Name, spec)
		},
		Optional: opts.Optional,
		Timeout:  opts.Timeout,
		Hint:     hint,
	}
}

func check(name string, spec config.SymlinkStep) probe.Result {
	info, err := os.Lstat(spec.Target)
	if errors.Is(err, fs.ErrNotExist) {
		return probe.Missing("%s does not exist", spec.Target)
	}
	if err != nil {
		return probe.Failed(hosterrors.NewProbeError(name, "lstat "+spec.Target, err), "cannot inspect %s", spec.Target)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return probe.Missing("%s exists and is not a symlink", spec.Target)
	}
	current, err := os.Readlink(spec.Target)
	if err != nil {
		return probe.Failed(hosterrors.NewProbeError(name, "readlink "+spec.Target, err), "cannot read link %s", spec.Target)
	}
	if current != spec.Source {
		return probe.Missing("%s points to %s (expected %s)", spec.Target, current, spec.Source)
	}
	return probe.Ok("%s -> %s", spec.Target, spec.Source)
}

func link(name string, spec config.SymlinkStep) error {
	if err := os.MkdirAll(filepath.Dir(spec.Target), 0o755); err != nil {
		return hosterrors.NewApplyFailure(name, reasonFor(err), fmt.Errorf("create parent of %s: %w", spec.Target, err), "")
	}

	if _, err := os.Lstat(spec.Target); err == nil {
		if !spec.Force {
			return hosterrors.NewApplyFailure(name, hosterrors.ReasonManual,
				fmt.Errorf("%s already exists and force is not set", spec.Target), "")
		}
		if err := os.RemoveAll(spec.Target); err != nil {
			return hosterrors.NewApplyFailure(name, reasonFor(err), fmt.Errorf("remove %s: %w", spec.Target, err), "")
		}
	}

	if err := os.Symlink(spec.Source, spec.Target); err != nil {
		return hosterrors.NewApplyFailure(name, reasonFor(err), fmt.Errorf("link %s: %w", spec.Target, err), "")
	}
	return nil
}

func reasonFor(err error) hosterrors.ApplyReason {
	if errors.Is(err, fs.ErrPermission) {
		return hosterrors.ReasonPermission
	}
	return hosterrors.ReasonCommandFailed
}
