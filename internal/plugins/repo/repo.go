package repoplugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/alexisbeaulieu97/whisperhost/internal/config"
	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// Options configures a repository clone step.
type Options struct {
	Name      string
	DependsOn []string
	Spec      config.RepoStep
	Optional  bool
	Timeout   time.Duration
	Hint      string
	// Progress receives git's sideband output during clone.
	Progress io.Writer
}

// State probes whether Spec.Destination is a clone of Spec.URL on the wanted branch.
type State struct {
	Step string
	Spec config.RepoStep
}

// Probe implements probe.Probe.
func (s State) Probe(ctx context.Context) probe.Result {
	if err := ctx.Err(); err != nil {
		return probe.Failed(err, "cancelled")
	}

	dest := s.Spec.Destination
	info, err := os.Stat(dest)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return probe.Missing("repository directory %s does not exist", dest)
	case err != nil:
		return probe.Failed(hosterrors.NewProbeError(s.Step, "stat "+dest, err), "cannot access %s", dest)
	case !info.IsDir():
		return probe.Missing("%s exists but is not a directory", dest)
	}

	repo, err := git.PlainOpen(dest)
	if err != nil {
		return probe.Missing("directory %s exists but is not a git repository", dest)
	}

	if remote, err := repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
		if actual := remote.Config().URLs[0]; actual != s.Spec.URL {
			return probe.Missing("remote URL is %s (expected %s)", actual, s.Spec.URL)
		}
	}

	if s.Spec.Branch != "" {
		head, err := repo.Head()
		if err != nil {
			return probe.Missing("cannot resolve HEAD in %s: %v", dest, err)
		}
		if current := head.Name().Short(); current != s.Spec.Branch {
			return probe.Missing("current branch is %s (expected %s)", current, s.Spec.Branch)
		}
	}

	return probe.Ok("git repository exists at %s", dest)
}

// NewStep builds a step that clones Spec.URL into Spec.Destination.
func NewStep(opts Options) engine.Step {
	state := State{Step: opts.Name, Spec: opts.Spec}
	hint := opts.Hint
	if hint == "" {
		hint = fmt.Sprintf("clone manually (try: git clone %s %s)", opts.Spec.URL, opts.Spec.Destination)
	}
	return engine.Step{
		Name:        opts.Name,
		Description: "clone " + opts.Spec.URL,
		DependsOn:   opts.DependsOn,
		Probe:       state,
		Apply: func(ctx context.Context) error {
			return clone(ctx, opts)
		},
		Optional: opts.Optional,
		Timeout:  opts.Timeout,
		Hint:     hint,
	}
}

func clone(ctx context.Context, opts Options) error {
	spec := opts.Spec

	if state := (State{Step: opts.Name, Spec: spec}).Probe(ctx); state.Status == probe.Satisfied {
		return nil
	}

	// Anything at the destination that is not the wanted clone is moved aside,
	// never deleted.
	if _, err := os.Stat(spec.Destination); err == nil {
		backup := fmt.Sprintf("%s.bak-%d", spec.Destination, time.Now().Unix())
		if err := os.Rename(spec.Destination, backup); err != nil {
			return hosterrors.NewApplyFailure(opts.Name, hosterrors.ReasonPermission, fmt.Errorf("move aside %s: %w", spec.Destination, err), "")
		}
	}

	if err := os.MkdirAll(filepath.Dir(spec.Destination), 0o755); err != nil {
		return hosterrors.NewApplyFailure(opts.Name, hosterrors.ReasonPermission, fmt.Errorf("create parent directory: %w", err), "")
	}

	cloneOpts := &git.CloneOptions{
		URL:      spec.URL,
		Progress: opts.Progress,
	}
	if spec.Depth > 0 {
		cloneOpts.Depth = spec.Depth
	}
	if spec.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(spec.Branch)
		cloneOpts.SingleBranch = true
	}

	if _, err := git.PlainCloneContext(ctx, spec.Destination, false, cloneOpts); err != nil {
		if ctx.Err() != nil {
			_ = os.RemoveAll(spec.Destination)
			return ctx.Err()
		}
		_ = os.RemoveAll(spec.Destination)
		return hosterrors.NewApplyFailure(opts.Name, classifyCloneError(err), fmt.Errorf("clone %s: %w", spec.URL, err), "")
	}
	return nil
}

func classifyCloneError(err error) hosterrors.ApplyReason {
	switch {
	case errors.Is(err, os.ErrPermission):
		return hosterrors.ReasonPermission
	case errors.Is(err, git.ErrRepositoryAlreadyExists):
		return hosterrors.ReasonCommandFailed
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return hosterrors.ReasonNetwork
	}
	return hosterrors.ReasonCommandFailed
}
