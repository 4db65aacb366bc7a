package commandplugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/alexisbeaulieu97/whisperhost/internal/config"
	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
	"github.com/alexisbeaulieu97/whisperhost/internal/plugins/internalexec"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// Options configures a manifest command step.
type Options struct {
	Name      string
	DependsOn []string
	Spec      config.CommandStep
	Optional  bool
	Timeout   time.Duration
	Hint      string
	// Output mirrors the command's output while it runs.
	Output io.Writer
}

// Check is the probe half of a command step: exit 0 means satisfied.
type Check struct {
	Step string
	Spec config.CommandStep
}

// Probe implements probe.Probe.
func (c Check) Probe(ctx context.Context) probe.Result {
	shell, shellArgs, err := determineShell(c.Spec.Shell)
	if err != nil {
		return probe.Failed(hosterrors.NewProbeError(c.Step, c.Spec.Check, err), "cannot determine shell")
	}

	cmd := exec.CommandContext(ctx, shell, append(shellArgs, c.Spec.Check)...)
	cmd.Env = buildEnv(c.Spec.Env)
	cmd.Dir = c.Spec.WorkDir

	res, err := internalexec.RunStreaming(cmd)
	if err == nil {
		return probe.Ok("check %q succeeded", c.Spec.Check)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		detail := fmt.Sprintf("check %q exited with code %d", c.Spec.Check, exitErr.ExitCode())
		if out := res.PrimaryOutput(); out != "" {
			detail += ": " + out
		}
		return probe.Missing("%s", detail)
	}
	if ctx.Err() != nil {
		return probe.Failed(ctx.Err(), "check %q cancelled", c.Spec.Check)
	}
	return probe.Failed(hosterrors.NewProbeError(c.Step, c.Spec.Check, err), "check %q could not run", c.Spec.Check)
}

// NewStep builds a step that runs Spec.Command when Spec.Check fails.
func NewStep(opts Options) engine.Step {
	check := Check{Step: opts.Name, Spec: opts.Spec}
	hint := opts.Hint
	if hint == "" {
		hint = fmt.Sprintf("run %q manually and inspect its output", opts.Spec.Command)
	}
	return engine.Step{
		Name:        opts.Name,
		Description: opts.Spec.Command,
		DependsOn:   opts.DependsOn,
		Probe:       check,
		Apply: func(ctx context.Context) error {
			return run(ctx, opts)
		},
		Optional: opts.Optional,
		Timeout:  opts.Timeout,
		Hint:     hint,
	}
}

func run(ctx context.Context, opts Options) error {
	shell, shellArgs, err := determineShell(opts.Spec.Shell)
	if err != nil {
		return hosterrors.NewApplyFailure(opts.Name, hosterrors.ReasonCommandFailed, err, "")
	}

	cmd := exec.CommandContext(ctx, shell, append(shellArgs, opts.Spec.Command)...)
	cmd.Env = buildEnv(opts.Spec.Env)
	cmd.Dir = opts.Spec.WorkDir
	if opts.Output != nil {
		cmd.Stdout = opts.Output
		cmd.Stderr = opts.Output
	}

	res, err := internalexec.RunStreaming(cmd)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return internalexec.ExitFailure(opts.Name, opts.Spec.Command, res)
	}
	return hosterrors.NewApplyFailure(opts.Name, hosterrors.ReasonCommandFailed, err, "")
}

func determineShell(explicit string) (string, []string, error) {
	if explicit != "" {
		return explicit, []string{"-c"}, nil
	}

	if path, err := exec.LookPath("bash"); err == nil {
		return path, []string{"-c"}, nil
	}

	if path, err := exec.LookPath("sh"); err == nil {
		return path, []string{"-c"}, nil
	}

	return "", nil, fmt.Errorf("no suitable shell found")
}

func buildEnv(custom map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(custom))
	for k := range custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, custom[k]))
	}
	return env
}
