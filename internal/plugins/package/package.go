package packageplugin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
	"github.com/alexisbeaulieu97/whisperhost/internal/plugins/internalexec"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

const installedStatus = "install ok installed"

// Packages probes whether every named apt package is installed.
type Packages struct {
	Step   string
	Runner internalexec.Runner
	Names  []string
}

var _ probe.Probe = Packages{}

// Probe implements probe.Probe.
func (p Packages) Probe(ctx context.Context) probe.Result {
	missing, err := p.Missing(ctx)
	if err != nil {
		return probe.Failed(err, "cannot query package status: %v", err)
	}
	if len(missing) == 0 {
		return probe.Ok("all packages installed: %s", strings.Join(p.Names, ", "))
	}
	return probe.Missing("packages not installed: %s", strings.Join(missing, ", "))
}

// Missing returns the packages dpkg does not report as installed.
func (p Packages) Missing(ctx context.Context) ([]string, error) {
	var missing []string
	for _, name := range p.Names {
		res, err := p.Runner.Run(ctx, "dpkg-query", "-W", "-f=${Status}", name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, hosterrors.NewProbeError(p.Step, "dpkg-query", err)
		}
		// dpkg-query exits 1 for packages it has never seen
		if !res.Success() || !strings.Contains(res.Stdout, installedStatus) {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// Install runs apt-get for the packages that are still missing.
func Install(ctx context.Context, pkgs Packages) error {
	missing, err := pkgs.Missing(ctx)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	if err := internalexec.Must(ctx, pkgs.Runner, pkgs.Step, "apt-get", "update", "-q"); err != nil {
		return err
	}
	args := append([]string{"install", "-y", "-q", "--no-install-recommends"}, missing...)
	return internalexec.Must(ctx, pkgs.Runner, pkgs.Step, "apt-get", args...)
}

// Options configures an apt package step.
type Options struct {
	Name      string
	DependsOn []string
	Packages  []string
	Runner    internalexec.Runner
	Optional  bool
	Timeout   time.Duration
	Hint      string
}

// NewStep builds a step that installs missing apt packages.
func NewStep(opts Options) engine.Step {
	pkgs := Packages{Step: opts.Name, Runner: opts.Runner, Names: opts.Packages}
	hint := opts.Hint
	if hint == "" {
		hint = fmt.Sprintf("install manually (try: sudo apt-get install -y %s)", strings.Join(opts.Packages, " "))
	}
	return engine.Step{
		Name:        opts.Name,
		Description: "apt packages: " + strings.Join(opts.Packages, ", "),
		DependsOn:   opts.DependsOn,
		Probe:       pkgs,
		Apply: func(ctx context.Context) error {
			return Install(ctx, pkgs)
		},
		Optional: opts.Optional,
		Timeout:  opts.Timeout,
		Hint:     hint,
	}
}
