// Package hostplan assembles the built-in WhisperX step catalog and any
// extra manifest steps into the list the engine executes.
package hostplan

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/whisperhost/internal/config"
	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
	commandplugin "github.com/alexisbeaulieu97/whisperhost/internal/plugins/command"
	dockerplugin "github.com/alexisbeaulieu97/whisperhost/internal/plugins/docker"
	"github.com/alexisbeaulieu97/whisperhost/internal/plugins/internalexec"
	lineinfileplugin "github.com/alexisbeaulieu97/whisperhost/internal/plugins/lineinfile"
	nvidiaplugin "github.com/alexisbeaulieu97/whisperhost/internal/plugins/nvidia"
	packageplugin "github.com/alexisbeaulieu97/whisperhost/internal/plugins/package"
	repoplugin "github.com/alexisbeaulieu97/whisperhost/internal/plugins/repo"
	symlinkplugin "github.com/alexisbeaulieu97/whisperhost/internal/plugins/symlink"
	workspaceplugin "github.com/alexisbeaulieu97/whisperhost/internal/plugins/workspace"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// BasePackagesStep installs the OS packages every other step relies on.
const BasePackagesStep = "base_packages"

// GPUSteps are omitted when DEVICE=cpu.
var GPUSteps = []string{
	nvidiaplugin.DriverStep,
	nvidiaplugin.CUDAStep,
	nvidiaplugin.ContainerToolkitStep,
	nvidiaplugin.ContainerTestStep,
}

// Options carries host facts that are not part of the configuration.
type Options struct {
	Runner internalexec.Runner
	// ConfigPath is the config.env the config_file step manages.
	ConfigPath string
	// User is the operator added to the docker group.
	User string
	// Home replaces a leading "~" in configured paths.
	Home string
	// WorkDir is the workspace root when the manifest sets none.
	WorkDir string
	// Output receives streamed output from manifest command and repo steps.
	Output io.Writer
}

// Build returns the steps for env and the optional manifest in declaration
// order: base packages, GPU stack, docker, workspace, config, checks, then
// manifest steps.
func Build(env config.Env, manifest *config.Manifest, opts Options) ([]engine.Step, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("hostplan: runner is required")
	}

	var settings config.Settings
	if manifest != nil {
		settings = manifest.Settings
	}
	settings = settings.WithDefaults()

	workspace := settings.Workspace
	if workspace == "" {
		workspace = opts.WorkDir
	}
	if workspace == "" {
		workspace = "."
	}
	workspace = expandHome(workspace, opts.Home)
	cacheDir := expandHome(settings.CacheDir, opts.Home)
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultEnvFile
	}

	gpu := nvidiaplugin.Options{
		Runner:        opts.Runner,
		DriverPackage: settings.DriverPackage,
		CUDAPackage:   settings.CUDAPackage,
		TestImage:     settings.CUDATestImage,
		TestOptional:  *settings.GPUTestOptional,
	}
	docker := dockerplugin.Options{
		Runner: opts.Runner,
		User:   opts.User,
		Image:  settings.Image,
	}

	steps := []engine.Step{
		packageplugin.NewStep(packageplugin.Options{
			Name:     BasePackagesStep,
			Packages: settings.Packages,
			Runner:   opts.Runner,
		}),
	}
	if env.UsesGPU() {
		steps = append(steps, nvidiaplugin.Driver(gpu), nvidiaplugin.CUDA(gpu))
	}
	steps = append(steps,
		dockerplugin.Engine(withDeps(docker, BasePackagesStep)),
		dockerplugin.Group(docker),
	)
	if env.UsesGPU() {
		steps = append(steps, nvidiaplugin.ContainerToolkit(gpu, dockerplugin.EngineStep))
	}
	steps = append(steps,
		dockerplugin.Image(docker),
		workspaceplugin.Workspace(workspace, cacheDir, 0),
		workspaceplugin.ConfigFile(configPath),
	)
	if env.UsesGPU() {
		steps = append(steps, nvidiaplugin.ContainerTest(gpu))
	}
	if env.EnableDiarization {
		steps = append(steps, workspaceplugin.Token(configPath))
	}

	if manifest == nil {
		return steps, nil
	}

	builtin := make(map[string]bool, len(steps))
	for _, s := range steps {
		builtin[s.Name] = true
	}
	for i, ms := range manifest.Steps {
		if builtin[ms.ID] {
			return nil, hosterrors.NewValidationError(fmt.Sprintf("steps[%d].id", i),
				fmt.Sprintf("%q is a built-in step name", ms.ID), nil)
		}
		step, err := manifestStep(ms, opts)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// DefaultTimeout converts the manifest timeout setting. Zero means the
// executor default.
func DefaultTimeout(manifest *config.Manifest) time.Duration {
	if manifest == nil || manifest.Settings.Timeout <= 0 {
		return 0
	}
	return time.Duration(manifest.Settings.Timeout) * time.Second
}

// Sudo reports whether host commands should run through sudo.
func Sudo(manifest *config.Manifest) bool {
	var settings config.Settings
	if manifest != nil {
		settings = manifest.Settings
	}
	return *settings.WithDefaults().Sudo
}

func withDeps(opts dockerplugin.Options, deps ...string) dockerplugin.Options {
	opts.DependsOn = deps
	return opts
}

func manifestStep(ms config.Step, opts Options) (engine.Step, error) {
	if err := config.ValidateStep(ms); err != nil {
		return engine.Step{}, err
	}
	timeout := time.Duration(ms.Timeout) * time.Second

	var step engine.Step
	switch ms.Type {
	case "package":
		step = packageplugin.NewStep(packageplugin.Options{
			Name:      ms.ID,
			DependsOn: ms.DependsOn,
			Packages:  ms.Package.Packages,
			Runner:    opts.Runner,
			Optional:  ms.Optional,
			Timeout:   timeout,
			Hint:      ms.Hint,
		})
	case "command":
		spec := *ms.Command
		spec.WorkDir = expandHome(spec.WorkDir, opts.Home)
		step = commandplugin.NewStep(commandplugin.Options{
			Name:      ms.ID,
			DependsOn: ms.DependsOn,
			Spec:      spec,
			Optional:  ms.Optional,
			Timeout:   timeout,
			Hint:      ms.Hint,
			Output:    opts.Output,
		})
	case "directory":
		spec := *ms.Directory
		spec.Path = expandHome(spec.Path, opts.Home)
		step = workspaceplugin.Directory(workspaceplugin.DirectoryOptions{
			Name:      ms.ID,
			DependsOn: ms.DependsOn,
			Spec:      spec,
			Optional:  ms.Optional,
			Timeout:   timeout,
			Hint:      ms.Hint,
		})
	case "repo":
		spec := *ms.Repo
		spec.Destination = expandHome(spec.Destination, opts.Home)
		step = repoplugin.NewStep(repoplugin.Options{
			Name:      ms.ID,
			DependsOn: ms.DependsOn,
			Spec:      spec,
			Optional:  ms.Optional,
			Timeout:   timeout,
			Hint:      ms.Hint,
			Progress:  opts.Output,
		})
	case "line":
		spec := *ms.Line
		spec.File = expandHome(spec.File, opts.Home)
		step = lineinfileplugin.NewStep(lineinfileplugin.Options{
			Name:      ms.ID,
			DependsOn: ms.DependsOn,
			Spec:      spec,
			Optional:  ms.Optional,
			Timeout:   timeout,
			Hint:      ms.Hint,
		})
	case "symlink":
		spec := *ms.Symlink
		spec.Source = expandHome(spec.Source, opts.Home)
		spec.Target = expandHome(spec.Target, opts.Home)
		step = symlinkplugin.NewStep(symlinkplugin.Options{
			Name:      ms.ID,
			DependsOn: ms.DependsOn,
			Spec:      spec,
			Optional:  ms.Optional,
			Timeout:   timeout,
			Hint:      ms.Hint,
		})
	default:
		return engine.Step{}, hosterrors.NewValidationError(ms.ID, fmt.Sprintf("unsupported step type %q", ms.Type), nil)
	}

	if ms.Name != "" {
		step.Description = ms.Name
	}
	return step, nil
}

func expandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
