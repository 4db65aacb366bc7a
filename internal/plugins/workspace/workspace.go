// Package workspaceplugin builds the filesystem steps: the WhisperX working
// directories, config.env, the diarization token check and manifest
// directory steps.
package workspaceplugin

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

// Step names.
const (
	WorkspaceStep = "workspace"
	ConfigStep    = "config_file"
	TokenStep     = "diarization_token"
)

// Subdirectories created under the workspace root.
const (
	AudioDir   = "audio"
	ResultsDir = "results"
)

const dirMode fs.FileMode = 0o755

// Dirs returns the directories the workspace step manages.
func Dirs(root, cacheDir string) []string {
	return []string{
		filepath.Join(root, AudioDir),
		filepath.Join(root, ResultsDir),
		cacheDir,
	}
}

// Workspace creates audio/, results/ and the model cache directory.
func Workspace(root, cacheDir string, timeout time.Duration) engine.Step {
	dirs := Dirs(root, cacheDir)
	probes := make([]probe.Probe, 0, len(dirs))
	for _, dir := range dirs {
		probes = append(probes, probe.WritableDir(WorkspaceStep, dir))
	}
	return engine.Step{
		Name:        WorkspaceStep,
		Description: "working directories under " + root,
		Probe:       probe.All(probes...),
		Apply: func(ctx context.Context) error {
			for _, dir := range dirs {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := makeDir(WorkspaceStep, dir); err != nil {
					return err
				}
			}
			return nil
		},
		Timeout: timeout,
		Hint:    fmt.Sprintf("create the directories manually (try: mkdir -p %s) and check ownership", joinQuoted(dirs)),
	}
}

// ConfigFile writes the default config.env when it is absent. An existing
// file is never modified.
func ConfigFile(path string) engine.Step {
	return engine.Step{
		Name:        ConfigStep,
		Description: "configuration file " + path,
		Probe:       probe.File(ConfigStep, path),
		Apply: func(ctx context.Context) error {
			if _, err := config.EnsureEnvFile(path); err != nil {
				return hosterrors.NewApplyFailure(ConfigStep, reasonFor(err), err, "")
			}
			return nil
		},
		Hint:     fmt.Sprintf("create %s by hand or check that its directory is writable", path),
		FollowUp: fmt.Sprintf("review %s and adjust the model, language and device settings", path),
	}
}

// Token checks that HF_TOKEN is set in the config file. It reads the file at
// probe time so a config created earlier in the same run is seen. There is
// no automatic fix: the token has to come from the operator.
func Token(path string) engine.Step {
	return engine.Step{
		Name:        TokenStep,
		Description: "HuggingFace token for diarization",
		DependsOn:   []string{ConfigStep},
		Probe: probe.Func(func(ctx context.Context) probe.Result {
			env, err := config.LoadEnv(path)
			if err != nil {
				return probe.Failed(hosterrors.NewProbeError(TokenStep, "read "+path, err), "cannot read %s", path)
			}
			if !env.Exists {
				return probe.Missing("%s does not exist", path)
			}
			if !env.TokenConfigured() {
				return probe.Missing("%s is not set in %s", config.KeyHFToken, path)
			}
			return probe.Ok("%s is set", config.KeyHFToken)
		}),
		Optional: true,
		Hint: fmt.Sprintf("set %s in %s (create a token at https://huggingface.co/settings/tokens and accept the pyannote model licenses)",
			config.KeyHFToken, path),
	}
}

// DirectoryOptions configures a manifest directory step.
type DirectoryOptions struct {
	Name      string
	DependsOn []string
	Spec      config.DirectoryStep
	Optional  bool
	Timeout   time.Duration
	Hint      string
}

// Directory creates Spec.Path and enforces its mode when one is given.
func Directory(opts DirectoryOptions) engine.Step {
	spec := opts.Spec
	hint := opts.Hint
	if hint == "" {
		hint = fmt.Sprintf("create the directory manually (try: mkdir -p %q)", spec.Path)
	}
	return engine.Step{
		Name:        opts.Name,
		Description: "directory " + spec.Path,
		DependsOn:   opts.DependsOn,
		Probe: probe.Func(func(ctx context.Context) probe.Result {
			res := probe.Dir(opts.Name, spec.Path).Probe(ctx)
			if res.Status != probe.Satisfied || !spec.ModeSet {
				return res
			}
			info, err := os.Stat(spec.Path)
			if err != nil {
				return probe.Failed(hosterrors.NewProbeError(opts.Name, "stat "+spec.Path, err), "cannot inspect %s", spec.Path)
			}
			if got := info.Mode().Perm(); got != fs.FileMode(spec.Mode).Perm() {
				return probe.Missing("%s has mode %04o (expected %04o)", spec.Path, got, spec.Mode)
			}
			return res
		}),
		Apply: func(ctx context.Context) error {
			if err := makeDir(opts.Name, spec.Path); err != nil {
				return err
			}
			if !spec.ModeSet {
				return nil
			}
			if err := os.Chmod(spec.Path, fs.FileMode(spec.Mode).Perm()); err != nil {
				return hosterrors.NewApplyFailure(opts.Name, reasonFor(err), fmt.Errorf("chmod %s: %w", spec.Path, err), "")
			}
			return nil
		},
		Optional: opts.Optional,
		Timeout:  opts.Timeout,
		Hint:     hint,
	}
}

func makeDir(step, dir string) error {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return hosterrors.NewApplyFailure(step, reasonFor(err), fmt.Errorf("create %s: %w", dir, err), "")
	}
	return nil
}

func reasonFor(err error) hosterrors.ApplyReason {
	if errors.Is(err, fs.ErrPermission) {
		return hosterrors.ReasonPermission
	}
	return hosterrors.ReasonCommandFailed
}

func joinQuoted(paths []string) string {
	out := ""
	for i, p := range paths {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%q", p)
	}
	return out
}
