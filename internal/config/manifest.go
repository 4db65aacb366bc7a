package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Built-in defaults for manifest settings.
const (
	DefaultImage         = "ghcr.io/jim60105/whisperx:latest"
	DefaultCUDATestImage = "nvidia/cuda:12.4.1-base-ubuntu22.04"
	DefaultDriverPackage = "nvidia-driver-550"
	DefaultCUDAPackage   = "nvidia-cuda-toolkit"
	DefaultCacheDir      = "~/whisperx"
)

// DefaultPackages are the base OS packages installed before anything else.
var DefaultPackages = []string{
	"ca-certificates",
	"curl",
	"gnupg",
	"lsb-release",
	"pciutils",
	"ffmpeg",
}

// Manifest is the optional host manifest document.
type Manifest struct {
	Version     string   `yaml:"version,omitempty" validate:"omitempty,semver"`
	Name        string   `yaml:"name,omitempty" validate:"omitempty,max=100"`
	Description string   `yaml:"description,omitempty"`
	Settings    Settings `yaml:"settings,omitempty"`
	Steps       []Step   `yaml:"steps,omitempty" validate:"omitempty,dive"`
}

// Settings overrides the built-in step catalog.
type Settings struct {
	// Timeout is the default per-step timeout in seconds.
	Timeout         int      `yaml:"timeout,omitempty" validate:"omitempty,min=1,max=360000"`
	Workspace       string   `yaml:"workspace,omitempty" validate:"omitempty,abs_or_home_path"`
	CacheDir        string   `yaml:"cache_dir,omitempty" validate:"omitempty,abs_or_home_path"`
	Image           string   `yaml:"image,omitempty" validate:"omitempty,image_ref"`
	CUDATestImage   string   `yaml:"cuda_test_image,omitempty" validate:"omitempty,image_ref"`
	DriverPackage   string   `yaml:"driver_package,omitempty" validate:"omitempty,apt_package"`
	CUDAPackage     string   `yaml:"cuda_package,omitempty" validate:"omitempty,apt_package"`
	Packages        []string `yaml:"packages,omitempty" validate:"omitempty,dive,apt_package"`
	Sudo            *bool    `yaml:"sudo,omitempty"`
	GPUTestOptional *bool    `yaml:"gpu_test_optional,omitempty"`
}

// WithDefaults fills every unset setting from the built-in defaults.
func (s Settings) WithDefaults() Settings {
	out := s
	if out.CacheDir == "" {
		out.CacheDir = DefaultCacheDir
	}
	if out.Image == "" {
		out.Image = DefaultImage
	}
	if out.CUDATestImage == "" {
		out.CUDATestImage = DefaultCUDATestImage
	}
	if out.DriverPackage == "" {
		out.DriverPackage = DefaultDriverPackage
	}
	if out.CUDAPackage == "" {
		out.CUDAPackage = DefaultCUDAPackage
	}
	if len(out.Packages) == 0 {
		out.Packages = append([]string(nil), DefaultPackages...)
	}
	if out.Sudo == nil {
		out.Sudo = boolPtr(true)
	}
	if out.GPUTestOptional == nil {
		out.GPUTestOptional = boolPtr(true)
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

// Step describes an extra manifest step appended after the built-in catalog.
type Step struct {
	ID        string   `yaml:"id" validate:"required,step_id"`
	Name      string   `yaml:"name,omitempty"`
	Type      string   `yaml:"type" validate:"required,oneof=package command directory repo line symlink"`
	DependsOn []string `yaml:"depends_on,omitempty" validate:"omitempty,dive,step_id"`
	Optional  bool     `yaml:"optional,omitempty"`
	Timeout   int      `yaml:"timeout,omitempty" validate:"omitempty,min=1,max=360000"`
	Hint      string   `yaml:"hint,omitempty"`

	Package   *PackageStep   `yaml:",inline,omitempty"`
	Command   *CommandStep   `yaml:",inline,omitempty"`
	Directory *DirectoryStep `yaml:",inline,omitempty"`
	Repo      *RepoStep      `yaml:",inline,omitempty"`
	Line      *LineStep      `yaml:",inline,omitempty"`
	Symlink   *SymlinkStep   `yaml:",inline,omitempty"`
}

// UnmarshalYAML decodes the type-specific body next to the common fields.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type baseStep struct {
		ID        string   `yaml:"id"`
		Name      string   `yaml:"name"`
		Type      string   `yaml:"type"`
		DependsOn []string `yaml:"depends_on"`
		Optional  bool     `yaml:"optional"`
		Timeout   int      `yaml:"timeout"`
		Hint      string   `yaml:"hint"`
	}

	var base baseStep
	if err := value.Decode(&base); err != nil {
		return err
	}

	*s = Step{
		ID:        base.ID,
		Name:      base.Name,
		Type:      base.Type,
		DependsOn: append([]string(nil), base.DependsOn...),
		Optional:  base.Optional,
		Timeout:   base.Timeout,
		Hint:      base.Hint,
	}

	switch base.Type {
	case "package":
		var pkg PackageStep
		if err := value.Decode(&pkg); err != nil {
			return err
		}
		s.Package = &pkg
	case "command":
		var cmd CommandStep
		if err := value.Decode(&cmd); err != nil {
			return err
		}
		s.Command = &cmd
	case "directory":
		var dir DirectoryStep
		if err := value.Decode(&dir); err != nil {
			return err
		}
		dir.ModeSet = hasYAMLKey(value, "mode")
		s.Directory = &dir
	case "repo":
		var repo RepoStep
		if err := value.Decode(&repo); err != nil {
			return err
		}
		s.Repo = &repo
	case "line":
		var line LineStep
		if err := value.Decode(&line); err != nil {
			return err
		}
		s.Line = &line
	case "symlink":
		var link SymlinkStep
		if err := value.Decode(&link); err != nil {
			return err
		}
		s.Symlink = &link
	}

	return nil
}

// DisplayName returns Name, falling back to ID.
func (s Step) DisplayName() string {
	if strings.TrimSpace(s.Name) != "" {
		return s.Name
	}
	return s.ID
}

// PackageStep installs apt packages.
type PackageStep struct {
	Packages []string `yaml:"packages" validate:"required,min=1,dive,apt_package"`
}

// CommandStep runs Command through the shell when Check exits non-zero.
type CommandStep struct {
	Command string            `yaml:"command" validate:"required,min=1"`
	Check   string            `yaml:"check" validate:"required,min=1"`
	Shell   string            `yaml:"shell,omitempty"`
	WorkDir string            `yaml:"workdir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// DirectoryStep ensures a directory exists.
type DirectoryStep struct {
	Path    string `yaml:"path" validate:"required,abs_or_home_path"`
	Mode    uint32 `yaml:"mode,omitempty" validate:"omitempty,max=4095"`
	ModeSet bool   `yaml:"-"`
}

// RepoStep clones a git repository.
type RepoStep struct {
	URL         string `yaml:"url" validate:"required,url"`
	Destination string `yaml:"destination" validate:"required,abs_or_home_path"`
	Branch      string `yaml:"branch,omitempty"`
	Depth       int    `yaml:"depth,omitempty" validate:"omitempty,min=0"`
}

// LineStep ensures Line is present in File, or that lines matching Match
// are absent when State is "absent". With Match set, a present line replaces
// the matching line instead of being appended.
type LineStep struct {
	File              string `yaml:"file" validate:"required,abs_or_home_path"`
	Line              string `yaml:"line,omitempty" validate:"required_unless=State absent"`
	Match             string `yaml:"match,omitempty" validate:"required_if=State absent,omitempty,regex"`
	State             string `yaml:"state,omitempty" validate:"omitempty,oneof=present absent"`
	OnMultipleMatches string `yaml:"on_multiple_matches,omitempty" validate:"omitempty,oneof=first all error"`
	Backup            bool   `yaml:"backup,omitempty"`
	Encoding          string `yaml:"encoding,omitempty" validate:"omitempty,oneof=utf-8 utf8 latin-1 latin1 iso-8859-1 windows-1252 utf-16 utf-16le utf-16be"`
}

// SymlinkStep points Target at Source.
type SymlinkStep struct {
	Source string `yaml:"source" validate:"required"`
	Target string `yaml:"target" validate:"required,abs_or_home_path"`
	Force  bool   `yaml:"force,omitempty"`
}

func hasYAMLKey(node *yaml.Node, key string) bool {
	if node == nil || node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i < len(node.Content); i += 2 {
		if strings.EqualFold(node.Content[i].Value, key) {
			return true
		}
	}
	return false
}
