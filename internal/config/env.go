package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

const (
	// DefaultEnvFile is the config path used when --config is not given.
	DefaultEnvFile = "config.env"
	// TokenPlaceholder is the HF_TOKEN value written into a fresh config.
	TokenPlaceholder = "your_token_here"
)

// Recognised config.env keys.
const (
	KeyHFToken           = "HF_TOKEN"
	KeyWhisperModel      = "WHISPER_MODEL"
	KeyLanguage          = "LANGUAGE"
	KeyBatchSize         = "BATCH_SIZE"
	KeyDevice            = "DEVICE"
	KeyEnableDiarization = "ENABLE_DIARIZATION"
	KeyMinSpeakers       = "MIN_SPEAKERS"
	KeyMaxSpeakers       = "MAX_SPEAKERS"
	KeyComputeType       = "COMPUTE_TYPE"
	KeyVADMethod         = "VAD_METHOD"
	KeyChunkSize         = "CHUNK_SIZE"
)

// KnownKeys lists the recognised keys in template order.
var KnownKeys = []string{
	KeyHFToken,
	KeyWhisperModel,
	KeyLanguage,
	KeyBatchSize,
	KeyDevice,
	KeyEnableDiarization,
	KeyMinSpeakers,
	KeyMaxSpeakers,
	KeyComputeType,
	KeyVADMethod,
	KeyChunkSize,
}

// DefaultEnvTemplate is written verbatim when the config file is absent.
const DefaultEnvTemplate = `# WhisperX configuration
# HuggingFace token for speaker diarization (create one at https://huggingface.co/settings/tokens)
# Accept the model licenses first:
# https://huggingface.co/pyannote/speaker-diarization-3.1
# https://huggingface.co/pyannote/segmentation-3.0
HF_TOKEN=your_token_here

# Whisper model (tiny, base, small, medium, large-v1, large-v2, large-v3)
WHISPER_MODEL=large-v3

# Audio language (ru, en, auto for detection)
LANGUAGE=ru

# Batch size (larger is faster but uses more GPU memory)
BATCH_SIZE=16

# Compute device (cuda or cpu)
DEVICE=cuda

# Speaker diarization
ENABLE_DIARIZATION=true

# Minimum number of speakers (leave empty for auto detection)
MIN_SPEAKERS=

# Maximum number of speakers (leave empty for auto detection)
MAX_SPEAKERS=

# Compute type (float16, float32, int8)
COMPUTE_TYPE=float16

# VAD method for speech detection (pyannote, silero)
VAD_METHOD=pyannote

# Chunk size in seconds
CHUNK_SIZE=30
`

// Env is the immutable, typed view of config.env handed to step constructors.
type Env struct {
	HFToken           string `env:"HF_TOKEN"`
	WhisperModel      string `env:"WHISPER_MODEL" validate:"required"`
	Language          string `env:"LANGUAGE" validate:"required"`
	BatchSize         int    `env:"BATCH_SIZE" validate:"min=1,max=1024"`
	Device            string `env:"DEVICE" validate:"oneof=cuda cpu"`
	EnableDiarization bool   `env:"ENABLE_DIARIZATION"`
	// MinSpeakers and MaxSpeakers are zero when left empty.
	MinSpeakers int    `env:"MIN_SPEAKERS" validate:"min=0"`
	MaxSpeakers int    `env:"MAX_SPEAKERS" validate:"min=0"`
	ComputeType string `env:"COMPUTE_TYPE" validate:"oneof=float16 float32 int8"`
	VADMethod   string `env:"VAD_METHOD" validate:"oneof=pyannote silero"`
	ChunkSize   int    `env:"CHUNK_SIZE" validate:"min=1,max=3600"`

	// Path is the file the values were read from.
	Path string `env:"-"`
	// Exists is false when the file was absent and defaults were used.
	Exists bool `env:"-"`

	warnings []string
}

// DefaultEnv returns the documented defaults.
func DefaultEnv() Env {
	return Env{
		HFToken:           TokenPlaceholder,
		WhisperModel:      "large-v3",
		Language:          "ru",
		BatchSize:         16,
		Device:            "cuda",
		EnableDiarization: true,
		ComputeType:       "float16",
		VADMethod:         "pyannote",
		ChunkSize:         30,
	}
}

// UsesGPU reports whether GPU provisioning steps apply.
func (e Env) UsesGPU() bool {
	return e.Device == "cuda"
}

// TokenConfigured reports whether HF_TOKEN holds something other than the placeholder.
func (e Env) TokenConfigured() bool {
	token := strings.TrimSpace(e.HFToken)
	return token != "" && token != TokenPlaceholder
}

// Warnings returns non-fatal findings from loading, such as unknown keys.
func (e Env) Warnings() []string {
	return append([]string(nil), e.warnings...)
}

// FollowUps returns manual checklist items implied by the loaded values.
func (e Env) FollowUps() []string {
	if e.EnableDiarization && !e.TokenConfigured() {
		return []string{fmt.Sprintf("edit %s and set %s to your HuggingFace token (diarization is enabled)", e.displayPath(), KeyHFToken)}
	}
	return nil
}

func (e Env) displayPath() string {
	if e.Path == "" {
		return DefaultEnvFile
	}
	return e.Path
}

// LoadEnv reads config.env. A missing file yields the defaults with
// Exists=false. Unknown keys and the placeholder token are warnings;
// malformed or out-of-range values are a ValidationError.
func LoadEnv(path string) (Env, error) {
	env := DefaultEnv()
	env.Path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		env.addPlaceholderWarning()
		return env, nil
	}
	if err != nil {
		return Env{}, hosterrors.NewParseError(path, 0, err)
	}
	env.Exists = true

	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		IgnoreContinuation:      true,
		SkipUnrecognizableLines: true,
		KeyValueDelimiters:      "=",
	}, data)
	if err != nil {
		return Env{}, hosterrors.NewParseError(path, 0, err)
	}

	for _, section := range file.Sections() {
		if section.Name() != ini.DefaultSection {
			env.warn(fmt.Sprintf("%s: section [%s] is not recognised and was ignored", path, section.Name()))
		}
	}

	root := file.Section(ini.DefaultSection)
	known := make(map[string]bool, len(KnownKeys))
	for _, k := range KnownKeys {
		known[k] = true
	}
	for _, name := range root.KeyStrings() {
		if !known[name] {
			env.warn(fmt.Sprintf("%s: unknown key %s ignored", path, name))
		}
	}

	if err := env.assign(root); err != nil {
		return Env{}, err
	}
	if err := env.Validate(); err != nil {
		return Env{}, err
	}
	env.addPlaceholderWarning()
	return env, nil
}

func (e *Env) assign(section *ini.Section) error {
	str := func(key string, dst *string) {
		if section.HasKey(key) {
			if v := strings.TrimSpace(section.Key(key).String()); v != "" {
				*dst = v
			}
		}
	}
	num := func(key string, dst *int, emptyValue int) error {
		if !section.HasKey(key) {
			return nil
		}
		raw := strings.TrimSpace(section.Key(key).String())
		if raw == "" {
			*dst = emptyValue
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return hosterrors.NewValidationError(key, fmt.Sprintf("%s must be an integer (got %q)", key, raw), err)
		}
		*dst = n
		return nil
	}

	if section.HasKey(KeyHFToken) {
		e.HFToken = strings.TrimSpace(section.Key(KeyHFToken).String())
	}
	str(KeyWhisperModel, &e.WhisperModel)
	str(KeyLanguage, &e.Language)
	str(KeyDevice, &e.Device)
	str(KeyComputeType, &e.ComputeType)
	str(KeyVADMethod, &e.VADMethod)

	e.Device = strings.ToLower(e.Device)

	if section.HasKey(KeyEnableDiarization) {
		raw := strings.TrimSpace(section.Key(KeyEnableDiarization).String())
		if raw != "" {
			b, err := strconv.ParseBool(strings.ToLower(raw))
			if err != nil {
				return hosterrors.NewValidationError(KeyEnableDiarization, fmt.Sprintf("%s must be true or false (got %q)", KeyEnableDiarization, raw), err)
			}
			e.EnableDiarization = b
		}
	}

	defaults := DefaultEnv()
	for _, n := range []struct {
		key   string
		dst   *int
		empty int
	}{
		{KeyBatchSize, &e.BatchSize, defaults.BatchSize},
		{KeyMinSpeakers, &e.MinSpeakers, 0},
		{KeyMaxSpeakers, &e.MaxSpeakers, 0},
		{KeyChunkSize, &e.ChunkSize, defaults.ChunkSize},
	} {
		if err := num(n.key, n.dst, n.empty); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks value ranges and the speaker bounds.
func (e Env) Validate() error {
	if err := validatorInstance().Struct(e); err != nil {
		return convertValidationError(err)
	}
	if e.MinSpeakers > 0 && e.MaxSpeakers > 0 && e.MaxSpeakers < e.MinSpeakers {
		return hosterrors.NewValidationError(KeyMaxSpeakers, fmt.Sprintf("%s (%d) is lower than %s (%d)", KeyMaxSpeakers, e.MaxSpeakers, KeyMinSpeakers, e.MinSpeakers), nil)
	}
	return nil
}

func (e *Env) warn(msg string) {
	for _, existing := range e.warnings {
		if existing == msg {
			return
		}
	}
	e.warnings = append(e.warnings, msg)
}

func (e *Env) addPlaceholderWarning() {
	if strings.TrimSpace(e.HFToken) == TokenPlaceholder {
		e.warn(fmt.Sprintf("%s: %s is still the placeholder %q", e.displayPath(), KeyHFToken, TokenPlaceholder))
	}
}

// EnsureEnvFile writes DefaultEnvTemplate to path when nothing exists there.
// An existing file is never opened for writing.
func EnsureEnvFile(path string) (bool, error) {
	if _, err := os.Lstat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.WriteString(DefaultEnvTemplate); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", path, err)
	}
	return true, nil
}
