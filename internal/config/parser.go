package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseManifest loads a host manifest from disk and validates it.
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, hosterrors.NewParseError(path, 0, err)
	}
	return DecodeManifest(path, data)
}

// DecodeManifest parses manifest bytes. Unknown fields are rejected.
func DecodeManifest(path string, data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, hosterrors.NewParseError(path, extractLine(err), err)
	}

	if err := ValidateManifest(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ValidateManifest performs schema and per-step validation.
// Dependency references are resolved later against the built-in catalog.
func ValidateManifest(m *Manifest) error {
	if m == nil {
		return hosterrors.NewValidationError("manifest", "manifest is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(m); err != nil {
		return convertValidationError(err)
	}

	seen := make(map[string]int, len(m.Steps))
	for i, step := range m.Steps {
		if prev, exists := seen[step.ID]; exists {
			return hosterrors.NewValidationError(fieldForStep(i, "id"), fmt.Sprintf("duplicate step id %q (first declared at steps[%d])", step.ID, prev), nil)
		}
		seen[step.ID] = i

		if err := ValidateStep(step); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStep validates a single manifest step including its typed body.
func ValidateStep(step Step) error {
	v := validatorInstance()
	if err := v.Struct(step); err != nil {
		return convertValidationError(err)
	}

	var body any
	switch step.Type {
	case "package":
		body = step.Package
	case "command":
		body = step.Command
	case "directory":
		body = step.Directory
	case "repo":
		body = step.Repo
	case "line":
		body = step.Line
	case "symlink":
		body = step.Symlink
	default:
		return hosterrors.NewValidationError(step.ID, fmt.Sprintf("unknown step type %q", step.Type), nil)
	}

	if isNilBody(body) {
		return hosterrors.NewValidationError(step.ID, step.Type+" configuration is required", nil)
	}
	if err := v.Struct(body); err != nil {
		return convertValidationError(err)
	}
	return nil
}

func isNilBody(body any) bool {
	switch b := body.(type) {
	case *PackageStep:
		return b == nil
	case *CommandStep:
		return b == nil
	case *DirectoryStep:
		return b == nil
	case *RepoStep:
		return b == nil
	case *LineStep:
		return b == nil
	case *SymlinkStep:
		return b == nil
	}
	return body == nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	line, convErr := strconv.Atoi(matches[1])
	if convErr != nil {
		return 0
	}
	return line
}
