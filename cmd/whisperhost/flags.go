package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// validateApplyOptions rejects flag combinations before any host state is read.
func validateApplyOptions(opts applyOptions) error {
	if strings.TrimSpace(opts.ConfigPath) == "" {
		return hosterrors.NewValidationError("--config", "config file path is required", nil)
	}

	abs, err := filepath.Abs(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	// a missing config.env is fine: defaults apply and the config_file step creates it
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return hosterrors.NewValidationError("--config", fmt.Sprintf("config path %s is a directory", abs), nil)
	}

	if opts.ManifestPath != "" {
		info, err := os.Stat(opts.ManifestPath)
		if err != nil {
			return hosterrors.NewValidationError("--manifest", fmt.Sprintf("manifest file does not exist: %v", err), err)
		}
		if info.IsDir() {
			return hosterrors.NewValidationError("--manifest", fmt.Sprintf("manifest path %s is a directory", opts.ManifestPath), nil)
		}
	}

	if opts.Timeout < 0 {
		return hosterrors.NewValidationError("--timeout", "timeout must not be negative", nil)
	}

	skipped := make(map[string]bool, len(opts.Skip))
	for _, name := range opts.Skip {
		skipped[name] = true
	}
	for _, name := range opts.Only {
		if skipped[name] {
			return hosterrors.NewValidationError("--only", fmt.Sprintf("step %q is both selected and skipped", name), nil)
		}
	}

	return nil
}

func trimNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
