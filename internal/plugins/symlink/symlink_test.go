package symlinkplugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/whisperhost/internal/config"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

func fixture(t *testing.T) (source, target string) {
	t.Helper()
	source = filepath.Join(t.TempDir(), "whisperx")
	require.NoError(t, os.WriteFile(source, []byte("#!/bin/sh\n"), 0o755))
	return source, filepath.Join(t.TempDir(), "bin", "whisperx")
}

func TestStep_CreatesLink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source, target := fixture(t)
	step := NewStep(Options{Name: "whisper_bin", Spec: config.SymlinkStep{Source: source, Target: target}})

	res := step.Probe.Probe(ctx)
	require.Equal(t, probe.Unsatisfied, res.Status)
	require.Contains(t, res.Detail, "does not exist")

	require.NoError(t, step.Apply(ctx))

	got, err := os.Readlink(target)
	require.NoError(t, err)
	require.Equal(t, source, got)
	require.Equal(t, probe.Satisfied, step.Probe.Probe(ctx).Status)
}

func TestStep_WrongLink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source, target := fixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.Symlink("/opt/old/whisperx", target))

	res := NewStep(Options{Name: "l", Spec: config.SymlinkStep{Source: source, Target: target}}).Probe.Probe(ctx)
	require.Equal(t, probe.Unsatisfied, res.Status)
	require.Contains(t, res.Detail, "points to /opt/old/whisperx")

	forced := NewStep(Options{Name: "l", Spec: config.SymlinkStep{Source: source, Target: target, Force: true}})
	require.NoError(t, forced.Apply(ctx))
	require.Equal(t, probe.Satisfied, forced.Probe.Probe(ctx).Status)
}

func TestStep_ExistingFileNeedsForce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	source, target := fixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))

	step := NewStep(Options{Name: "l", Spec: config.SymlinkStep{Source: source, Target: target}})
	require.Contains(t, step.Probe.Probe(ctx).Detail, "is not a symlink")

	err := step.Apply(ctx)
	var applyErr *hosterrors.ApplyFailure
	require.ErrorAs(t, err, &applyErr)
	require.Equal(t, hosterrors.ReasonManual, applyErr.Reason)
	require.Contains(t, step.Hint, "force: true")

	data, readErr := os.ReadFile(target)
	require.NoError(t, readErr)
	require.Equal(t, "old", string(data))
}
