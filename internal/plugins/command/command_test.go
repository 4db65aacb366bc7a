package commandplugin

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/whisperhost/internal/config"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
}

func TestCheckProbe(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	ctx := context.Background()
	res := Check{Step: "hf_login", Spec: config.CommandStep{Check: "true"}}.Probe(ctx)
	require.Equal(t, probe.Satisfied, res.Status)

	res = Check{Step: "hf_login", Spec: config.CommandStep{Check: "echo not logged in >&2; exit 3"}}.Probe(ctx)
	require.Equal(t, probe.Unsatisfied, res.Status)
	require.Contains(t, res.Detail, "exited with code 3")
	require.Contains(t, res.Detail, "not logged in")

	res = Check{Step: "hf_login", Spec: config.CommandStep{Check: "true", Shell: "/nonexistent/shell"}}.Probe(ctx)
	require.Equal(t, probe.Unknown, res.Status)
	var probeErr *hosterrors.ProbeError
	require.ErrorAs(t, res.Err, &probeErr)
}

func TestNewStep_ApplyRunsCommandWithEnvAndWorkdir(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	var out bytes.Buffer

	step := NewStep(Options{
		Name: "hf_login",
		Spec: config.CommandStep{
			Command: `echo "$GREETING" > marker && echo done`,
			Check:   "test -f marker",
			WorkDir: dir,
			Env:     map[string]string{"GREETING": "hello"},
		},
		Output: &out,
	})

	ctx := context.Background()
	require.Equal(t, probe.Unsatisfied, step.Probe.Probe(ctx).Status)
	require.NoError(t, step.Apply(ctx))
	require.Equal(t, probe.Satisfied, step.Probe.Probe(ctx).Status)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))
	require.Contains(t, out.String(), "done")
}

func TestNewStep_ApplyFailureIsClassified(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	step := NewStep(Options{
		Name: "fetch_assets",
		Spec: config.CommandStep{
			Command: "echo 'curl: (6) Could not resolve host: example.invalid' >&2; exit 6",
			Check:   "false",
		},
	})

	err := step.Apply(context.Background())
	var applyErr *hosterrors.ApplyFailure
	require.ErrorAs(t, err, &applyErr)
	require.Equal(t, hosterrors.ReasonNetwork, applyErr.Reason)
	require.Contains(t, err.Error(), "exited with code 6")
	require.Contains(t, step.Hint, "run")
}
