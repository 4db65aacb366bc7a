package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
)

func partialFailureReport(t *testing.T) *model.RunReport {
	t.Helper()

	rep := model.NewRunReport(false)
	require.NoError(t, rep.AddWarning("config.env: unknown key \"WHISPER_THREADS\""))
	for _, res := range []model.StepResult{
		{Name: "base_packages", Outcome: model.OutcomeSkipped, Detail: "all packages installed", Duration: 120 * time.Millisecond},
		{Name: "gpu_driver", Outcome: model.OutcomeFailed, Detail: "unsatisfied, apply failed: apt-get install exited with code 100",
			ProbeDetail: "command not found: nvidia-smi", Hint: "install the driver manually", Error: errors.New("apt-get install exited with code 100")},
		{Name: "cuda_toolkit", Outcome: model.OutcomeFailed, Detail: "blocked by dependency gpu_driver", Hint: "fix step gpu_driver first"},
		{Name: "docker", Outcome: model.OutcomeApplied, Detail: "Docker version 24.0.7", FollowUp: "log out and back in", Duration: 3 * time.Second},
		{Name: "gpu_container_test", Outcome: model.OutcomeFailed, Optional: true, Warning: true, Detail: "blocked by dependency nvidia_container_toolkit"},
	} {
		require.NoError(t, rep.Append(res))
	}
	rep.Finalize()
	return rep
}

func TestRender_PartialFailure(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, New(Options{}).Render(&buf, partialFailureReport(t)))
	out := buf.String()

	require.Contains(t, out, "Provisioning results")
	require.Contains(t, out, "gpu_driver")
	require.Contains(t, out, "✖ failed")
	require.Contains(t, out, "✔ applied")
	require.Contains(t, out, "gpu_container_test (optional)")
	require.Contains(t, out, "⚠ warning")
	require.Contains(t, out, "Summary: 1 applied, 1 already satisfied, 2 failed, 1 optional failed")
	require.Contains(t, out, "First failure: gpu_driver: unsatisfied, apply failed")
	require.Contains(t, out, "Hint: install the driver manually")
	require.Contains(t, out, "WHISPER_THREADS")
	require.Contains(t, out, "[ ] log out and back in")
	require.Contains(t, out, "Host is not ready")
	require.NotContains(t, out, "Step details")
	// output to a non-terminal carries no escape codes
	require.NotContains(t, out, "\x1b[")
}

func TestRender_Verbose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, New(Options{Verbose: true}).Render(&buf, partialFailureReport(t)))
	out := buf.String()

	require.Contains(t, out, "Step details")
	require.Contains(t, out, "--- gpu_driver [failed]")
	require.Contains(t, out, "probe:  command not found: nvidia-smi")
	require.Contains(t, out, "error:  apt-get install exited with code 100")
}

func TestRender_VerboseDiff(t *testing.T) {
	t.Parallel()

	rep := model.NewRunReport(true)
	require.NoError(t, rep.Append(model.StepResult{
		Name:    "hf_home",
		Outcome: model.OutcomeWouldApply,
		Detail:  "would apply: /etc/environment: line needs append",
		Diff:    "--- /etc/environment\n+++ /etc/environment\n+HF_HOME=/models\n",
	}))
	rep.Finalize()

	var buf bytes.Buffer
	require.NoError(t, New(Options{Verbose: true}).Render(&buf, rep))
	require.Contains(t, buf.String(), "diff:\n  --- /etc/environment\n  +++ /etc/environment\n  +HF_HOME=/models\n")

	buf.Reset()
	require.NoError(t, RenderJSON(&buf, rep))
	require.Contains(t, buf.String(), `"diff": "--- /etc/environment`)
}

func TestRender_DryRun(t *testing.T) {
	t.Parallel()

	rep := model.NewRunReport(true)
	require.NoError(t, rep.Append(model.StepResult{Name: "docker", Outcome: model.OutcomeWouldApply, Detail: "would apply: command not found: docker"}))
	rep.Finalize()

	var buf bytes.Buffer
	require.NoError(t, New(Options{}).Render(&buf, rep))
	out := buf.String()
	require.Contains(t, out, "dry run")
	require.Contains(t, out, "1 would apply")
	require.Contains(t, out, "run without --dry-run")
}

func TestRender_Ready(t *testing.T) {
	t.Parallel()

	rep := model.NewRunReport(false)
	require.NoError(t, rep.Append(model.StepResult{Name: "workspace", Outcome: model.OutcomeSkipped}))
	rep.Finalize()

	var buf bytes.Buffer
	require.NoError(t, New(Options{}).Render(&buf, rep))
	require.True(t, strings.HasSuffix(strings.TrimSpace(buf.String()), "✔ Host is ready"))
}

func TestRender_Interrupted(t *testing.T) {
	t.Parallel()

	rep := model.NewRunReport(false)
	require.NoError(t, rep.Append(model.StepResult{Name: "docker", Outcome: model.OutcomeFailed, Detail: "interrupted"}))
	rep.MarkInterrupted()
	rep.Finalize()

	var buf bytes.Buffer
	require.NoError(t, New(Options{}).Render(&buf, rep))
	require.Contains(t, buf.String(), "Interrupted")
}

func TestRender_NilReport(t *testing.T) {
	t.Parallel()

	require.Error(t, New(Options{}).Render(&bytes.Buffer{}, nil))
}

func TestRenderJSON(t *testing.T) {
	t.Parallel()

	rep := partialFailureReport(t)
	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, rep))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, rep.RunID, decoded["run_id"])
	require.Equal(t, false, decoded["success"])

	counts := decoded["counts"].(map[string]any)
	require.EqualValues(t, 1, counts["applied"])
	require.EqualValues(t, 3, counts["failed"])

	steps := decoded["steps"].([]any)
	require.Len(t, steps, 5)
	driver := steps[1].(map[string]any)
	require.Equal(t, "gpu_driver", driver["name"])
	require.Equal(t, "failed", driver["outcome"])
	require.Equal(t, "apt-get install exited with code 100", driver["error"])

	require.Len(t, decoded["warnings"], 2)
	require.Equal(t, []any{"log out and back in"}, decoded["follow_ups"])
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	require.Equal(t, "a b", truncate("a\nb", 10))
}
