package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

func runSteps(t *testing.T, opts Options, steps ...Step) *model.RunReport {
	t.Helper()
	g, err := NewGraph(steps)
	require.NoError(t, err)
	exec, err := NewExecutor(g, opts)
	require.NoError(t, err)
	return exec.Run(context.Background())
}

func TestRun_AppliesMissingStepsInOrder(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	report := runSteps(t, Options{},
		h.step("docker_group", "docker"),
		h.step("docker"),
		h.step("workspace"),
	)

	require.True(t, report.Success)
	require.True(t, report.Finalized())
	require.Equal(t, []string{"docker", "docker_group", "workspace"}, h.applyOrder())
	for _, res := range report.Results() {
		require.Equal(t, model.OutcomeApplied, res.Outcome, res.Name)
		require.Equal(t, res.Name+" present", res.Detail)
	}
}

func TestRun_SecondRunIsNoOp(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	steps := []Step{h.step("base_packages"), h.step("docker", "base_packages"), h.step("workspace")}

	first := runSteps(t, Options{}, steps...)
	require.True(t, first.Success)
	require.Equal(t, 3, h.totalApplies())

	second := runSteps(t, Options{}, steps...)
	require.True(t, second.Success)
	require.Equal(t, 3, h.totalApplies(), "no apply may run once every probe is satisfied")
	require.Equal(t, 3, second.Count(model.OutcomeSkipped))
}

func TestRun_PartialFailureScenario(t *testing.T) {
	t.Parallel()

	h := newFakeHost("docker")
	driver := h.step("gpu_driver")
	driver.Apply = h.failing("gpu_driver", errAptBroken)

	report := runSteps(t, Options{},
		driver,
		h.step("cuda_toolkit", "gpu_driver"),
		h.step("docker"),
		h.step("workspace"),
	)

	require.False(t, report.Success)

	res, ok := report.Result("gpu_driver")
	require.True(t, ok)
	require.Equal(t, model.OutcomeFailed, res.Outcome)
	require.Equal(t, "unsatisfied, apply failed: "+errAptBroken.Error(), res.Detail)
	var applyErr *hosterrors.ApplyFailure
	require.ErrorAs(t, res.Error, &applyErr)
	require.Equal(t, hosterrors.ReasonCommandFailed, applyErr.Reason)

	res, _ = report.Result("cuda_toolkit")
	require.Equal(t, model.OutcomeFailed, res.Outcome)
	require.Equal(t, "blocked by dependency gpu_driver", res.Detail)
	require.Equal(t, 0, h.applyCount("cuda_toolkit"))

	res, _ = report.Result("docker")
	require.Equal(t, model.OutcomeSkipped, res.Outcome)

	res, _ = report.Result("workspace")
	require.Equal(t, model.OutcomeApplied, res.Outcome)

	first, ok := report.FirstFailure()
	require.True(t, ok)
	require.Equal(t, "gpu_driver", first.Name)
	require.Equal(t, 1, h.applyCount("gpu_driver"), "failed applies are not retried")
}

func TestRun_BlockedPropagatesTransitively(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	driver := h.step("gpu_driver")
	driver.Apply = h.failing("gpu_driver", errAptBroken)

	report := runSteps(t, Options{},
		driver,
		h.step("nvidia_container_toolkit", "gpu_driver"),
		h.step("gpu_container_test", "nvidia_container_toolkit"),
	)

	res, _ := report.Result("gpu_container_test")
	require.Equal(t, "blocked by dependency nvidia_container_toolkit", res.Detail)
	var blocked *hosterrors.DependencyBlocked
	require.ErrorAs(t, res.Error, &blocked)
	require.Equal(t, 1, h.totalApplies())
}

func TestRun_OptionalFailureIsWarning(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	gpuTest := h.step("gpu_container_test")
	gpuTest.Optional = true
	gpuTest.Apply = h.failing("gpu_container_test", errors.New("could not select device driver"))

	report := runSteps(t, Options{},
		gpuTest,
		h.step("after", "gpu_container_test"),
	)

	require.True(t, report.Success)
	res, _ := report.Result("gpu_container_test")
	require.Equal(t, model.OutcomeFailed, res.Outcome)
	require.True(t, res.Warning)
	res, _ = report.Result("after")
	require.Equal(t, model.OutcomeApplied, res.Outcome)
	require.Len(t, report.Warnings(), 1)
	require.Contains(t, report.Warnings()[0], "gpu_container_test")
}

func TestRun_DryRunNeverApplies(t *testing.T) {
	t.Parallel()

	h := newFakeHost("docker")
	report := runSteps(t, Options{DryRun: true},
		h.step("docker"),
		h.step("docker_group", "docker"),
		h.step("whisperx_image", "docker"),
	)

	require.True(t, report.DryRun)
	require.True(t, report.Success)
	require.Zero(t, h.totalApplies())
	res, _ := report.Result("docker")
	require.Equal(t, model.OutcomeSkipped, res.Outcome)
	res, _ = report.Result("whisperx_image")
	require.Equal(t, model.OutcomeWouldApply, res.Outcome)
	require.Equal(t, "would apply: whisperx_image missing", res.Detail)
}

func TestRun_DryRunCarriesProbeDiff(t *testing.T) {
	t.Parallel()

	step := Step{
		Name: "hf_home",
		Probe: probe.Func(func(context.Context) probe.Result {
			res := probe.Missing("/etc/environment: line needs append")
			res.Diff = "+HF_HOME=/models\n"
			return res
		}),
		Apply: func(context.Context) error { return nil },
	}
	report := runSteps(t, Options{DryRun: true}, step)

	res, ok := report.Result("hf_home")
	require.True(t, ok)
	require.Equal(t, model.OutcomeWouldApply, res.Outcome)
	require.Equal(t, "+HF_HOME=/models\n", res.Diff)
}

func TestRun_ProbeErrorFailsWithoutApply(t *testing.T) {
	t.Parallel()

	var applied atomic.Int32
	step := Step{
		Name: "base_packages",
		Probe: probe.Func(func(context.Context) probe.Result {
			return probe.Failed(hosterrors.NewProbeError("base_packages", "dpkg-query", errors.New("permission denied")), "dpkg-query could not run")
		}),
		Apply: func(context.Context) error { applied.Add(1); return nil },
	}

	report := runSteps(t, Options{}, step)
	require.False(t, report.Success)
	res, _ := report.Result("base_packages")
	require.Equal(t, model.OutcomeFailed, res.Outcome)
	require.Equal(t, "probe failed: dpkg-query could not run", res.Detail)
	require.Zero(t, applied.Load())
}

func TestRun_UnknownProbeWithoutErrorApplies(t *testing.T) {
	t.Parallel()

	var state atomic.Int32
	step := Step{
		Name: "whisperx_image",
		Probe: probe.Func(func(context.Context) probe.Result {
			if state.Load() > 0 {
				return probe.Ok("image present")
			}
			return probe.Result{Status: probe.Unknown, Detail: "daemon not reachable"}
		}),
		Apply: func(context.Context) error { state.Add(1); return nil },
	}

	report := runSteps(t, Options{}, step)
	res, _ := report.Result("whisperx_image")
	require.Equal(t, model.OutcomeApplied, res.Outcome)
	require.Equal(t, int32(1), state.Load())
}

func TestRun_VerifyStillUnsatisfied(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	step := Step{
		Name:  "docker_group",
		Probe: h.probe("docker_group"),
		Apply: func(context.Context) error { return nil },
		Hint:  "log out and back in",
	}

	report := runSteps(t, Options{}, step)
	res, _ := report.Result("docker_group")
	require.Equal(t, model.OutcomeFailed, res.Outcome)
	require.Contains(t, res.Detail, "applied but still unsatisfied")
	require.Equal(t, "log out and back in", res.Hint)
	var unsatisfied *hosterrors.UnsatisfiedPrecondition
	require.ErrorAs(t, res.Error, &unsatisfied)
}

func TestRun_InconclusiveVerifyReappliesOnce(t *testing.T) {
	t.Parallel()

	var applies, verifies atomic.Int32
	step := Step{
		Name:  "nvidia_container_toolkit",
		Probe: probe.Func(func(context.Context) probe.Result { return probe.Missing("runtime not configured") }),
		Apply: func(context.Context) error { applies.Add(1); return nil },
		Verify: probe.Func(func(context.Context) probe.Result {
			if verifies.Add(1) == 1 {
				return probe.Result{Status: probe.Unknown, Detail: "docker restarting"}
			}
			return probe.Ok("runtime nvidia registered")
		}),
	}

	report := runSteps(t, Options{}, step)
	res, _ := report.Result("nvidia_container_toolkit")
	require.Equal(t, model.OutcomeApplied, res.Outcome)
	require.Equal(t, int32(2), applies.Load())
	require.Equal(t, int32(2), verifies.Load())
}

func TestRun_ManualStepWithoutApply(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	step := Step{Name: "diarization_token", Probe: h.probe("diarization_token"), Optional: true, Hint: "set HF_TOKEN"}

	report := runSteps(t, Options{}, step)
	require.True(t, report.Success)
	res, _ := report.Result("diarization_token")
	require.Equal(t, model.OutcomeFailed, res.Outcome)
	require.True(t, res.Warning)
	require.Equal(t, "set HF_TOKEN", res.Hint)
}

func TestRun_Timeout(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	slow := Step{
		Name:    "whisperx_image",
		Probe:   h.probe("whisperx_image"),
		Timeout: 20 * time.Millisecond,
		Apply: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	hung := Step{
		Name:    "hung",
		Probe:   h.probe("hung"),
		Timeout: 20 * time.Millisecond,
		Apply: func(context.Context) error {
			time.Sleep(2 * time.Second)
			return nil
		},
	}

	start := time.Now()
	report := runSteps(t, Options{}, slow, hung, h.step("workspace"))
	require.Less(t, time.Since(start), time.Second)

	for _, name := range []string{"whisperx_image", "hung"} {
		res, _ := report.Result(name)
		require.Equal(t, model.OutcomeFailed, res.Outcome, name)
		require.Equal(t, "timed out", res.Detail, name)
		var applyErr *hosterrors.ApplyFailure
		require.ErrorAs(t, res.Error, &applyErr)
		require.Equal(t, hosterrors.ReasonTimeout, applyErr.Reason)
	}
	res, _ := report.Result("workspace")
	require.Equal(t, model.OutcomeApplied, res.Outcome)
	require.False(t, report.Interrupted)
}

func TestRun_ProbeAndVerifyTimeout(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	stalled := probe.Func(func(ctx context.Context) probe.Result {
		<-ctx.Done()
		return probe.Failed(ctx.Err(), "docker run interrupted")
	})
	var verifyCalls atomic.Int32
	ignoresContext := probe.Func(func(context.Context) probe.Result {
		verifyCalls.Add(1)
		time.Sleep(2 * time.Second)
		return probe.Ok("late")
	})

	gpuTest := Step{
		Name:    "gpu_container_test",
		Probe:   stalled,
		Apply:   h.install("gpu_container_test"),
		Timeout: 30 * time.Millisecond,
	}
	image := Step{
		Name:    "whisperx_image",
		Probe:   h.probe("whisperx_image"),
		Verify:  ignoresContext,
		Apply:   h.install("whisperx_image"),
		Timeout: 30 * time.Millisecond,
	}

	start := time.Now()
	report := runSteps(t, Options{}, gpuTest, image, h.step("workspace"))
	require.Less(t, time.Since(start), time.Second)

	res, _ := report.Result("gpu_container_test")
	require.Equal(t, model.OutcomeFailed, res.Outcome)
	require.Equal(t, "timed out", res.Detail)
	require.Zero(t, h.applyCount("gpu_container_test"))
	var probeErr *hosterrors.ProbeError
	require.ErrorAs(t, res.Error, &probeErr)
	require.Equal(t, "probe", probeErr.Check)
	require.ErrorIs(t, res.Error, context.DeadlineExceeded)
	require.Contains(t, res.Hint, "raise the step timeout")

	res, _ = report.Result("whisperx_image")
	require.Equal(t, model.OutcomeFailed, res.Outcome)
	require.Equal(t, "timed out", res.Detail)
	require.ErrorAs(t, res.Error, &probeErr)
	require.Equal(t, "verify", probeErr.Check)
	require.EqualValues(t, 1, verifyCalls.Load(), "a timed out verify is not retried")

	res, _ = report.Result("workspace")
	require.Equal(t, model.OutcomeApplied, res.Outcome)
	require.False(t, report.Interrupted)
}

func TestRun_DryRunProbeTimeout(t *testing.T) {
	t.Parallel()

	stalled := Step{
		Name: "gpu_container_test",
		Probe: probe.Func(func(ctx context.Context) probe.Result {
			<-ctx.Done()
			return probe.Failed(ctx.Err(), "interrupted")
		}),
		Optional: true,
	}
	report := runSteps(t, Options{DryRun: true, DefaultTimeout: 30 * time.Millisecond}, stalled)

	res, _ := report.Result("gpu_container_test")
	require.Equal(t, model.OutcomeFailed, res.Outcome)
	require.Equal(t, "timed out", res.Detail)
	require.True(t, res.Warning)
	require.True(t, report.Success)
}

func TestRun_InterruptHaltsRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newFakeHost()
	pull := Step{
		Name:  "whisperx_image",
		Probe: h.probe("whisperx_image"),
		Apply: func(stepCtx context.Context) error {
			cancel()
			<-stepCtx.Done()
			return stepCtx.Err()
		},
	}

	g, err := NewGraph([]Step{h.step("docker"), pull, h.step("workspace")})
	require.NoError(t, err)
	exec, err := NewExecutor(g, Options{})
	require.NoError(t, err)
	report := exec.Run(ctx)

	require.True(t, report.Interrupted)
	require.False(t, report.Success)
	require.Len(t, report.Results(), 2)
	res, _ := report.Result("whisperx_image")
	require.Equal(t, "interrupted", res.Detail)
	var interrupted *hosterrors.Interrupted
	require.ErrorAs(t, res.Error, &interrupted)
	_, ran := report.Result("workspace")
	require.False(t, ran)
	require.Zero(t, h.applyCount("workspace"))
}

func TestRun_CycleRejectedBeforeAnyApply(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	_, err := NewGraph([]Step{h.step("workspace"), h.step("a", "b"), h.step("b", "a")})
	require.Error(t, err)
	require.Zero(t, h.totalApplies())
}

func TestRun_ObserverAndFollowUps(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	group := h.step("docker_group")
	group.FollowUp = "log out and back in for docker group membership to take effect"
	obs := &recordingObserver{}

	report := runSteps(t, Options{
		Observer:  obs,
		Warnings:  []string{"HF_TOKEN is a placeholder"},
		FollowUps: []string{"set HF_TOKEN in config.env"},
	}, group, h.step("workspace"))

	require.Equal(t, []string{"docker_group", "workspace"}, obs.started)
	require.Len(t, obs.finished, 2)
	require.Equal(t, []string{"set HF_TOKEN in config.env", group.FollowUp}, report.FollowUps())
	require.Equal(t, []string{"HF_TOKEN is a placeholder"}, report.Warnings())
}

func TestRun_CustomProbeSource(t *testing.T) {
	t.Parallel()

	h := newFakeHost()
	reg := probe.NewRegistry()
	require.NoError(t, reg.Register("docker", probe.Func(func(context.Context) probe.Result { return probe.Ok("overridden") })))

	report := runSteps(t, Options{Probes: reg}, h.step("docker"))
	res, _ := report.Result("docker")
	require.Equal(t, model.OutcomeSkipped, res.Outcome)
	require.Equal(t, "overridden", res.Detail)
}

func TestNewExecutor_NilGraph(t *testing.T) {
	t.Parallel()

	_, err := NewExecutor(nil, Options{})
	require.Error(t, err)
}
