package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexisbeaulieu97/whisperhost/internal/logger"
	"github.com/alexisbeaulieu97/whisperhost/internal/model"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// DefaultStepTimeout bounds each probe, apply and verify of a step when
// neither the step nor the executor options set one.
const DefaultStepTimeout = 30 * time.Minute

// ProbeSource resolves the probe for a step by name.
type ProbeSource interface {
	Probe(ctx context.Context, name string) probe.Result
}

// Observer receives lifecycle callbacks for each step.
type Observer interface {
	StepStarted(name string)
	StepFinished(result model.StepResult)
}

type nopObserver struct{}

func (nopObserver) StepStarted(string)            {}
func (nopObserver) StepFinished(model.StepResult) {}

// Options configures an Executor.
type Options struct {
	DryRun         bool
	DefaultTimeout time.Duration
	Logger         *logger.Logger
	Observer       Observer
	// Probes overrides the registry built from the steps' own probes.
	Probes ProbeSource
	// Warnings and FollowUps are copied into the report before any step runs.
	Warnings  []string
	FollowUps []string
}

// Executor walks a Graph one step at a time.
type Executor struct {
	graph  *Graph
	opts   Options
	probes ProbeSource
	log    *logger.Logger
}

// NewExecutor prepares an executor for graph.
func NewExecutor(graph *Graph, opts Options) (*Executor, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultStepTimeout
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	probes := opts.Probes
	if probes == nil {
		registry := probe.NewRegistry()
		for _, step := range graph.Steps() {
			if err := registry.Register(step.Name, step.Probe); err != nil {
				return nil, err
			}
		}
		probes = registry
	}

	return &Executor{graph: graph, opts: opts, probes: probes, log: log}, nil
}

// Run executes every step in order and returns the finalized report.
// Failed required steps block their dependents; independent steps continue.
// Cancellation of ctx halts the run after recording the current step.
func (e *Executor) Run(ctx context.Context) *model.RunReport {
	report := model.NewRunReport(e.opts.DryRun)
	for _, w := range e.opts.Warnings {
		_ = report.AddWarning(w)
	}
	for _, f := range e.opts.FollowUps {
		_ = report.AddFollowUp(f)
	}

	log := e.log.WithRun(report.RunID)
	log.With(logger.Fields{
		"steps":   e.graph.Len(),
		"dry_run": e.opts.DryRun,
	}).Info("starting provisioning run")

	results := make(map[string]model.StepResult, e.graph.Len())
	for _, step := range e.graph.Steps() {
		if ctx.Err() != nil {
			report.MarkInterrupted()
			break
		}

		e.opts.Observer.StepStarted(step.Name)
		res := e.runStep(ctx, step, results)
		results[step.Name] = res
		_ = report.Append(res)
		e.opts.Observer.StepFinished(res)
		logResult(log, res)

		var interrupted *hosterrors.Interrupted
		if errors.As(res.Error, &interrupted) {
			report.MarkInterrupted()
			break
		}
	}

	report.Finalize()
	log.With(logger.Fields{
		"success": report.Success,
		"applied": report.Count(model.OutcomeApplied),
		"skipped": report.Count(model.OutcomeSkipped),
		"failed":  report.Count(model.OutcomeFailed),
	}).Info("provisioning run finished")
	return report
}

func (e *Executor) runStep(ctx context.Context, step Step, done map[string]model.StepResult) (res model.StepResult) {
	start := time.Now()
	res = model.StepResult{
		Name:      step.Name,
		Optional:  step.Optional,
		FollowUp:  step.FollowUp,
		StartedAt: start,
	}
	defer func() {
		res.Duration = time.Since(start)
		if res.Outcome == model.OutcomeFailed {
			res.Warning = step.Optional
			if res.Hint == "" {
				res.Hint = hosterrors.HintFor(res.Error)
			}
			if res.Hint == "" {
				res.Hint = step.Hint
			}
		}
	}()

	for _, dep := range e.graph.Dependencies(step.Name) {
		if prior, ok := done[dep]; ok && prior.Blocking() {
			return fail(res, hosterrors.NewDependencyBlocked(step.Name, dep), "blocked by dependency "+dep)
		}
	}

	e.log.WithStep(step.Name).Debug("probing")
	pr, timedOut := e.bounded(ctx, step, func(c context.Context) probe.Result {
		return e.probes.Probe(c, step.Name)
	})
	res.ProbeDetail = pr.Detail
	res.Diff = pr.Diff
	if ctx.Err() != nil {
		return fail(res, hosterrors.NewInterrupted(step.Name, ctx.Err()), "interrupted")
	}
	if timedOut {
		return fail(res, hosterrors.NewProbeError(step.Name, "probe", context.DeadlineExceeded), "timed out")
	}

	switch {
	case pr.Status == probe.Satisfied:
		res.Outcome = model.OutcomeSkipped
		res.Detail = pr.Detail
		return res
	case pr.Status == probe.Unknown && pr.Err != nil:
		return fail(res, pr.Err, "probe failed: "+pr.Detail)
	}

	if e.opts.DryRun {
		res.Outcome = model.OutcomeWouldApply
		res.Detail = "would apply: " + pr.Detail
		return res
	}

	if step.Apply == nil {
		err := hosterrors.NewUnsatisfiedPrecondition(step.Name, pr.Detail, step.Hint)
		return fail(res, err, "unsatisfied, manual action required: "+pr.Detail)
	}

	if failed, stop := e.applyOnce(ctx, step, &res); stop {
		return failed
	}

	vr, timedOut := e.verify(ctx, step)
	if vr.Status == probe.Unknown && ctx.Err() == nil && !timedOut {
		e.log.WithStep(step.Name).Warn("verification inconclusive, re-applying once")
		if failed, stop := e.applyOnce(ctx, step, &res); stop {
			return failed
		}
		vr, timedOut = e.verify(ctx, step)
	}
	if ctx.Err() != nil {
		return fail(res, hosterrors.NewInterrupted(step.Name, ctx.Err()), "interrupted")
	}
	if timedOut {
		return fail(res, hosterrors.NewProbeError(step.Name, "verify", context.DeadlineExceeded), "timed out")
	}

	switch vr.Status {
	case probe.Satisfied:
		res.Outcome = model.OutcomeApplied
		res.Detail = vr.Detail
		return res
	case probe.Unknown:
		cause := vr.Err
		if cause == nil {
			cause = hosterrors.NewUnsatisfiedPrecondition(step.Name, vr.Detail, step.Hint)
		}
		return fail(res, cause, "verification inconclusive: "+vr.Detail)
	default:
		err := hosterrors.NewUnsatisfiedPrecondition(step.Name, vr.Detail, step.Hint)
		return fail(res, err, "applied but still unsatisfied: "+vr.Detail)
	}
}

// applyOnce runs Apply and converts its error into a failed result.
func (e *Executor) applyOnce(ctx context.Context, step Step, res *model.StepResult) (model.StepResult, bool) {
	e.log.WithStep(step.Name).Info("applying")
	err := e.apply(ctx, step)
	if err == nil {
		return *res, false
	}

	var interrupted *hosterrors.Interrupted
	var applyErr *hosterrors.ApplyFailure
	switch {
	case errors.As(err, &interrupted):
		return fail(*res, err, "interrupted"), true
	case errors.As(err, &applyErr) && applyErr.Reason == hosterrors.ReasonTimeout:
		return fail(*res, err, "timed out"), true
	case errors.As(err, &applyErr) && applyErr.Err != nil:
		return fail(*res, err, "unsatisfied, apply failed: "+applyErr.Err.Error()), true
	case errors.As(err, &applyErr):
		return fail(*res, err, "unsatisfied, apply failed: "+string(applyErr.Reason)), true
	default:
		wrapped := hosterrors.NewApplyFailure(step.Name, hosterrors.ReasonCommandFailed, err, "")
		return fail(*res, wrapped, "unsatisfied, apply failed: "+err.Error()), true
	}
}

// apply runs step.Apply under the step timeout. A hung Apply that ignores
// its context is abandoned once the deadline passes.
func (e *Executor) apply(ctx context.Context, step Step) error {
	stepCtx, cancel := context.WithTimeout(ctx, e.timeout(step))
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- step.Apply(stepCtx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-stepCtx.Done():
		err = stepCtx.Err()
	}

	if ctx.Err() != nil {
		return hosterrors.NewInterrupted(step.Name, ctx.Err())
	}
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(stepCtx.Err(), context.DeadlineExceeded)) {
		return hosterrors.NewApplyFailure(step.Name, hosterrors.ReasonTimeout, context.DeadlineExceeded, "")
	}
	return err
}

func (e *Executor) verify(ctx context.Context, step Step) (probe.Result, bool) {
	e.log.WithStep(step.Name).Debug("verifying")
	return e.bounded(ctx, step, step.verifier().Probe)
}

// bounded runs check under the step timeout and reports whether the deadline
// passed first. A check that ignores its context is abandoned.
func (e *Executor) bounded(ctx context.Context, step Step, check func(context.Context) probe.Result) (probe.Result, bool) {
	stepCtx, cancel := context.WithTimeout(ctx, e.timeout(step))
	defer cancel()

	resCh := make(chan probe.Result, 1)
	go func() {
		resCh <- check(stepCtx)
	}()

	var pr probe.Result
	select {
	case pr = <-resCh:
	case <-stepCtx.Done():
	}
	return pr, ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded)
}

func (e *Executor) timeout(step Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return e.opts.DefaultTimeout
}

func fail(res model.StepResult, err error, detail string) model.StepResult {
	res.Outcome = model.OutcomeFailed
	res.Error = err
	res.Detail = detail
	return res
}

func logResult(runLog *logger.Logger, res model.StepResult) {
	log := runLog.WithStep(res.Name).With(logger.Fields{
		"outcome":     string(res.Outcome),
		"duration_ms": res.DurationMs(),
	})
	switch {
	case res.Outcome == model.OutcomeFailed && res.Optional:
		log.Warn(res.Detail)
	case res.Outcome == model.OutcomeFailed:
		log.Error(res.Error, res.Detail)
	default:
		log.Info(res.Detail)
	}
}
