package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
	"github.com/alexisbeaulieu97/whisperhost/internal/hostplan"
	"github.com/alexisbeaulieu97/whisperhost/internal/logger"
	"github.com/alexisbeaulieu97/whisperhost/internal/model"
	"github.com/alexisbeaulieu97/whisperhost/internal/report"
	"github.com/alexisbeaulieu97/whisperhost/internal/tui"
)

type applyOptions struct {
	ConfigPath   string
	ManifestPath string
	DryRun       bool
	Only         []string
	Skip         []string
	Verbose      bool
	JSON         bool
	// Timeout is the default per-step timeout; TimeoutSet is false when the
	// flag was not given and the manifest setting may apply instead.
	Timeout     time.Duration
	TimeoutSet  bool
	Interactive bool
}

var applyCmdRunner = runApply

func (f *rootFlags) applyOptions(cmd *cobra.Command) applyOptions {
	return applyOptions{
		ConfigPath:   f.configPath,
		ManifestPath: f.manifestPath,
		DryRun:       f.dryRun,
		Only:         trimNames(f.only),
		Skip:         trimNames(f.skip),
		Verbose:      f.verbose,
		JSON:         f.json,
		Timeout:      f.timeout,
		TimeoutSet:   cmd.Flags().Changed("timeout"),
		Interactive:  !f.noTUI && !f.json && isTerminal(cmd.OutOrStdout()),
	}
}

func newApplyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Bring the host to the ready state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplyCommand(cmd, flags, false)
		},
	}
}

func newCheckCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report what apply would change without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplyCommand(cmd, flags, true)
		},
	}
}

func runApplyCommand(cmd *cobra.Command, flags *rootFlags, forceDryRun bool) error {
	opts := flags.applyOptions(cmd)
	if forceDryRun {
		opts.DryRun = true
	}
	if err := validateApplyOptions(opts); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return applyCmdRunner(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func runApply(ctx context.Context, opts applyOptions, out, errOut io.Writer) error {
	log, err := newLogger(opts, errOut)
	if err != nil {
		return err
	}

	// command output is mirrored only for verbose plain-text runs
	var stream io.Writer
	if opts.Verbose && !opts.Interactive && !opts.JSON {
		stream = errOut
	}

	plan, err := loadPlan(opts, stream)
	if err != nil {
		return err
	}

	stopSudo, err := prepareSudo(ctx, plan.runner, os.Stdin, errOut)
	if err != nil {
		return err
	}
	defer stopSudo()

	timeout := opts.Timeout
	if !opts.TimeoutSet {
		if fromManifest := hostplan.DefaultTimeout(plan.manifest); fromManifest > 0 {
			timeout = fromManifest
		}
	}

	execOpts := engine.Options{
		DryRun:         opts.DryRun,
		DefaultTimeout: timeout,
		Logger:         log,
		Warnings:       plan.env.Warnings(),
		FollowUps:      plan.env.FollowUps(),
	}

	log.With(logger.Fields{
		"config": opts.ConfigPath,
		"steps":  plan.graph.Len(),
		"device": plan.env.Device,
		"exists": plan.env.Exists,
	}).Debug("Loaded configuration")

	var rep *model.RunReport
	if opts.Interactive {
		rep, err = runInteractive(ctx, plan, execOpts, out)
	} else {
		rep, err = runPlain(ctx, plan.graph, execOpts)
	}
	if err != nil {
		return err
	}

	if opts.JSON {
		err = report.RenderJSON(out, rep)
	} else {
		err = report.New(report.Options{Verbose: opts.Verbose}).Render(out, rep)
	}
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	switch {
	case rep.Interrupted:
		return silentExit(exitInterrupted)
	case !rep.Success:
		return silentExit(exitStepFailed)
	}
	return nil
}

func runPlain(ctx context.Context, graph *engine.Graph, opts engine.Options) (*model.RunReport, error) {
	executor, err := engine.NewExecutor(graph, opts)
	if err != nil {
		return nil, err
	}
	return executor.Run(ctx), nil
}

// runInteractive drives the live view while the executor runs. Ctrl+C
// reaches the model as a key press and cancels the run context.
func runInteractive(ctx context.Context, plan *loadedPlan, opts engine.Options, out io.Writer) (*model.RunReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	title := "host provisioning"
	if plan.manifest != nil && plan.manifest.Name != "" {
		title = plan.manifest.Name
	}
	state := tui.NewModel(title, plan.graph.Order(), opts.DryRun, cancel)
	program := tea.NewProgram(state, tea.WithOutput(out))

	opts.Observer = tui.NewObserver(program)
	// the executor logs would tear the live view
	opts.Logger = logger.Nop()

	executor, err := engine.NewExecutor(plan.graph, opts)
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		_, err := program.Run()
		done <- err
	}()

	rep := executor.Run(ctx)
	program.Send(tui.RunFinishedMsg{})
	if err := <-done; err != nil {
		return nil, fmt.Errorf("progress view: %w", err)
	}
	return rep, nil
}

func newLogger(opts applyOptions, w io.Writer) (*logger.Logger, error) {
	level := "info"
	if opts.Verbose {
		level = "debug"
	}
	return logger.New(logger.Options{
		Level:         level,
		HumanReadable: !opts.JSON,
		NoColor:       !isTerminal(w),
		Writer:        w,
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
