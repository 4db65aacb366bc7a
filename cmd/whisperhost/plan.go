package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/whisperhost/internal/config"
	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
	"github.com/alexisbeaulieu97/whisperhost/internal/hostplan"
	"github.com/alexisbeaulieu97/whisperhost/internal/plugins/internalexec"
)

// runnerFactory builds the host command runner; tests replace it.
var runnerFactory = func(sudo bool, stream io.Writer) internalexec.Runner {
	return &internalexec.ExecRunner{
		Sudo:   sudo,
		Stdout: stream,
		Stderr: stream,
		Env:    []string{"DEBIAN_FRONTEND=noninteractive"},
	}
}

// loadedPlan is everything resolved from config.env, the manifest and flags.
type loadedPlan struct {
	env      config.Env
	manifest *config.Manifest
	graph    *engine.Graph
	runner   internalexec.Runner
	// omitted lists built-in steps left out for this configuration.
	omitted []string
}

func loadPlan(opts applyOptions, stream io.Writer) (*loadedPlan, error) {
	env, err := config.LoadEnv(opts.ConfigPath)
	if err != nil {
		return nil, configError(err)
	}

	var manifest *config.Manifest
	if opts.ManifestPath != "" {
		manifest, err = config.ParseManifest(opts.ManifestPath)
		if err != nil {
			return nil, configError(err)
		}
	}

	name, home := hostUser()
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	configPath, err := filepath.Abs(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	runner := runnerFactory(hostplan.Sudo(manifest), stream)
	steps, err := hostplan.Build(env, manifest, hostplan.Options{
		Runner:     runner,
		ConfigPath: configPath,
		User:       name,
		Home:       home,
		WorkDir:    workDir,
		Output:     stream,
	})
	if err != nil {
		return nil, err
	}

	graph, err := engine.NewGraph(steps)
	if err != nil {
		return nil, err
	}
	graph, err = graph.Subgraph(opts.Only, opts.Skip)
	if err != nil {
		return nil, err
	}

	plan := &loadedPlan{env: env, manifest: manifest, graph: graph, runner: runner}
	if !env.UsesGPU() {
		plan.omitted = append(plan.omitted, hostplan.GPUSteps...)
	}
	return plan, nil
}

func newPlanCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the resolved step order without probing the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.applyOptions(cmd)
			if err := validateApplyOptions(opts); err != nil {
				return err
			}
			plan, err := loadPlan(opts, nil)
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), plan)
		},
	}
}

func printPlan(w io.Writer, plan *loadedPlan) error {
	fmt.Fprintf(w, "Execution order (%d steps):\n", plan.graph.Len())
	fmt.Fprint(w, plan.graph.String())
	if len(plan.omitted) > 0 {
		fmt.Fprintf(w, "\nOmitted for %s=%s: ", config.KeyDevice, plan.env.Device)
		for i, name := range plan.omitted {
			if i > 0 {
				fmt.Fprint(w, ", ")
			}
			fmt.Fprint(w, name)
		}
		fmt.Fprintln(w)
	}
	for _, warning := range plan.env.Warnings() {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}
