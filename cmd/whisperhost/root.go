package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/whisperhost/internal/config"
	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
)

type rootFlags struct {
	configPath   string
	manifestPath string
	verbose      bool
	json         bool
	dryRun       bool
	only         []string
	skip         []string
	timeout      time.Duration
	noTUI        bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "whisperhost",
		Short: "Prepare an Ubuntu host for GPU-accelerated WhisperX transcription",
		Long: `whisperhost checks every prerequisite for running WhisperX in docker with
NVIDIA GPU acceleration and installs only what is missing. Running it again
on a ready host changes nothing.

Without a subcommand it behaves like "whisperhost apply".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplyCommand(cmd, flags, false)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", config.DefaultEnvFile, "Path to config.env")
	pf.StringVarP(&flags.manifestPath, "manifest", "m", "", "Optional host manifest (YAML) with setting overrides and extra steps")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging and a per-step replay in the report")
	pf.BoolVar(&flags.json, "json", false, "Write the run report as JSON")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "Probe only; report what would be applied")
	pf.StringSliceVar(&flags.only, "only", nil, "Run only these steps and their dependencies (repeatable)")
	pf.StringSliceVar(&flags.skip, "skip", nil, "Skip these steps (repeatable)")
	pf.DurationVar(&flags.timeout, "timeout", engine.DefaultStepTimeout, "Default timeout per step; accepts Go duration strings (e.g. 45m)")
	pf.BoolVar(&flags.noTUI, "no-tui", false, "Disable the live progress view even on a terminal")

	cmd.AddCommand(newApplyCmd(flags))
	cmd.AddCommand(newCheckCmd(flags))
	cmd.AddCommand(newPlanCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
