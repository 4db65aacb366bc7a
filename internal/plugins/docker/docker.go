// Package dockerplugin builds the container runtime steps: the docker engine,
// group membership for the operator and the WhisperX image.
package dockerplugin

import (
	"context"
	"fmt"
	"time"

	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
	"github.com/alexisbeaulieu97/whisperhost/internal/plugins/internalexec"
	packageplugin "github.com/alexisbeaulieu97/whisperhost/internal/plugins/package"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
)

// Step names.
const (
	EngineStep = "docker"
	GroupStep  = "docker_group"
	ImageStep  = "whisperx_image"
)

const (
	enginePackage = "docker.io"
	dockerGroup   = "docker"
)

// Options configures the docker steps.
type Options struct {
	Runner internalexec.Runner
	// User is added to the docker group. Empty or "root" needs no membership.
	User      string
	Image     string
	DependsOn []string
	Timeout   time.Duration
}

// Engine installs docker.io and enables the daemon.
func Engine(opts Options) engine.Step {
	r := opts.Runner
	return engine.Step{
		Name:        EngineStep,
		Description: "Docker engine",
		DependsOn:   opts.DependsOn,
		Probe: probe.Command{
			Step:   EngineStep,
			Runner: r,
			Name:   "docker",
			Args:   []string{"--version"},
			Match:  probe.Contains("Docker version"),
		},
		Apply: func(ctx context.Context) error {
			pkg := packageplugin.Packages{Step: EngineStep, Runner: r, Names: []string{enginePackage}}
			if err := packageplugin.Install(ctx, pkg); err != nil {
				return err
			}
			return internalexec.Must(ctx, r, EngineStep, "systemctl", "enable", "--now", "docker")
		},
		Timeout: opts.Timeout,
		Hint:    "install docker manually (try: sudo apt-get install -y docker.io && sudo systemctl enable --now docker)",
	}
}

// Group adds the operator to the docker group. Membership only applies to
// new login sessions, hence the follow-up.
func Group(opts Options) engine.Step {
	r := opts.Runner
	user := opts.User
	step := engine.Step{
		Name:        GroupStep,
		Description: "docker group membership",
		DependsOn:   []string{EngineStep},
		Timeout:     opts.Timeout,
		Hint:        fmt.Sprintf("add the user manually (try: sudo usermod -aG docker %s)", user),
		FollowUp:    fmt.Sprintf("log out and back in (or run: newgrp docker) so %s can use docker without sudo", user),
	}

	if user == "" || user == "root" {
		step.Probe = probe.Func(func(context.Context) probe.Result {
			return probe.Ok("root does not need docker group membership")
		})
		step.Apply = func(context.Context) error { return nil }
		step.FollowUp = ""
		return step
	}

	step.Probe = probe.Command{
		Step:   GroupStep,
		Runner: r,
		Name:   "id",
		Args:   []string{"-nG", user},
		Match:  probe.HasField(dockerGroup),
	}
	step.Apply = func(ctx context.Context) error {
		return internalexec.Must(ctx, r, GroupStep, "usermod", "-aG", dockerGroup, user)
	}
	return step
}

// Image pulls the WhisperX container image.
func Image(opts Options) engine.Step {
	r := opts.Runner
	return engine.Step{
		Name:        ImageStep,
		Description: "WhisperX image " + opts.Image,
		DependsOn:   []string{EngineStep},
		Probe: probe.Command{
			Step:   ImageStep,
			Runner: r,
			Name:   "docker",
			Args:   []string{"image", "inspect", "--format", "{{.Id}}", opts.Image},
			Match:  probe.Contains("sha256:"),
		},
		Apply: func(ctx context.Context) error {
			return internalexec.Must(ctx, r, ImageStep, "docker", "pull", opts.Image)
		},
		Timeout: opts.Timeout,
		Hint:    fmt.Sprintf("pull the image manually (try: sudo docker pull %s)", opts.Image),
	}
}
