// Package nvidiaplugin builds the GPU steps: kernel driver, CUDA toolkit,
// container toolkit and the GPU-in-container smoke test.
package nvidiaplugin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/whisperhost/internal/engine"
	"github.com/alexisbeaulieu97/whisperhost/internal/plugins/internalexec"
	packageplugin "github.com/alexisbeaulieu97/whisperhost/internal/plugins/package"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// Step names.
const (
	DriverStep           = "gpu_driver"
	CUDAStep             = "cuda_toolkit"
	ContainerToolkitStep = "nvidia_container_toolkit"
	ContainerTestStep    = "gpu_container_test"
)

const (
	toolkitPackage = "nvidia-container-toolkit"
	toolkitKeyring = "/usr/share/keyrings/nvidia-container-toolkit-keyring.gpg"
	toolkitList    = "/etc/apt/sources.list.d/nvidia-container-toolkit.list"
	toolkitGPGURL  = "https://nvidia.github.io/libnvidia-container/gpgkey"
	toolkitListURL = "https://nvidia.github.io/libnvidia-container/stable/deb/nvidia-container-toolkit.list"
)

var gpuQueryArgs = []string{"--query-gpu=name", "--format=csv,noheader"}

// Options configures the GPU steps.
type Options struct {
	Runner        internalexec.Runner
	DriverPackage string
	CUDAPackage   string
	TestImage     string
	// TestOptional downgrades a failed GPU-in-container test to a warning.
	TestOptional bool
	Timeout      time.Duration
}

// Driver probes nvidia-smi and installs the driver package when no GPU answers.
// The driver only loads after a reboot, so Verify checks the package instead.
func Driver(opts Options) engine.Step {
	pkg := packageplugin.Packages{Step: DriverStep, Runner: opts.Runner, Names: []string{opts.DriverPackage}}
	return engine.Step{
		Name:        DriverStep,
		Description: "NVIDIA kernel driver",
		Probe: probe.Command{
			Step:   DriverStep,
			Runner: opts.Runner,
			Name:   "nvidia-smi",
			Args:   gpuQueryArgs,
			Match:  probe.NonEmpty(),
		},
		Apply: func(ctx context.Context) error {
			if err := requireNVIDIADevice(ctx, opts.Runner); err != nil {
				return err
			}
			return packageplugin.Install(ctx, pkg)
		},
		Verify:   pkg,
		Timeout:  opts.Timeout,
		Hint:     fmt.Sprintf("install the driver manually (try: sudo ubuntu-drivers install or sudo apt-get install -y %s) and reboot", opts.DriverPackage),
		FollowUp: "reboot the host so the NVIDIA kernel driver loads (try: sudo reboot)",
	}
}

// requireNVIDIADevice fails fast when lspci shows no NVIDIA hardware.
// A host without lspci is given the benefit of the doubt.
func requireNVIDIADevice(ctx context.Context, r internalexec.Runner) error {
	res, err := r.Run(ctx, "lspci")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	if !res.Success() {
		return nil
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.Contains(line, "NVIDIA") && (strings.Contains(line, "VGA") || strings.Contains(line, "3D controller") || strings.Contains(line, "Display")) {
			return nil
		}
	}
	return hosterrors.NewApplyFailure(DriverStep, hosterrors.ReasonNoGPU, fmt.Errorf("no NVIDIA device found by lspci"), "")
}

// CUDA installs the CUDA toolkit so nvcc is available.
func CUDA(opts Options) engine.Step {
	pkg := packageplugin.Packages{Step: CUDAStep, Runner: opts.Runner, Names: []string{opts.CUDAPackage}}
	return engine.Step{
		Name:        CUDAStep,
		Description: "CUDA toolkit",
		DependsOn:   []string{DriverStep},
		Probe: probe.Command{
			Step:   CUDAStep,
			Runner: opts.Runner,
			Name:   "nvcc",
			Args:   []string{"--version"},
			Match:  probe.Contains("release"),
		},
		Apply: func(ctx context.Context) error {
			return packageplugin.Install(ctx, pkg)
		},
		Timeout: opts.Timeout,
		Hint:    fmt.Sprintf("install CUDA manually (try: sudo apt-get install -y %s) and make sure nvcc is on PATH", opts.CUDAPackage),
	}
}

// ContainerToolkit installs nvidia-container-toolkit and registers the
// nvidia runtime with docker.
func ContainerToolkit(opts Options, dockerStep string) engine.Step {
	r := opts.Runner
	return engine.Step{
		Name:        ContainerToolkitStep,
		Description: "NVIDIA Container Toolkit",
		DependsOn:   []string{dockerStep, DriverStep},
		Probe: probe.All(
			probe.Command{Step: ContainerToolkitStep, Runner: r, Name: "nvidia-ctk", Args: []string{"--version"}, Match: probe.Contains("version")},
			probe.Command{Step: ContainerToolkitStep, Runner: r, Name: "docker", Args: []string{"info", "--format", "{{json .Runtimes}}"}, Match: probe.Contains(`"nvidia"`)},
		),
		Apply: func(ctx context.Context) error {
			pkg := packageplugin.Packages{Step: ContainerToolkitStep, Runner: r, Names: []string{toolkitPackage}}
			missing, err := pkg.Missing(ctx)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				script := fmt.Sprintf(
					"set -e; curl -fsSL %s | gpg --batch --yes --dearmor -o %s; "+
						"curl -fsSL %s | sed 's#deb https://#deb [signed-by=%s] https://#g' > %s",
					toolkitGPGURL, toolkitKeyring, toolkitListURL, toolkitKeyring, toolkitList)
				if err := internalexec.Must(ctx, r, ContainerToolkitStep, "sh", "-c", script); err != nil {
					return err
				}
				if err := packageplugin.Install(ctx, pkg); err != nil {
					return err
				}
			}
			if err := internalexec.Must(ctx, r, ContainerToolkitStep, "nvidia-ctk", "runtime", "configure", "--runtime=docker"); err != nil {
				return err
			}
			return internalexec.Must(ctx, r, ContainerToolkitStep, "systemctl", "restart", "docker")
		},
		Timeout: opts.Timeout,
		Hint:    "follow https://docs.nvidia.com/datacenter/cloud-native/container-toolkit/latest/install-guide.html then run: sudo nvidia-ctk runtime configure --runtime=docker",
	}
}

// ContainerTest runs nvidia-smi inside a CUDA container. The probe never
// pulls, so a missing image reads as unsatisfied. Apply only pulls the test
// image; a host that still cannot pass afterwards needs manual work.
func ContainerTest(opts Options) engine.Step {
	r := opts.Runner
	args := append([]string{"run", "--rm", "--pull=never", "--gpus", "all", opts.TestImage, "nvidia-smi"}, gpuQueryArgs...)
	return engine.Step{
		Name:        ContainerTestStep,
		Description: "GPU visible inside containers",
		DependsOn:   []string{ContainerToolkitStep},
		Probe: probe.Command{
			Step:   ContainerTestStep,
			Runner: r,
			Name:   "docker",
			Args:   args,
			Match:  probe.NonEmpty(),
		},
		Apply: func(ctx context.Context) error {
			return internalexec.Must(ctx, r, ContainerTestStep, "docker", "pull", opts.TestImage)
		},
		Optional: opts.TestOptional,
		Timeout:  opts.Timeout,
		Hint:     "reboot after installing the driver, then rerun; check: sudo docker run --rm --gpus all " + opts.TestImage + " nvidia-smi",
	}
}
