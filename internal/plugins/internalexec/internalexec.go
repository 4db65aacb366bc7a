package internalexec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
)

// Result captures the exit code and trimmed output of a finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited with code 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// PrimaryOutput returns stderr if present, otherwise stdout.
func (r Result) PrimaryOutput() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Runner executes host commands. A non-zero exit is reported through
// Result.ExitCode with a nil error; the error is reserved for commands that
// could not be started or were cancelled.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Sudo prefixes every command with "sudo" unless already running as root.
	Sudo bool
	// Stream mirrors command output to these writers while it is collected.
	Stdout io.Writer
	Stderr io.Writer
	// Env is appended to the inherited environment.
	Env []string
}

var _ Runner = (*ExecRunner)(nil)

// Run executes name with args and waits for completion.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	euid := os.Geteuid()
	name, args, err := r.argv(euid, name, args)
	if err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	res, err := RunStreaming(cmd)
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		if r.usesSudo(euid) {
			return res, sudoFailure(res)
		}
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	return res, err
}

// UsesSudo reports whether commands from this process go through sudo.
func (r *ExecRunner) UsesSudo() bool {
	return r.usesSudo(os.Geteuid())
}

func (r *ExecRunner) usesSudo(euid int) bool {
	return r.Sudo && euid != 0
}

// argv applies the non-interactive sudo prefix for a non-root euid.
func (r *ExecRunner) argv(euid int, name string, args []string) (string, []string, error) {
	if !r.usesSudo(euid) {
		return name, args, nil
	}
	// sudo reports a missing binary as exit status 1
	if err := lookPathForSudo(name); err != nil {
		return "", nil, err
	}
	prefixed := []string{"-n"}
	if len(r.Env) > 0 {
		// sudo resets the environment
		prefixed = append(append(prefixed, "env"), r.Env...)
	}
	return "sudo", append(append(prefixed, name), args...), nil
}

// RunStreaming wires the command's stdout/stderr through to any writers
// already set on cmd while collecting the output for later inspection.
func RunStreaming(cmd *exec.Cmd) (Result, error) {
	var stdoutBuf, stderrBuf bytes.Buffer

	if cmd.Stdout != nil {
		cmd.Stdout = io.MultiWriter(cmd.Stdout, &stdoutBuf)
	} else {
		cmd.Stdout = &stdoutBuf
	}
	if cmd.Stderr != nil {
		cmd.Stderr = io.MultiWriter(cmd.Stderr, &stderrBuf)
	} else {
		cmd.Stderr = &stderrBuf
	}

	err := cmd.Run()

	return Result{
		Stdout: strings.TrimSpace(stdoutBuf.String()),
		Stderr: strings.TrimSpace(stderrBuf.String()),
	}, err
}

// IsNotFound reports whether err means the executable does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// IsPermission reports whether err means the executable could not be run for lack of permission.
func IsPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}

// CommandLine renders name and args for log and report messages.
func CommandLine(name string, args ...string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
