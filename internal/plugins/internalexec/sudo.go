package internalexec

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrPasswordRequired means sudo -n found no cached credentials.
var ErrPasswordRequired = fmt.Errorf("sudo: a password is required: %w", fs.ErrPermission)

// sudoSearchPath holds the admin directories sudo's secure_path adds on
// Debian and Ubuntu. A regular user's PATH usually lacks them.
var sudoSearchPath = []string{"/usr/local/sbin", "/usr/sbin", "/sbin"}

func lookPathForSudo(name string) error {
	_, err := exec.LookPath(name)
	if err == nil || strings.ContainsRune(name, '/') {
		return err
	}
	for _, dir := range sudoSearchPath {
		if _, dirErr := exec.LookPath(filepath.Join(dir, name)); dirErr == nil {
			return nil
		}
	}
	return err
}

// sudoFailure turns sudo's own refusal into an error. Exit codes from the
// wrapped command are left to the caller.
func sudoFailure(res Result) error {
	if res.ExitCode == 1 && strings.Contains(res.Stderr, "a password is required") {
		return ErrPasswordRequired
	}
	return nil
}

// Authenticate runs "sudo -v" attached to the operator's terminal so later
// non-interactive commands find cached credentials.
func (r *ExecRunner) Authenticate(ctx context.Context, stdin io.Reader, stderr io.Writer) error {
	if _, err := exec.LookPath("sudo"); err != nil {
		return fmt.Errorf("sudo is not installed; run as root or set settings.sudo: false: %w", err)
	}
	cmd := exec.CommandContext(ctx, "sudo", "-v")
	cmd.Stdin = stdin
	cmd.Stdout = stderr
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sudo authentication failed: %w", err)
	}
	return nil
}

// KeepAlive refreshes the sudo timestamp every interval until ctx ends.
func (r *ExecRunner) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = exec.CommandContext(ctx, "sudo", "-n", "-v").Run()
		}
	}
}
