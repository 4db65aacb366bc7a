package main

import (
	"context"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/alexisbeaulieu97/whisperhost/internal/plugins/internalexec"
)

// sudoRefresh stays under sudo's default 15 minute timestamp timeout.
const sudoRefresh = 4 * time.Minute

// sudoAuthenticator is the subset of ExecRunner that prepares sudo.
type sudoAuthenticator interface {
	UsesSudo() bool
	Authenticate(ctx context.Context, stdin io.Reader, stderr io.Writer) error
	KeepAlive(ctx context.Context, interval time.Duration)
}

var _ sudoAuthenticator = (*internalexec.ExecRunner)(nil)

// prepareSudo asks for the sudo password once, before any step or the live
// view starts, and keeps the credentials fresh until the returned stop is
// called. When stdin is not a terminal nothing is asked and commands that
// need a password fail as permission errors.
func prepareSudo(ctx context.Context, runner internalexec.Runner, stdin io.Reader, stderr io.Writer) (func(), error) {
	noop := func() {}
	auth, ok := runner.(sudoAuthenticator)
	if !ok || !auth.UsesSudo() || !canPrompt(stdin) {
		return noop, nil
	}
	if err := auth.Authenticate(ctx, stdin, stderr); err != nil {
		return noop, err
	}

	keepCtx, cancel := context.WithCancel(ctx)
	go auth.KeepAlive(keepCtx, sudoRefresh)
	return cancel, nil
}

// canPrompt reports whether stdin can answer a password prompt; tests
// replace it.
var canPrompt = func(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
