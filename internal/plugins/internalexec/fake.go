package internalexec

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
)

// FakeRunner is an in-memory Runner for tests. Responses are keyed by the
// full command line; unknown commands behave as if the binary is missing.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string][]fakeResponse
	calls     []string
}

type fakeResponse struct {
	result Result
	err    error
	hook   func()
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: make(map[string][]fakeResponse)}
}

var _ Runner = (*FakeRunner)(nil)

// On queues a result for the given command line. When several results are
// queued for the same line they are returned in order and the last one repeats.
func (f *FakeRunner) On(line string, res Result) *FakeRunner {
	return f.add(line, fakeResponse{result: res})
}

// OnError queues an error for the given command line.
func (f *FakeRunner) OnError(line string, err error) *FakeRunner {
	return f.add(line, fakeResponse{err: err})
}

// OnRun queues a result and a callback invoked when the command runs.
func (f *FakeRunner) OnRun(line string, res Result, hook func()) *FakeRunner {
	return f.add(line, fakeResponse{result: res, hook: hook})
}

func (f *FakeRunner) add(line string, resp fakeResponse) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = append(f.responses[line], resp)
	return f
}

// Run returns the queued response for the command line.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	line := CommandLine(name, args...)

	f.mu.Lock()
	f.calls = append(f.calls, line)
	queue, ok := f.responses[line]
	var resp fakeResponse
	if ok && len(queue) > 0 {
		resp = queue[0]
		if len(queue) > 1 {
			f.responses[line] = queue[1:]
		}
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	if resp.hook != nil {
		resp.hook()
	}
	return resp.result, resp.err
}

// Calls returns every command line run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Called reports whether the command line was run.
func (f *FakeRunner) Called(line string) bool {
	for _, c := range f.Calls() {
		if c == line {
			return true
		}
	}
	return false
}

// String is used in assertion messages.
func (f *FakeRunner) String() string {
	return fmt.Sprintf("FakeRunner%v", f.Calls())
}
