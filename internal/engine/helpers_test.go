package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/alexisbeaulieu97/whisperhost/internal/model"
	"github.com/alexisbeaulieu97/whisperhost/internal/probe"
)

// fakeHost is an in-memory machine: a component is installed once its flag
// is set. Apply calls are counted per step.
type fakeHost struct {
	mu        sync.Mutex
	installed map[string]bool
	applies   map[string]int
	order     []string
}

func newFakeHost(installed ...string) *fakeHost {
	h := &fakeHost{installed: map[string]bool{}, applies: map[string]int{}}
	for _, name := range installed {
		h.installed[name] = true
	}
	return h
}

func (h *fakeHost) probe(name string) probe.Probe {
	return probe.Func(func(context.Context) probe.Result {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.installed[name] {
			return probe.Ok("%s present", name)
		}
		return probe.Missing("%s missing", name)
	})
}

func (h *fakeHost) install(name string) ApplyFunc {
	return h.applyWith(name, nil)
}

func (h *fakeHost) failing(name string, err error) ApplyFunc {
	return h.applyWith(name, err)
}

func (h *fakeHost) applyWith(name string, err error) ApplyFunc {
	return func(context.Context) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.applies[name]++
		h.order = append(h.order, name)
		if err != nil {
			return err
		}
		h.installed[name] = true
		return nil
	}
}

func (h *fakeHost) step(name string, deps ...string) Step {
	return Step{Name: name, DependsOn: deps, Probe: h.probe(name), Apply: h.install(name)}
}

func (h *fakeHost) applyCount(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.applies[name]
}

func (h *fakeHost) totalApplies() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, n := range h.applies {
		total += n
	}
	return total
}

func (h *fakeHost) applyOrder() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []model.StepResult
}

func (o *recordingObserver) StepStarted(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, name)
}

func (o *recordingObserver) StepFinished(res model.StepResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, res)
}

var errAptBroken = errors.New("E: Unable to locate package nvidia-driver-550")
