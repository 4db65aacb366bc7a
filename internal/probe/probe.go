// Package probe holds the read-only checks that decide whether a step needs
// to run. A probe never mutates host state and is safe to call repeatedly.
package probe

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Status is the classification returned by a probe.
type Status string

const (
	Satisfied   Status = "satisfied"
	Unsatisfied Status = "unsatisfied"
	Unknown     Status = "unknown"
)

// Result is what a probe observed. Err is set only when the check itself
// could not run, in which case Status is Unknown. Diff optionally previews
// the change an apply would make.
type Result struct {
	Status Status
	Detail string
	Diff   string
	Err    error
}

// Ok builds a Satisfied result.
func Ok(format string, args ...any) Result {
	return Result{Status: Satisfied, Detail: fmt.Sprintf(format, args...)}
}

// Missing builds an Unsatisfied result.
func Missing(format string, args ...any) Result {
	return Result{Status: Unsatisfied, Detail: fmt.Sprintf(format, args...)}
}

// Failed builds an Unknown result for a check that could not run.
func Failed(err error, format string, args ...any) Result {
	return Result{Status: Unknown, Detail: fmt.Sprintf(format, args...), Err: err}
}

// Probe reports the current state of one precondition.
type Probe interface {
	Probe(ctx context.Context) Result
}

// Func adapts a plain function to Probe.
type Func func(ctx context.Context) Result

// Probe calls f.
func (f Func) Probe(ctx context.Context) Result {
	return f(ctx)
}

// All is satisfied only when every probe is; the first non-satisfied result wins.
func All(probes ...Probe) Probe {
	return Func(func(ctx context.Context) Result {
		var details []string
		for _, p := range probes {
			res := p.Probe(ctx)
			if res.Status != Satisfied {
				return res
			}
			details = append(details, res.Detail)
		}
		return Result{Status: Satisfied, Detail: joinDetails(details)}
	})
}

func joinDetails(details []string) string {
	out := ""
	for _, d := range details {
		if d == "" {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += d
	}
	return out
}

// Registry maps step names to their probes.
type Registry struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]Probe)}
}

// Register adds a probe for a step name.
func (r *Registry) Register(name string, p Probe) error {
	if name == "" {
		return fmt.Errorf("probe name cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("probe for %q cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.probes[name]; exists {
		return fmt.Errorf("probe %q already registered", name)
	}
	r.probes[name] = p
	return nil
}

// Probe runs the probe registered for name. An unregistered name yields Unknown.
func (r *Registry) Probe(ctx context.Context, name string) Result {
	r.mu.RLock()
	p, ok := r.probes[name]
	r.mu.RUnlock()
	if !ok {
		return Failed(fmt.Errorf("no probe registered for %q", name), "no probe registered")
	}
	if err := ctx.Err(); err != nil {
		return Failed(err, "probe cancelled")
	}
	return p.Probe(ctx)
}

// Has reports whether a probe is registered for name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.probes[name]
	return ok
}

// Names returns registered names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
