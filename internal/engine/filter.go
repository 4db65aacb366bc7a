package engine

import (
	"fmt"

	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// Subgraph restricts the graph for --only / --skip.
//
// only keeps the named steps plus everything they transitively depend on.
// skip removes the named steps; dependency edges pointing at a skipped step
// are dropped so its dependents still run.
func (g *Graph) Subgraph(only, skip []string) (*Graph, error) {
	for _, name := range append(append([]string(nil), only...), skip...) {
		if _, ok := g.nodes[name]; !ok {
			return nil, hosterrors.NewValidationError("steps", fmt.Sprintf("unknown step %q", name), nil)
		}
	}

	if len(only) == 0 && len(skip) == 0 {
		return g, nil
	}

	keep := make(map[string]bool, len(g.nodes))
	if len(only) == 0 {
		for name := range g.nodes {
			keep[name] = true
		}
	} else {
		var visit func(*Node)
		visit = func(node *Node) {
			if keep[node.Step.Name] {
				return
			}
			keep[node.Step.Name] = true
			for _, dep := range node.DependsOn {
				visit(dep)
			}
		}
		for _, name := range only {
			visit(g.nodes[name])
		}
	}
	for _, name := range skip {
		delete(keep, name)
	}

	steps := make([]Step, 0, len(keep))
	for _, node := range g.sortedNodes() {
		if !keep[node.Step.Name] {
			continue
		}
		step := node.Step
		deps := make([]string, 0, len(step.DependsOn))
		for _, dep := range step.DependsOn {
			if keep[dep] {
				deps = append(deps, dep)
			}
		}
		step.DependsOn = deps
		steps = append(steps, step)
	}

	return NewGraph(steps)
}
