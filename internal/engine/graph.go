package engine

import (
	"fmt"
	"sort"
	"strings"

	hosterrors "github.com/alexisbeaulieu97/whisperhost/pkg/errors"
)

// Node represents a vertex in the step graph.
type Node struct {
	Step       Step
	Index      int
	DependsOn  []*Node
	Dependents []*Node
}

// Graph is a validated, acyclic set of steps with a stable execution order.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// NewGraph validates steps and computes their execution order. Among steps
// with no relative dependency the declaration order is preserved.
func NewGraph(steps []Step) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*Node, len(steps))}

	for i, step := range steps {
		if strings.TrimSpace(step.Name) == "" {
			return nil, hosterrors.NewValidationError(fmt.Sprintf("steps[%d].name", i), "step name is required", nil)
		}
		if _, exists := g.nodes[step.Name]; exists {
			return nil, hosterrors.NewValidationError(fmt.Sprintf("steps[%d].name", i), fmt.Sprintf("duplicate step name %q", step.Name), nil)
		}
		if step.Probe == nil {
			return nil, hosterrors.NewValidationError(step.Name, "probe is required", nil)
		}
		g.nodes[step.Name] = &Node{Step: step, Index: i}
	}

	for _, step := range steps {
		target := g.nodes[step.Name]
		seen := make(map[string]bool, len(step.DependsOn))
		for _, dep := range step.DependsOn {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			source, ok := g.nodes[dep]
			if !ok {
				return nil, hosterrors.NewValidationError(step.Name, fmt.Sprintf("depends on unknown step %q", dep), nil)
			}
			source.Dependents = append(source.Dependents, target)
			target.DependsOn = append(target.DependsOn, source)
		}
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		return nil, hosterrors.NewCycleDetected(cycle)
	}

	g.order = g.stableTopologicalOrder()
	return g, nil
}

// stableTopologicalOrder runs Kahn's algorithm, always picking the ready
// step with the lowest declaration index.
func (g *Graph) stableTopologicalOrder() []string {
	indegree := make(map[string]int, len(g.nodes))
	for name, node := range g.nodes {
		indegree[name] = len(node.DependsOn)
	}

	var ready []*Node
	for _, node := range g.nodes {
		if indegree[node.Step.Name] == 0 {
			ready = append(ready, node)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].Index < ready[j].Index })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next.Step.Name)

		for _, dependent := range next.Dependents {
			indegree[dependent.Step.Name]--
			if indegree[dependent.Step.Name] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return order
}

// findCycle returns the first dependency cycle in declaration order, closed
// with its starting step (a -> b -> a), or nil.
func (g *Graph) findCycle() []string {
	nodes := g.sortedNodes()
	visiting := make(map[string]bool, len(nodes))
	visited := make(map[string]bool, len(nodes))
	var stack []string
	var cycle []string

	var dfs func(*Node) bool
	dfs = func(node *Node) bool {
		name := node.Step.Name
		visiting[name] = true
		stack = append(stack, name)

		for _, dep := range node.DependsOn {
			depName := dep.Step.Name
			if visited[depName] {
				continue
			}
			if visiting[depName] {
				idx := indexOf(stack, depName)
				cycle = append(append([]string{}, stack[idx:]...), depName)
				return true
			}
			if dfs(dep) {
				return true
			}
		}

		visiting[name] = false
		visited[name] = true
		stack = stack[:len(stack)-1]
		return false
	}

	for _, node := range nodes {
		if visited[node.Step.Name] {
			continue
		}
		if dfs(node) {
			return cycle
		}
	}
	return nil
}

func (g *Graph) sortedNodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Index < nodes[j].Index })
	return nodes
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}

// Order returns step names in execution order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Steps returns the steps in execution order.
func (g *Graph) Steps() []Step {
	steps := make([]Step, 0, len(g.order))
	for _, name := range g.order {
		steps = append(steps, g.nodes[name].Step)
	}
	return steps
}

// Step looks up a step by name.
func (g *Graph) Step(name string) (Step, bool) {
	node, ok := g.nodes[name]
	if !ok {
		return Step{}, false
	}
	return node.Step, true
}

// Len returns the number of steps in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Dependencies returns the direct dependencies of name in declaration order.
func (g *Graph) Dependencies(name string) []string {
	node, ok := g.nodes[name]
	if !ok {
		return nil
	}
	deps := make([]string, 0, len(node.DependsOn))
	for _, dep := range node.DependsOn {
		deps = append(deps, dep.Step.Name)
	}
	return deps
}

// String renders the execution order, one step per line.
func (g *Graph) String() string {
	var b strings.Builder
	for i, name := range g.order {
		deps := g.Dependencies(name)
		if len(deps) == 0 {
			fmt.Fprintf(&b, "%2d. %s\n", i+1, name)
			continue
		}
		fmt.Fprintf(&b, "%2d. %s (after %s)\n", i+1, name, strings.Join(deps, ", "))
	}
	return b.String()
}
