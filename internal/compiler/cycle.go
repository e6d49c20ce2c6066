package compiler

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/rill/internal/ir"
)

// CycleWarning represents a potential feedback loop between units.
//
// Cycles are warnings, not errors, because they may be intentional:
//   - Effects that retry on failure
//   - Samples whose reducers converge to a fixed point (no-op updates stop
//     propagation)
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["count", "bump", "count"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on a program.
//
// It builds a unit → unit trigger graph and detects strongly connected
// components. Edges:
//   - reducer: on → store
//   - sample: clock (or source without a clock) → target
//   - combine: each store → combined store
//   - attach: attached effect → inner effect
//
// Event references ("fx.done", "count.updates") count as their unit. Reads
// (a sample's source with a clock, an attach source) are not edges.
//
// Runtime loops are bounded by the step quota; a warning here means a
// dispatch may hit it.
func AnalyzeCycles(spec *ir.ProgramSpec) []CycleWarning {
	if spec == nil {
		return []CycleWarning{}
	}

	graph := buildDependencyGraph(spec)
	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps unit → units it can trigger.
type dependencyGraph map[string][]string

func (g dependencyGraph) edge(from, to string) {
	from, to = ir.ParseRef(from).Unit, ir.ParseRef(to).Unit
	if from == "" || to == "" {
		return
	}
	if !slices.Contains(g[from], to) {
		g[from] = append(g[from], to)
	}
	if g[to] == nil {
		g[to] = []string{}
	}
}

func buildDependencyGraph(spec *ir.ProgramSpec) dependencyGraph {
	graph := make(dependencyGraph)

	for _, r := range spec.Reducers {
		graph.edge(r.On, r.Store)
	}
	for _, s := range spec.Samples {
		if s.Target == "" {
			continue
		}
		clock := s.Clock
		if clock == "" {
			clock = s.Source
		}
		graph.edge(clock, s.Target)
	}
	for _, c := range spec.Combines {
		for _, s := range c.Stores {
			graph.edge(s, c.Name)
		}
	}
	for _, a := range spec.Attaches {
		graph.edge(a.Name, a.Effect)
	}
	for node := range graph {
		slices.Sort(graph[node])
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Nodes are visited in sorted order so the result is deterministic.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, node := range slices.Sorted(maps.Keys(graph)) {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	slices.SortFunc(sccs, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		unit := scc[0]
		return CycleWarning{
			Path:    []string{unit, unit},
			Message: fmt.Sprintf("Self-triggering unit detected: %s → %s", unit, unit),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential cycle detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)

		if next == start {
			break
		}

		current = next
	}

	return path
}
