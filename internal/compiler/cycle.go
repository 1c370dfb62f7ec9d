package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/translation"
	"github.com/roach88/calcx/internal/types"
)

// CycleWarning reports computed attributes whose definitions read each
// other. Inlining any member of the cycle fails with a circular reference,
// so the level is always "error"; the type exists so callers can render
// cycles next to other diagnostics.
type CycleWarning struct {
	Path    []string `json:"path"`    // ["A.P", "A.Q", "A.P"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`
}

// AnalyzeCycles detects dependency cycles between the attributes of s
// without inlining anything.
//
// The algorithm:
//  1. Build attribute → attribute edges from every member read in a body.
//     A read depends on the nearest attribute for the member on the static
//     type's ancestor chain and on every attribute for it on a subtype,
//     since overrides are folded into the read.
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle
//
// Reads under the escape marker are not edges.
func AnalyzeCycles(s *Schema) []CycleWarning {
	if s == nil || len(s.Attributes) == 0 {
		return []CycleWarning{}
	}

	graph := buildDependencyGraph(s)
	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(strings.Join(a.Path, " "), strings.Join(b.Path, " "))
	})
	return warnings
}

// dependencyGraph maps attribute symbol → attributes its body reads.
type dependencyGraph struct {
	nodes []string
	edges map[string][]string
}

func buildDependencyGraph(s *Schema) *dependencyGraph {
	graph := &dependencyGraph{edges: make(map[string][]string)}
	for _, a := range s.Attributes {
		node := a.Symbol.String()
		if _, seen := graph.edges[node]; !seen {
			graph.nodes = append(graph.nodes, node)
			graph.edges[node] = []string{}
		}
	}

	for _, a := range s.Attributes {
		node := a.Symbol.String()
		for _, dep := range dependencies(s, a.Body.Body) {
			if !slices.Contains(graph.edges[node], dep) {
				graph.edges[node] = append(graph.edges[node], dep)
			}
		}
	}
	return graph
}

// dependencies lists the attributes read by n, in declaration order.
func dependencies(s *Schema, n expr.Node) []string {
	var deps []string
	var visit func(expr.Node)
	visit = func(n expr.Node) {
		expr.Inspect(n, func(node expr.Node) bool {
			switch node := node.(type) {
			case *expr.NoTranslate:
				// The escaped read itself is not an edge; its operands are.
				for _, child := range expr.Children(node.Target) {
					visit(child)
				}
				return false
			case *expr.PropertyRead:
				deps = append(deps, readers(s, node.Target.Type(), node.Member, translation.PropertyMember)...)
			case *expr.MethodCall:
				if !node.IsStatic() {
					deps = append(deps, readers(s, node.Target.Type(), node.Method, translation.MethodMember)...)
				}
			}
			return true
		})
	}
	visit(n)
	return deps
}

// readers returns the attributes a read of member through static type t
// may expand to.
func readers(s *Schema, t *types.Type, member string, kind translation.MemberKind) []string {
	var out []string
	nearest := false
	for _, a := range s.Attributes {
		sym := a.Symbol
		if sym.Member != member || sym.Kind != kind {
			continue
		}
		if sym.Type != t && t.IsAssignableFrom(sym.Type) {
			out = append(out, sym.String())
		}
	}
	for _, anc := range t.Chain() {
		for _, a := range s.Attributes {
			sym := a.Symbol
			if sym.Type == anc && sym.Member == member && sym.Kind == kind {
				out = append(out, sym.String())
				nearest = true
				break
			}
		}
		if nearest {
			break
		}
	}
	return out
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph *dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		sym := scc[0]
		return CycleWarning{
			Path:    []string{sym, sym},
			Message: fmt.Sprintf("Computed attribute reads itself: %s → %s", sym, sym),
			Level:   "error",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Circular computed attributes: %s", strings.Join(path, " → ")),
		Level:   "error",
	}
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph *dependencyGraph) bool {
	for _, neighbor := range graph.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph *dependencyGraph) [][]string {
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
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph.edges[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
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
			sccs = append(sccs, scc)
		}
	}

	// Visit nodes in declaration order so the output is stable
	for _, node := range graph.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: start at the SCC member declared first, follow edges to other
// SCC members, continue until we return to start node.
func reconstructCyclePath(scc []string, graph *dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	for _, node := range graph.nodes {
		if sccSet[node] {
			start = node
			break
		}
	}
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph.edges[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}
