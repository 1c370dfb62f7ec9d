package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, src string) *Schema {
	t.Helper()
	s, err := CompileString(src)
	require.NoError(t, err)
	return s
}

func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
	assert.Empty(t, AnalyzeCycles(mustCompile(t, `type: A: fields: X: "string"`)))
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	s := mustCompile(t, `
		type: A: {
			fields: { X: "string" }
			computed: {
				P: { type: "string", is: { field: "Q" } }
				Q: { type: "string", is: { field: "R" } }
				R: { type: "string", is: { field: "X" } }
			}
		}
	`)
	assert.Empty(t, AnalyzeCycles(s), "a chain of reads is not a cycle")
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	s := mustCompile(t, `
		type: A: computed: P: { type: "string", is: { static: "concat", args: [{ field: "P" }, { const: "!" }] } }
	`)

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"A.P", "A.P"}, warnings[0].Path)
	assert.Equal(t, "error", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "reads itself")
}

func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	s := mustCompile(t, `
		type: A: computed: {
			P: { type: "string", is: { field: "Q" } }
			Q: { type: "string", is: { field: "P" } }
		}
	`)

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"A.P", "A.Q", "A.P"}, warnings[0].Path)
	assert.Equal(t, "Circular computed attributes: A.P → A.Q → A.P", warnings[0].Message)
}

func TestAnalyzeCycles_ThroughMethods(t *testing.T) {
	s := mustCompile(t, `
		type: A: {
			computed: P: { type: "string", is: { call: "M" } }
			methods: M: { type: "string", is: { field: "P" } }
		}
	`)

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"A.P", "A.M()", "A.P"}, warnings[0].Path)
}

func TestAnalyzeCycles_ThroughOverride(t *testing.T) {
	// A.P itself is acyclic, but the override on B is folded into every
	// read of P through A.
	s := mustCompile(t, `
		type: A: {
			fields: { X: "string" }
			computed: {
				P: { type: "string", is: { field: "X" } }
				Q: { type: "string", is: { field: "P" } }
			}
		}
		type: B: {
			extends: "A"
			computed: P: is: { field: "Q" }
		}
	`)

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 1)
	assert.ElementsMatch(t, []string{"A.Q", "B.P", "A.Q"}, warnings[0].Path)
}

func TestAnalyzeCycles_EscapeHatchBreaksCycle(t *testing.T) {
	s := mustCompile(t, `
		type: A: {
			fields: { P: "string" }
		}
		type: B: {
			extends: "A"
			computed: P: is: { static: "concat", args: [{ raw: { field: "P" } }, { const: "!" }] }
		}
	`)
	assert.Empty(t, AnalyzeCycles(s))
}

func TestAnalyzeCycles_MultipleIndependentCycles(t *testing.T) {
	s := mustCompile(t, `
		type: B: computed: {
			X: { type: "string", is: { field: "Y" } }
			Y: { type: "string", is: { field: "X" } }
		}
		type: A: computed: {
			P: { type: "string", is: { field: "P" } }
		}
	`)

	warnings := AnalyzeCycles(s)
	require.Len(t, warnings, 2)
	// Sorted by path.
	assert.Equal(t, []string{"A.P", "A.P"}, warnings[0].Path)
	assert.Equal(t, []string{"B.X", "B.Y", "B.X"}, warnings[1].Path)
}

func TestAnalyzeCycles_ThroughEnumBase(t *testing.T) {
	s := mustCompile(t, `
		enum: E: values: { V: 0 }
		type: A: {
			fields: { Kind: "E" }
			computed: Label: { type: "string", is: { call: "ToString", of: { field: "Kind" } } }
		}
		base: Enum: ToString: is: { static: "caption", args: [{ this: true }] }
	`)
	assert.Empty(t, AnalyzeCycles(s))

	graph := buildDependencyGraph(s)
	assert.Equal(t, []string{"Enum.ToString()"}, graph.edges["A.Label"])
}

func TestHasSelfLoop(t *testing.T) {
	graph := &dependencyGraph{
		nodes: []string{"a", "b"},
		edges: map[string][]string{"a": {"a"}, "b": {"a"}},
	}
	assert.True(t, hasSelfLoop("a", graph))
	assert.False(t, hasSelfLoop("b", graph))
}

func TestTarjanSCC_DAG(t *testing.T) {
	graph := &dependencyGraph{
		nodes: []string{"a", "b", "c"},
		edges: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {}},
	}
	sccs := tarjanSCC(graph)
	assert.Len(t, sccs, 3)
	for _, scc := range sccs {
		assert.Len(t, scc, 1)
	}
}

func TestReconstructCyclePath_Empty(t *testing.T) {
	assert.Empty(t, reconstructCyclePath(nil, &dependencyGraph{}))
}

func TestReconstructCyclePath_StartsAtFirstDeclared(t *testing.T) {
	graph := &dependencyGraph{
		nodes: []string{"a", "b", "c"},
		edges: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}},
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, reconstructCyclePath([]string{"c", "b", "a"}, graph))
}
