package translation

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/types"
)

func newTestMap(u *types.Universe, opts ...Option) *Map {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewMap(u, opts...)
}

func newCapturingMap(u *types.Universe, opts ...Option) (*Map, *bytes.Buffer) {
	var buf bytes.Buffer
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))}, opts...)
	return NewMap(u, opts...), &buf
}

// lambda builds o => body(o) with o typed t.
func lambda(t *types.Type, body func(o *expr.Parameter) expr.Node) *expr.Lambda {
	o := expr.Param("o", t)
	return expr.NewLambda(o, body(o))
}

func constant(s string) *expr.Lambda {
	return lambda(types.Object, func(*expr.Parameter) expr.Node { return expr.Str(s) })
}

func mustRegister(t *testing.T, m *Map, typ *types.Type, member string, body *expr.Lambda) {
	t.Helper()
	_, err := m.RegisterProperty(typ, member, body)
	require.NoError(t, err)
}

func mustInline(t *testing.T, m *Map, n expr.Node) expr.Node {
	t.Helper()
	out, err := m.Inline(n)
	require.NoError(t, err)
	return out
}

// overrideTypes is A <- B <- D and A <- C <- E <- F <- G.
type overrideTypes struct {
	u                   *types.Universe
	a, b, c, d, e, f, g *types.Type
}

func newOverrideTypes() overrideTypes {
	a := types.NewStruct("A", nil).
		WithField("PK", types.Int).
		WithField("Value", types.String).
		WithProperty("Calc", types.String).
		WithProperty("Calc2", types.String)
	b := types.NewStruct("B", a)
	c := types.NewStruct("C", a)
	d := types.NewStruct("D", b)
	e := types.NewStruct("E", c)
	f := types.NewStruct("F", e)
	g := types.NewStruct("G", f)
	u := types.NewUniverse().MustAdd(a, b, c, d, e, f, g)
	return overrideTypes{u: u, a: a, b: b, c: c, d: d, e: e, f: f, g: g}
}

// registerMoreOverride declares A.Calc = o.Calc2 with overrides on C and E.
func (ts overrideTypes) registerMoreOverride(t *testing.T, m *Map) {
	t.Helper()
	mustRegister(t, m, ts.a, "Calc", lambda(ts.a, func(o *expr.Parameter) expr.Node { return expr.Prop(o, "Calc2") }))
	mustRegister(t, m, ts.a, "Calc2", constant("a second calculated"))
	mustRegister(t, m, ts.c, "Calc", constant("c calculated"))
	mustRegister(t, m, ts.e, "Calc", constant("e calculated"))
}

// entityTypes mirrors a single table with enum and string columns.
type entityTypes struct {
	u      *types.Universe
	entity *types.Type
	status *types.Type
	kind   *types.Type
}

func newEntityTypes() entityTypes {
	kind := types.NewEnum("TestEnum",
		types.EnumValue{Name: "Value0", Value: 0},
		types.EnumValue{Name: "Value1", Value: 1},
	)
	status := types.NewEnum("TestEnum2",
		types.EnumValue{Name: "NotSpecified", Value: 0},
		types.EnumValue{Name: "ValueA", Value: 1},
		types.EnumValue{Name: "ValueB", Value: 2, Caption: "Value B Caption"},
		types.EnumValue{Name: "ValueC", Value: 3},
	)
	entity := types.NewStruct("TestEntity", nil).
		WithField("PK", types.Int).
		WithField("NormalAttribute", types.String).
		WithField("NormalAttribute2", types.String).
		WithField("NormalAttribute3", types.String).
		WithField("Status", status).
		WithField("Kind", kind).
		WithProperty("Label", types.String).
		WithProperty("Calculated", types.String).
		WithMethod("CalculatedMethod", types.String).
		WithMethod("CalculatedMethodCallingCalculatedMethod", types.String)
	u := types.NewUniverse().MustAdd(kind, status, entity)
	return entityTypes{u: u, entity: entity, status: status, kind: kind}
}

// captionBase is the enum-wide ToString translation rendering captions.
func captionBase(m *Map) error {
	_, err := m.RegisterMethod(types.Enum, "ToString", lambda(types.Enum, func(o *expr.Parameter) expr.Node {
		return expr.Static(expr.FuncCaption, o)
	}))
	return err
}
