package translation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
)

func TestJoin_Synthesis(t *testing.T) {
	et := newEntityTypes()
	m := newTestMap(et.u)

	row := expr.Param("t", et.entity)
	join := expr.Static(expr.FuncJoin, expr.Str(" - "),
		expr.Prop(row, "NormalAttribute"),
		expr.Prop(row, "NormalAttribute2"),
		expr.Prop(row, "NormalAttribute3"),
		expr.Str("Constant"),
	)

	out := mustInline(t, m, join)
	assert.Equal(t,
		`concat(t.NormalAttribute, " - ", concat(t.NormalAttribute2, " - ", concat(t.NormalAttribute3, " - ", concat("Constant", "", ""))))`,
		out.String())

	fn, err := expr.Compile(expr.NewLambda(row, out), nil)
	require.NoError(t, err)
	v, err := fn(expr.NewRecord(et.entity, ir.IRObject{
		"NormalAttribute":  ir.IRString("TEST0"),
		"NormalAttribute2": ir.IRString("Attr0"),
		"NormalAttribute3": ir.IRString("AttrA"),
	}))
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("TEST0 - Attr0 - AttrA - Constant"), v)
}

func TestJoin_InlinesComputedArguments(t *testing.T) {
	et := newEntityTypes()
	m := newTestMap(et.u)
	mustRegister(t, m, et.entity, "Calculated", lambda(et.entity, func(o *expr.Parameter) expr.Node {
		return expr.Prop(o, "NormalAttribute")
	}))

	row := expr.Param("t", et.entity)
	out := mustInline(t, m, expr.Static(expr.FuncJoin, expr.Str("/"), expr.Prop(row, "Calculated"), expr.Prop(row, "PK")))
	assert.Equal(t, `concat(t.NormalAttribute, "/", concat(t.PK, "", ""))`, out.String())
}

func TestJoin_SeparatorMustBeConstant(t *testing.T) {
	et := newEntityTypes()
	m := newTestMap(et.u)

	row := expr.Param("t", et.entity)
	_, err := m.Inline(expr.Static(expr.FuncJoin,
		expr.Prop(row, "NormalAttribute"),
		expr.Prop(row, "NormalAttribute2"),
		expr.Str("Constant"),
	))
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))

	_, err = m.Inline(expr.Static(expr.FuncJoin))
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
}

func TestBuildJoin_ConstantsOnly(t *testing.T) {
	l, source, err := BuildJoin(expr.Str(","), []expr.Node{expr.Str("a"), expr.Str("b")})
	require.NoError(t, err)
	assert.Nil(t, source)
	assert.Empty(t, l.Params)
	assert.Equal(t, `concat("a", ",", concat("b", "", ""))`, expr.Format(l.Body))
}
