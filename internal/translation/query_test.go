package translation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/queryir"
)

func TestInlineQuery(t *testing.T) {
	ts := newOverrideTypes()
	m := newTestMap(ts.u)
	ts.registerMoreOverride(t, m)

	q := queryir.NewSelect(ts.a)
	q.Column("calc", expr.Prop(q.Row, "Calc")).
		Where(expr.Ne(expr.Prop(q.Row, "Calc"), expr.Str("c calculated"))).
		Order(expr.Prop(q.Row, "PK"), false)

	require.False(t, queryir.Validate(q).IsTranslatable)

	out, err := m.InlineQuery(q)
	require.NoError(t, err)

	result := queryir.Validate(out)
	assert.True(t, result.IsTranslatable, "warnings: %v", result.Warnings)
	assert.Equal(t,
		`((m is E) ? "e calculated" : ((m is C) ? "c calculated" : "a second calculated"))`,
		out.Columns[0].Expr.String())
	assert.Equal(t, "m.PK", out.OrderBy[0].Expr.String())
	assert.Equal(t, "m.Calc", q.Columns[0].Expr.String())
}
