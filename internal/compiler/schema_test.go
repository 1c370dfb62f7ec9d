package compiler

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/translation"
	"github.com/roach88/calcx/internal/types"
)

func installEntity(t *testing.T) (*Schema, *translation.Map) {
	t.Helper()
	s := compileEntity(t)
	m, err := s.NewMap(translation.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return s, m
}

func lookupType(t *testing.T, s *Schema, name string) *types.Type {
	t.Helper()
	typ, ok := s.Universe.Lookup(name)
	require.True(t, ok, "type %s", name)
	return typ
}

func TestInstall_Lazy(t *testing.T) {
	s, m := installEntity(t)
	assert.Empty(t, m.Entries(), "nothing registers before the first lookup")

	_, ok := m.Find(lookupType(t, s, "Base"), "Calc", translation.PropertyMember)
	require.True(t, ok)
	// Base.Calc, Base.Describe, Derived.Value and the automatic Base.Value:
	// Base initializes the subtypes that override its stored fields.
	assert.Len(t, m.Entries(), 4)

	auto, ok := m.Lookup(translation.Symbol{Type: lookupType(t, s, "Base"), Member: "Value"})
	require.True(t, ok)
	assert.True(t, auto.IsAuto)

	require.NoError(t, m.EnsureAllInitialized())
	assert.Len(t, m.Entries(), 5)
}

func TestInstall_Evaluate(t *testing.T) {
	s, m := installEntity(t)
	base := lookupType(t, s, "Base")
	derived := lookupType(t, s, "Derived")

	tests := []struct {
		name   string
		inst   *expr.Record
		member string
		want   ir.IRValue
	}{
		{
			name:   "base reads stored value",
			inst:   expr.NewRecord(base, ir.IRObject{"Value": ir.IRString("v")}),
			member: "Calc",
			want:   ir.IRString("v"),
		},
		{
			name:   "override with extra",
			inst:   expr.NewRecord(derived, ir.IRObject{"Value": ir.IRString("v"), "Extra": ir.IRString("x")}),
			member: "Calc",
			want:   ir.IRString("x"),
		},
		{
			name:   "override falls back through the escape hatch",
			inst:   expr.NewRecord(derived, ir.IRObject{"Value": ir.IRString("v"), "Extra": ir.IRNull{}}),
			member: "Calc",
			want:   ir.IRString("v"),
		},
		{
			name:   "method with enum caption",
			inst:   expr.NewRecord(base, ir.IRObject{"Value": ir.IRString("v"), "Color": ir.IRInt(1)}),
			member: "Describe",
			want:   ir.IRString("v / Navy"),
		},
		{
			name:   "method dispatches through the override",
			inst:   expr.NewRecord(derived, ir.IRObject{"Value": ir.IRString("v"), "Extra": ir.IRString("x"), "Color": ir.IRInt(0)}),
			member: "Describe",
			want:   ir.IRString("x / Red"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Evaluate(tt.inst, tt.member)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInstall_InlineThroughBase(t *testing.T) {
	s, m := installEntity(t)
	base := lookupType(t, s, "Base")

	p := expr.Param("m", base)
	out, err := m.Inline(expr.NewLambda(p, expr.Prop(p, "Calc")))
	require.NoError(t, err)

	formatted := expr.Format(out)
	assert.Contains(t, formatted, "(m is Derived)")
	assert.NotContains(t, formatted, "Calc", "every computed read is expanded")
	assert.Contains(t, formatted, "raw(", "the stored value is read through the escape hatch")
}

func TestInstall_WrongUniverse(t *testing.T) {
	s := compileEntity(t)
	err := s.Install(translation.NewMap(types.NewUniverse()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different universe")
}

func TestInstall_AfterInitialization(t *testing.T) {
	s, m := installEntity(t)
	require.NoError(t, m.EnsureAllInitialized())

	err := s.Install(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attached after initialization")
}

func TestSchema_AttributesOf(t *testing.T) {
	s := compileEntity(t)
	attrs := s.AttributesOf(lookupType(t, s, "Base"))
	require.Len(t, attrs, 2)
	assert.Equal(t, "Calc", attrs[0].Symbol.Member)
	assert.Equal(t, "Describe", attrs[1].Symbol.Member)

	assert.True(t, s.Declared(lookupType(t, s, "Color")))
	assert.False(t, s.Declared(types.Enum))
}
