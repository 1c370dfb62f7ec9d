package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/translation"
	"github.com/roach88/calcx/internal/types"
)

const entitySpec = `
enum: Color: values: {
	Red:      0
	DarkBlue: { value: 1, caption: "Navy" }
}

type: Base: {
	fields: { Value: "string", Color: "Color", Active: "bool" }
	computed: Calc: { type: "string", is: { field: "Value" } }
	methods: Describe: { type: "string", is: { static: "concat", args: [{ field: "Calc" }, { const: " / " }, { call: "ToString", of: { field: "Color" } }] } }
}

type: Derived: {
	extends: "Base"
	fields: { Extra: "string" }
	computed: Value: is: {
		if:   { ne: [{ field: "Extra" }, { const: null }] }
		then: { field: "Extra" }
		else: { raw: { field: "Value" } }
	}
}

base: Enum: ToString: is: { static: "caption", args: [{ this: true }] }
`

func compileEntity(t *testing.T) *Schema {
	t.Helper()
	s, err := CompileString(entitySpec)
	require.NoError(t, err)
	return s
}

func TestCompile_Types(t *testing.T) {
	s := compileEntity(t)

	names := make([]string, len(s.Types))
	for i, typ := range s.Types {
		names[i] = typ.Name
	}
	assert.Equal(t, []string{"Color", "Base", "Derived"}, names)

	color, ok := s.Universe.Lookup("Color")
	require.True(t, ok)
	assert.True(t, color.IsEnum())
	v, ok := color.Value("DarkBlue")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.Value)
	assert.Equal(t, "Navy", v.Caption)

	derived, ok := s.Universe.Lookup("Derived")
	require.True(t, ok)
	base, _ := s.Universe.Lookup("Base")
	assert.Equal(t, base, derived.Base)

	fields := derived.Fields()
	require.Len(t, fields, 4)
	assert.Equal(t, "Extra", fields[3].Name)

	calc, ok := base.DeclaredMember("Calc")
	require.True(t, ok)
	assert.Equal(t, types.Property, calc.Kind)
	_, ok = derived.DeclaredMember("Value")
	assert.False(t, ok, "an override does not redeclare the member")
}

func TestCompile_Attributes(t *testing.T) {
	s := compileEntity(t)
	require.Len(t, s.Attributes, 4)

	assert.Equal(t, "Base.Calc", s.Attributes[0].Symbol.String())
	assert.Equal(t, `o => o.Value`, s.Attributes[0].Body.String())

	assert.Equal(t, "Base.Describe()", s.Attributes[1].Symbol.String())
	assert.Equal(t, translation.MethodMember, s.Attributes[1].Symbol.Kind)

	assert.Equal(t, "Derived.Value", s.Attributes[2].Symbol.String())
	assert.Equal(t, `o => ((o.Extra != null) ? o.Extra : raw(o.Value))`, s.Attributes[2].Body.String())

	base := s.Attributes[3]
	assert.True(t, base.Base)
	assert.Equal(t, types.Enum, base.Symbol.Type)
	assert.Equal(t, "Enum.ToString()", base.Symbol.String())
	assert.Len(t, s.Bases(), 1)
	assert.True(t, base.Pos.IsValid())
}

func TestCompile_ForwardReferences(t *testing.T) {
	// Bodies may read members of types declared later in the file.
	s, err := CompileString(`
		type: Order: {
			fields: { Number: "int" }
			computed: Label: { type: "string", is: { static: "concat", args: [{ const: "#" }, { field: "Number" }] } }
		}
		type: Rush: {
			extends: "Order"
			computed: Label: is: { static: "concat", args: [{ const: "!" }, { field: "Number" }] }
		}
		type: Early: {
			extends: "Late"
		}
		type: Late: {
			fields: { At: "int" }
		}
	`)
	require.NoError(t, err)

	late, _ := s.Universe.Lookup("Late")
	early, _ := s.Universe.Lookup("Early")
	assert.Equal(t, late, early.Base)
	assert.Less(t, s.Universe.Index(late), s.Universe.Index(early))
}

func TestCompile_ExpressionForms(t *testing.T) {
	s, err := CompileString(`
		enum: Tier: values: { Basic: 0, Gold: 1 }
		type: Account: {
			fields: { Name: "string", Tier: "Tier", Active: "bool", Score: "int" }
			computed: {
				IsGold:  { type: "bool", is: { eq: [{ field: "Tier" }, { enum: "Tier.Gold" }] } }
				Both:    { type: "bool", is: { and: [{ field: "Active" }, { field: "IsGold" }, { const: true }] } }
				Either:  { type: "bool", is: { or: [{ field: "Active" }, { field: "IsGold" }] } }
				Premium: { type: "bool", is: { is: "Premium" } }
				Bonus:   { type: "int", is: { if: { is: "Premium" }, then: { field: "Extra", of: { as: "Premium", of: { this: true } } }, else: { const: 0 } } }
				Joined:  { type: "string", is: { static: "join", args: [{ const: ", " }, { field: "Name" }, { field: "Score" }] } }
			}
		}
		type: Premium: {
			extends: "Account"
			fields: { Extra: "int" }
		}
	`)
	require.NoError(t, err)

	got := make(map[string]string)
	for _, a := range s.Attributes {
		got[a.Symbol.Member] = expr.Format(a.Body)
	}
	assert.Equal(t, `o => (o.Tier == Tier.Gold)`, got["IsGold"])
	assert.Equal(t, `o => ((o.Active && o.IsGold) && true)`, got["Both"])
	assert.Equal(t, `o => (o.Active || o.IsGold)`, got["Either"])
	assert.Equal(t, `o => (o is Premium)`, got["Premium"])
	assert.Equal(t, `o => ((o is Premium) ? ((Premium)o).Extra : 0)`, got["Bonus"])
	assert.Equal(t, `o => join(", ", o.Name, o.Score)`, got["Joined"])
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		field   string
		message string
	}{
		{
			name:    "unknown field type",
			src:     `type: A: fields: X: "money"`,
			field:   "type.A.fields.X",
			message: `unknown type "money"`,
		},
		{
			name:    "struct stored as field",
			src:     `type: A: {}, type: B: fields: X: "A"`,
			field:   "type.B.fields.X",
			message: "stored fields must be",
		},
		{
			name:    "unknown base",
			src:     `type: A: extends: "Missing"`,
			field:   "type.A.extends",
			message: "unknown struct type Missing",
		},
		{
			name:    "inheritance cycle",
			src:     `type: A: extends: "B", type: B: extends: "A"`,
			field:   "type.A.extends",
			message: "inheritance cycle",
		},
		{
			name:    "new computed member without type",
			src:     `type: A: computed: X: is: { const: "x" }`,
			field:   "type.A.computed.X",
			message: "type is required",
		},
		{
			name:    "override changes type",
			src:     `type: A: fields: X: "string", type: B: { extends: "A", computed: X: { type: "int", is: { const: 1 } } }`,
			field:   "type.B.computed.X.type",
			message: "has type String, not Int",
		},
		{
			name:    "method overriding property",
			src:     `type: A: computed: X: { type: "string", is: { const: "a" } }, type: B: { extends: "A", methods: X: is: { const: "b" } }`,
			field:   "type.B.methods.X",
			message: "A.X is a property",
		},
		{
			name:    "missing body",
			src:     `type: A: computed: X: type: "string"`,
			field:   "type.A.computed.X",
			message: "is is required",
		},
		{
			name:    "unknown member",
			src:     `type: A: computed: X: { type: "string", is: { field: "Nope" } }`,
			field:   "field",
			message: "type A has no member Nope",
		},
		{
			name:    "calling a property",
			src:     `type: A: computed: { X: { type: "string", is: { const: "x" } }, Y: { type: "string", is: { call: "X" } } }`,
			field:   "call",
			message: "is not a method",
		},
		{
			name:    "unknown function",
			src:     `type: A: computed: X: { type: "string", is: { static: "upper", args: [] } }`,
			field:   "static",
			message: `unknown function "upper"`,
		},
		{
			name:    "ambiguous form",
			src:     `type: A: computed: X: { type: "string", is: { const: "a", this: true } }`,
			field:   "expression",
			message: "ambiguous expression",
		},
		{
			name:    "unknown form",
			src:     `type: A: computed: X: { type: "string", is: { value: "a" } }`,
			field:   "expression",
			message: "unknown expression form",
		},
		{
			name:    "float constant",
			src:     `type: A: computed: X: { type: "int", is: { const: 1.5 } }`,
			field:   "const",
			message: "float constants are forbidden",
		},
		{
			name:    "eq arity",
			src:     `type: A: computed: X: { type: "bool", is: { eq: [{ const: 1 }] } }`,
			field:   "eq",
			message: "exactly two operands",
		},
		{
			name:    "non-bool and operand",
			src:     `type: A: computed: X: { type: "bool", is: { and: [{ const: 1 }, { const: true }] } }`,
			field:   "and",
			message: "operands must be bool",
		},
		{
			name:    "unrelated type test",
			src:     `type: A: {}, type: B: computed: X: { type: "bool", is: { is: "A" } }`,
			field:   "is",
			message: "A is unrelated to B",
		},
		{
			name:    "cast without operand",
			src:     `type: A: {}, type: B: { extends: "A", computed: X: { type: "bool", is: { as: "A" } } }`,
			field:   "as",
			message: "of is required",
		},
		{
			name:    "unknown enum value",
			src:     `enum: E: values: { V: 0 }, type: A: computed: X: { type: "E", is: { enum: "E.W" } }`,
			field:   "enum",
			message: "enum E has no value W",
		},
		{
			name:    "duplicate enum value",
			src:     `enum: E: values: { V: 0, W: 0 }`,
			field:   "enum.E.W",
			message: "value 0 already used by V",
		},
		{
			name:    "base on unknown type",
			src:     `base: Nope: ToString: is: { const: "x" }`,
			field:   "base.Nope",
			message: `unknown type "Nope"`,
		},
		{
			name:    "base on stored field",
			src:     `type: A: fields: X: "string", base: A: X: is: { const: "x" }`,
			field:   "base.A.X",
			message: "is a stored field",
		},
		{
			name:    "non-bool condition",
			src:     `type: A: computed: X: { type: "string", is: { if: { const: 1 }, then: { const: "a" }, else: { const: "b" } } }`,
			field:   "if",
			message: "condition must be bool",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src)
			require.Error(t, err)

			var compileErr *CompileError
			require.True(t, errors.As(err, &compileErr), "expected CompileError, got %T: %v", err, err)
			assert.Equal(t, tt.field, compileErr.Field)
			assert.Contains(t, compileErr.Message, tt.message)
		})
	}
}

func TestCompile_InvalidCUESyntax(t *testing.T) {
	_, err := CompileString(`type: A: {`)
	require.Error(t, err)
}

func TestCompile_ErrorPosition(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`type: A: {
	computed: X: {
		type: "string"
		is: { field: "Nope" }
	}
}`, cue.Filename("decl.cue"))
	require.NoError(t, v.Err())

	_, err := Compile(v)
	require.Error(t, err)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	require.True(t, compileErr.Pos.IsValid())
	assert.Equal(t, "decl.cue", compileErr.Pos.Filename())
	assert.Equal(t, 4, compileErr.Pos.Line())
	assert.Contains(t, err.Error(), "decl.cue:4:")
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "type.A", Message: "broken"}
	assert.Equal(t, "type.A: broken", err.Error())
}

func TestCompile_Empty(t *testing.T) {
	s, err := CompileString(``)
	require.NoError(t, err)
	assert.Empty(t, s.Types)
	assert.Empty(t, s.Attributes)
	assert.Len(t, s.Universe.Types(), len(types.Builtins()))
}

func writeDecl(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestCompileFiles_Unified(t *testing.T) {
	dir := t.TempDir()
	a := writeDecl(t, dir, "base.cue", `type: Base: fields: Value: "string"`)
	b := writeDecl(t, dir, "derived.cue", `
type: Base: computed: Upper: { type: "string", is: { field: "Value" } }
type: Derived: { extends: "Base", fields: Extra: "string" }
`)

	s, err := CompileFiles(a, b)
	require.NoError(t, err)

	derived, ok := s.Universe.Lookup("Derived")
	require.True(t, ok)
	m, ok := derived.LookupMember("Upper")
	require.True(t, ok)
	assert.Equal(t, "Base", m.Declaring.Name)
	assert.Len(t, s.Attributes, 1)
}

func TestCompileFiles_Errors(t *testing.T) {
	_, err := CompileFiles()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no declaration files")

	_, err = CompileFiles(filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")

	bad := writeDecl(t, t.TempDir(), "bad.cue", `type: A: {`)
	_, err = CompileFiles(bad)
	require.Error(t, err)
	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, bad, compileErr.Pos.Filename())
}

func TestParseExpr_BindsRow(t *testing.T) {
	s := compileEntity(t)
	base, ok := s.Universe.Lookup("Base")
	require.True(t, ok)
	row := expr.Param("row", base)

	v := cuecontext.New().CompileString(`{ eq: [{ field: "Value" }, { const: "x" }] }`)
	require.NoError(t, v.Err())

	n, err := ParseExpr(s.Universe, row, v)
	require.NoError(t, err)
	assert.Equal(t, `(row.Value == "x")`, n.String())

	v = cuecontext.New().CompileString(`{ this: true }`)
	n, err = ParseExpr(s.Universe, row, v)
	require.NoError(t, err)
	assert.Same(t, row, n)

	v = cuecontext.New().CompileString(`{ field: "Nope" }`)
	_, err = ParseExpr(s.Universe, row, v)
	require.Error(t, err)
}
