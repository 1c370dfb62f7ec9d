package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/types"
)

type fixture struct {
	person   *types.Type
	employee *types.Type
	status   *types.Type
}

func newFixture() fixture {
	status := types.NewEnum("Status",
		types.EnumValue{Name: "Active", Value: 0},
		types.EnumValue{Name: "OnLeave", Value: 1},
	)
	person := types.NewStruct("Person", nil).
		WithField("First", types.String).
		WithField("Last", types.String).
		WithField("Status", status).
		WithProperty("Display", types.String).
		WithMethod("Initials", types.String)
	employee := types.NewStruct("Employee", person).WithField("Badge", types.Int)
	return fixture{person: person, employee: employee, status: status}
}

func TestFormat(t *testing.T) {
	fx := newFixture()
	p := Param("p", fx.person)
	active, err := EnumConst(fx.status, "Active")
	require.NoError(t, err)

	body := NewConditional(
		And(Is(p, fx.employee), Eq(Prop(p, "Status"), active)),
		Static(FuncConcat, Prop(p, "First"), Str(" "), Prop(p, "Last")),
		Call(p, "Initials"),
	)

	assert.Equal(t,
		`p => (((p is Employee) && (p.Status == Status.Active)) ? concat(p.First, " ", p.Last) : p.Initials())`,
		NewLambda(p, body).String())
	assert.Equal(t, `raw(((Employee)p).Badge)`, Raw(Prop(As(p, fx.employee), "Badge")).String())
	assert.Equal(t, "null", Null().String())
}

func TestNodeString(t *testing.T) {
	fx := newFixture()
	p := Param("p", fx.person)

	nodes := []Node{
		p,
		Str("x"),
		Prop(p, "First"),
		Call(p, "Initials"),
		NewConditional(Bool(true), Str("a"), Str("b")),
		Is(p, fx.employee),
		As(p, fx.employee),
		NewLambda(p, Prop(p, "Last")),
		Ne(Prop(p, "First"), Null()),
		Raw(Prop(p, "Display")),
	}
	for _, n := range nodes {
		assert.Equal(t, Format(n), n.String())
	}
}

func TestConstructorsValidateMembers(t *testing.T) {
	fx := newFixture()
	p := Param("p", fx.person)

	_, err := NewPropertyRead(p, "Badge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no member Badge")

	_, err = NewPropertyRead(p, "Initials")
	require.Error(t, err)

	_, err = NewMethodCall(p, "First")
	require.Error(t, err)

	read, err := NewPropertyRead(As(p, fx.employee), "Badge")
	require.NoError(t, err)
	assert.Equal(t, types.Int, read.Type())

	_, err = EnumConst(fx.status, "Retired")
	require.Error(t, err)
}

func TestConditionalType(t *testing.T) {
	fx := newFixture()
	p := Param("p", fx.employee)

	assert.Equal(t, types.String, NewConditional(Bool(true), Null(), Str("x")).Type())
	assert.Equal(t, fx.person, NewConditional(Bool(true), p, As(p, fx.person)).Type())
	assert.Equal(t, types.Object, NewConditional(Bool(true), Int(1), Str("x")).Type())
}

func TestRewriteSharesUnchangedSubtrees(t *testing.T) {
	fx := newFixture()
	p := Param("p", fx.person)
	left := Prop(p, "First")
	tree := Eq(left, Str("Ada"))

	out, err := Rewrite(tree, func(n Node) (Node, error) { return n, nil })
	require.NoError(t, err)
	assert.Same(t, tree, out)

	out, err = Rewrite(tree, func(n Node) (Node, error) {
		if c, ok := n.(*Constant); ok && ir.Equal(c.Value, ir.IRString("Ada")) {
			return Str("Grace"), nil
		}
		return n, nil
	})
	require.NoError(t, err)
	assert.Equal(t, `(p.First == "Grace")`, Format(out))
	assert.Same(t, left, out.(*Binary).Left)
	assert.Equal(t, `(p.First == "Ada")`, Format(tree), "input is not mutated")
}

func TestRebind(t *testing.T) {
	fx := newFixture()
	base := Param("b", fx.person)
	sub := Param("e", fx.employee)
	l := NewLambda(sub, Prop(sub, "Badge"))

	rebound := Rebind(l, base)
	assert.Same(t, base, rebound.Param())
	assert.Equal(t, `b => ((Employee)b).Badge`, rebound.String())

	same := Param("x", fx.employee)
	assert.Equal(t, `x => x.Badge`, Rebind(l, same).String())
}

func TestInspectAndWalk(t *testing.T) {
	fx := newFixture()
	p := Param("p", fx.person)
	tree := NewLambda(p, Static(FuncConcat, Prop(p, "First"), Raw(Prop(p, "Display"))))

	var reads []string
	Inspect(tree, func(n Node) bool {
		if _, ok := n.(*NoTranslate); ok {
			return false
		}
		if r, ok := n.(*PropertyRead); ok {
			reads = append(reads, r.Member)
		}
		return true
	})
	assert.Equal(t, []string{"First"}, reads)
}

func TestFingerprint(t *testing.T) {
	fx := newFixture()
	a := Param("a", fx.person)
	b := Param("b", fx.person)

	assert.True(t, Equal(NewLambda(a, Prop(a, "First")), NewLambda(b, Prop(b, "First"))))
	assert.False(t, Equal(NewLambda(a, Prop(a, "First")), NewLambda(b, Prop(b, "Last"))))
	assert.False(t, Equal(Str("1"), Int(1)))
	assert.True(t, Equal(Null(), Null()))

	fp, err := Fingerprint(NewLambda(a, Prop(a, "First")))
	require.NoError(t, err)
	assert.Len(t, fp, 64)
}
