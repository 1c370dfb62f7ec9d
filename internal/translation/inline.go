package translation

import (
	"fmt"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/types"
)

// Inline returns n with every reference to a registered computed member
// replaced by its definition, recursively, so the result only reads stored
// fields. Inline never mutates n and is idempotent: inlining an already
// inlined tree returns an equal tree.
//
// Each call keeps its own binding and expansion stacks; concurrent calls
// share nothing but the map.
func (m *Map) Inline(n expr.Node) (expr.Node, error) {
	if err := m.EnsureBaseTranslationsInitialized(); err != nil {
		return nil, err
	}
	in := &inliner{m: m}
	return in.visit(n)
}

// InlineLambda is Inline for a lambda.
func (m *Map) InlineLambda(l *expr.Lambda) (*expr.Lambda, error) {
	out, err := m.Inline(l)
	if err != nil {
		return nil, err
	}
	return out.(*expr.Lambda), nil
}

// InlineMember inlines a read of member on a parameter o of type t and
// returns the lambda o => read. member may be a property, a stored field or
// a parameterless method.
func (m *Map) InlineMember(t *types.Type, member string) (*expr.Lambda, error) {
	decl, ok := t.LookupMember(member)
	if !ok {
		return nil, fmt.Errorf("type %s has no member %s", t, member)
	}

	o := expr.Param("o", t)
	var read expr.Node
	var err error
	if decl.Kind == types.Method {
		read, err = expr.NewMethodCall(o, member)
	} else {
		read, err = expr.NewPropertyRead(o, member)
	}
	if err != nil {
		return nil, err
	}
	return m.InlineLambda(expr.NewLambda(o, read))
}

// binding substitutes value for param while an entry body is expanded.
// depth and expanding record the stacks the value was bound in, which is the
// scope it is visited in.
type binding struct {
	param     *expr.Parameter
	value     expr.Node
	depth     int
	expanding int
}

type inliner struct {
	m         *Map
	bindings  []binding
	expanding []*Entry
}

func (in *inliner) visit(n expr.Node) (expr.Node, error) {
	switch n := n.(type) {
	case *expr.Parameter:
		return in.visitParameter(n)
	case *expr.PropertyRead:
		return in.visitProperty(n)
	case *expr.MethodCall:
		return in.visitCall(n)
	case *expr.TypeTest:
		return in.visitTypeTest(n)
	case *expr.NoTranslate:
		return in.visitRaw(n)
	default:
		return in.visitChildren(n)
	}
}

func (in *inliner) visitChildren(n expr.Node) (expr.Node, error) {
	kids := expr.Children(n)
	if len(kids) == 0 {
		return n, nil
	}
	out := make([]expr.Node, len(kids))
	for i, k := range kids {
		v, err := in.visit(k)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return expr.WithChildren(n, out), nil
}

func (in *inliner) visitParameter(p *expr.Parameter) (expr.Node, error) {
	for i := len(in.bindings) - 1; i >= 0; i-- {
		b := in.bindings[i]
		if b.param != p {
			continue
		}
		saved, savedExp := in.bindings, in.expanding
		in.bindings = in.bindings[:b.depth:b.depth]
		in.expanding = in.expanding[:b.expanding:b.expanding]
		out, err := in.visit(b.value)
		in.bindings, in.expanding = saved, savedExp
		return out, err
	}
	return p, nil
}

func (in *inliner) visitProperty(n *expr.PropertyRead) (expr.Node, error) {
	e, ok := in.m.Find(n.Target.Type(), n.Member, PropertyMember)
	if !ok {
		return in.visitChildren(n)
	}
	return in.expand(e, n.Target)
}

func (in *inliner) visitCall(n *expr.MethodCall) (expr.Node, error) {
	if n.IsStatic() {
		if n.Method == expr.FuncJoin {
			return in.visitJoin(n)
		}
		return in.visitChildren(n)
	}

	static := n.Target.Type()
	if n.Method == "ToString" && static.IsEnum() {
		if e, ok := in.m.Lookup(Symbol{Type: static, Member: "ToString", Kind: MethodMember}); ok {
			return in.expand(e, n.Target)
		}
		if e, ok := in.m.EnumEntry(static); ok {
			return in.expand(e, n.Target)
		}
		return in.visitChildren(n)
	}

	e, ok := in.m.Find(static, n.Method, MethodMember)
	if !ok {
		return in.visitChildren(n)
	}
	return in.expand(e, n.Target)
}

// expand substitutes target for the parameter of e's definition and visits
// the result.
func (in *inliner) expand(e *Entry, target expr.Node) (expr.Node, error) {
	for _, x := range in.expanding {
		if x == e {
			path := make([]Symbol, len(in.expanding))
			for i, p := range in.expanding {
				path[i] = p.Symbol
			}
			return nil, NewCircularError(e.Symbol, path)
		}
	}

	def := in.definition(e, target.Type())
	in.bindings = append(in.bindings, binding{
		param:     def.Param(),
		value:     target,
		depth:     len(in.bindings),
		expanding: len(in.expanding),
	})
	in.expanding = append(in.expanding, e)

	out, err := in.visit(def.Body)

	in.bindings = in.bindings[:len(in.bindings)-1]
	in.expanding = in.expanding[:len(in.expanding)-1]
	if err != nil {
		return nil, err
	}
	in.m.logger.Debug("inlined translation", "symbol", e.Symbol.String(), "static", target.Type().Name)
	return out, nil
}

// definition picks the body of e to inline for a target of static type.
// The override body is used when e is registered on the static type itself,
// or when some override is declared on a type the target may be at runtime.
func (in *inliner) definition(e *Entry, static *types.Type) *expr.Lambda {
	override, contribs := in.m.resolve(e)
	if override == nil {
		return e.Body
	}
	if e.Symbol.Type == static {
		return override
	}
	for _, c := range contribs {
		if static.IsAssignableFrom(c.Symbol.Type) {
			return override
		}
	}
	return e.Body
}

// visitTypeTest repairs tests whose target was rebound to an unrelated type:
// the target is cast to the nearest common ancestor first. When the only
// common ancestor is Object the test can never hold.
func (in *inliner) visitTypeTest(n *expr.TypeTest) (expr.Node, error) {
	target, err := in.visit(n.Target)
	if err != nil {
		return nil, err
	}
	tt := target.Type()
	if types.Related(tt, n.Test) {
		return expr.WithChildren(n, []expr.Node{target}), nil
	}
	anc := types.CommonAncestor(tt, n.Test)
	if anc == types.Object {
		return expr.Bool(false), nil
	}
	return expr.Is(expr.As(target, anc), n.Test), nil
}

// visitRaw visits the children of the marked node without resolving the
// node itself. The marker is kept so a second pass leaves the node alone
// too.
func (in *inliner) visitRaw(n *expr.NoTranslate) (expr.Node, error) {
	var inner expr.Node
	var err error
	switch t := n.Target.(type) {
	case *expr.PropertyRead, *expr.MethodCall:
		inner, err = in.visitChildren(t)
	default:
		inner, err = in.visit(t)
	}
	if err != nil {
		return nil, err
	}
	return expr.WithChildren(n, []expr.Node{inner}), nil
}

func (in *inliner) visitJoin(n *expr.MethodCall) (expr.Node, error) {
	if len(n.Args) == 0 {
		return nil, NewUnsupportedError("%s requires a separator", expr.FuncJoin)
	}
	l, source, err := BuildJoin(n.Args[0], n.Args[1:])
	if err != nil {
		return nil, err
	}
	if source == nil {
		return in.visit(l.Body)
	}
	in.bindings = append(in.bindings, binding{
		param:     l.Param(),
		value:     source,
		depth:     len(in.bindings),
		expanding: len(in.expanding),
	})
	out, err := in.visit(l.Body)
	in.bindings = in.bindings[:len(in.bindings)-1]
	return out, err
}
