package expr

import (
	"fmt"

	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/types"
)

// Node is an expression tree node.
type Node interface {
	// Type is the static type of the expression.
	Type() *types.Type
	// String prints the node the way Format does.
	String() string
	exprNode() // Marker method - seals interface to this package
}

// Parameter is a lambda parameter. Identity is by pointer: two parameters
// with the same name are distinct.
type Parameter struct {
	Name string
	Typ  *types.Type
}

// Constant is a literal value. Enum constants carry an ir.IRInt and the enum
// type.
type Constant struct {
	Value ir.IRValue
	Typ   *types.Type
}

// PropertyRead reads a field or a computed property of Target.
type PropertyRead struct {
	Target Node
	Member string
	Typ    *types.Type
}

// MethodCall calls a parameterless method on Target. A nil Target denotes a
// static call of the host function named by Method with Args.
type MethodCall struct {
	Target Node
	Method string
	Args   []Node
	Typ    *types.Type
}

// Conditional is test ? IfTrue : IfFalse.
type Conditional struct {
	Test    Node
	IfTrue  Node
	IfFalse Node
	Typ     *types.Type
}

// TypeTest reports whether the runtime type of Target is Test or derives
// from it.
type TypeTest struct {
	Target Node
	Test   *types.Type
}

// Convert casts Target to To. Casting a value whose runtime type is not
// assignable to To yields null.
type Convert struct {
	Target Node
	To     *types.Type
}

// Lambda is a function of its parameters. Computed attributes are
// single-parameter lambdas whose parameter is the instance.
type Lambda struct {
	Params []*Parameter
	Body   Node
}

// BinaryOp enumerates the binary operators.
type BinaryOp string

const (
	OpEqual    BinaryOp = "=="
	OpNotEqual BinaryOp = "!="
	OpAndAlso  BinaryOp = "&&"
	OpOrElse   BinaryOp = "||"
)

// Binary is a comparison or a short-circuit logical operator.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

// NoTranslate marks Target as exempt from attribute resolution. Its children
// are still visited. A computed attribute uses it to read its own stored
// backing value.
type NoTranslate struct {
	Target Node
}

func (*Parameter) exprNode()    {}
func (*Constant) exprNode()     {}
func (*PropertyRead) exprNode() {}
func (*MethodCall) exprNode()   {}
func (*Conditional) exprNode()  {}
func (*TypeTest) exprNode()     {}
func (*Convert) exprNode()      {}
func (*Lambda) exprNode()       {}
func (*Binary) exprNode()       {}
func (*NoTranslate) exprNode()  {}

func (p *Parameter) Type() *types.Type    { return p.Typ }
func (c *Constant) Type() *types.Type     { return c.Typ }
func (p *PropertyRead) Type() *types.Type { return p.Typ }
func (m *MethodCall) Type() *types.Type   { return m.Typ }
func (c *Conditional) Type() *types.Type  { return c.Typ }
func (*TypeTest) Type() *types.Type       { return types.Bool }
func (c *Convert) Type() *types.Type      { return c.To }
func (l *Lambda) Type() *types.Type       { return l.Body.Type() }
func (*Binary) Type() *types.Type         { return types.Bool }
func (n *NoTranslate) Type() *types.Type  { return n.Target.Type() }

func (p *Parameter) String() string    { return Format(p) }
func (c *Constant) String() string     { return Format(c) }
func (p *PropertyRead) String() string { return Format(p) }
func (m *MethodCall) String() string   { return Format(m) }
func (c *Conditional) String() string  { return Format(c) }
func (t *TypeTest) String() string     { return Format(t) }
func (c *Convert) String() string      { return Format(c) }
func (l *Lambda) String() string       { return Format(l) }
func (b *Binary) String() string       { return Format(b) }
func (n *NoTranslate) String() string  { return Format(n) }

// Param creates a parameter of type t.
func Param(name string, t *types.Type) *Parameter {
	return &Parameter{Name: name, Typ: t}
}

// NewConstant creates a constant of an explicit type.
func NewConstant(v ir.IRValue, t *types.Type) *Constant {
	if v == nil {
		v = ir.IRNull{}
	}
	return &Constant{Value: v, Typ: t}
}

// Str creates a string constant.
func Str(s string) *Constant { return NewConstant(ir.IRString(s), types.String) }

// Int creates an integer constant.
func Int(n int64) *Constant { return NewConstant(ir.IRInt(n), types.Int) }

// Bool creates a boolean constant.
func Bool(b bool) *Constant { return NewConstant(ir.IRBool(b), types.Bool) }

// Null creates the null constant.
func Null() *Constant { return NewConstant(ir.IRNull{}, types.Object) }

// EnumConst creates a constant holding the named value of enum type t.
func EnumConst(t *types.Type, name string) (*Constant, error) {
	if !t.IsEnum() {
		return nil, fmt.Errorf("%s is not an enum type", t)
	}
	v, ok := t.Value(name)
	if !ok {
		return nil, fmt.Errorf("enum %s has no value %s", t, name)
	}
	return NewConstant(ir.IRInt(v.Value), t), nil
}

// IsNullConstant reports whether n is the null literal.
func IsNullConstant(n Node) bool {
	c, ok := n.(*Constant)
	return ok && ir.IsNull(c.Value)
}

// NewPropertyRead reads member from target. The member must be a field or a
// property visible on the static type of target.
func NewPropertyRead(target Node, member string) (*PropertyRead, error) {
	if target == nil {
		return nil, fmt.Errorf("property %s: target is required", member)
	}
	m, ok := target.Type().LookupMember(member)
	if !ok {
		return nil, fmt.Errorf("type %s has no member %s", target.Type(), member)
	}
	if m.Kind == types.Method {
		return nil, fmt.Errorf("%s.%s is a method, not a property", m.Declaring, member)
	}
	return &PropertyRead{Target: target, Member: member, Typ: m.Type}, nil
}

// Prop is like NewPropertyRead but panics on error. Use only for fixtures.
func Prop(target Node, member string) *PropertyRead {
	p, err := NewPropertyRead(target, member)
	if err != nil {
		panic(err)
	}
	return p
}

// NewMethodCall calls the parameterless method on target.
func NewMethodCall(target Node, method string) (*MethodCall, error) {
	if target == nil {
		return nil, fmt.Errorf("method %s: target is required", method)
	}
	m, ok := target.Type().LookupMember(method)
	if !ok {
		return nil, fmt.Errorf("type %s has no method %s", target.Type(), method)
	}
	if m.Kind != types.Method {
		return nil, fmt.Errorf("%s.%s is not a method", m.Declaring, method)
	}
	return &MethodCall{Target: target, Method: method, Typ: m.Type}, nil
}

// Call is like NewMethodCall but panics on error. Use only for fixtures.
func Call(target Node, method string) *MethodCall {
	c, err := NewMethodCall(target, method)
	if err != nil {
		panic(err)
	}
	return c
}

// Static calls the host function fn with args. Every host function returns
// a string.
func Static(fn string, args ...Node) *MethodCall {
	return &MethodCall{Method: fn, Args: args, Typ: types.String}
}

// IsStatic reports whether the call targets a host function.
func (m *MethodCall) IsStatic() bool { return m.Target == nil }

// NewConditional creates test ? ifTrue : ifFalse. The result type is the
// nearest common ancestor of the branch types; a null branch takes the type
// of the other branch.
func NewConditional(test, ifTrue, ifFalse Node) *Conditional {
	var typ *types.Type
	switch {
	case IsNullConstant(ifTrue):
		typ = ifFalse.Type()
	case IsNullConstant(ifFalse):
		typ = ifTrue.Type()
	default:
		typ = types.CommonAncestor(ifTrue.Type(), ifFalse.Type())
	}
	return &Conditional{Test: test, IfTrue: ifTrue, IfFalse: ifFalse, Typ: typ}
}

// Is creates a type test.
func Is(target Node, t *types.Type) *TypeTest {
	return &TypeTest{Target: target, Test: t}
}

// As casts target to t.
func As(target Node, t *types.Type) *Convert {
	return &Convert{Target: target, To: t}
}

// NewLambda creates a single-parameter lambda.
func NewLambda(param *Parameter, body Node) *Lambda {
	return &Lambda{Params: []*Parameter{param}, Body: body}
}

// Param returns the first parameter, or nil for a parameterless lambda.
func (l *Lambda) Param() *Parameter {
	if len(l.Params) == 0 {
		return nil
	}
	return l.Params[0]
}

// Eq creates left == right.
func Eq(left, right Node) *Binary { return &Binary{Op: OpEqual, Left: left, Right: right} }

// Ne creates left != right.
func Ne(left, right Node) *Binary { return &Binary{Op: OpNotEqual, Left: left, Right: right} }

// And creates left && right.
func And(left, right Node) *Binary { return &Binary{Op: OpAndAlso, Left: left, Right: right} }

// Or creates left || right.
func Or(left, right Node) *Binary { return &Binary{Op: OpOrElse, Left: left, Right: right} }

// Raw wraps target in the escape marker.
func Raw(target Node) *NoTranslate { return &NoTranslate{Target: target} }
