package compiler

import (
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/types"
)

// exprForms are the keys that select an expression form. Exactly one must
// be present in every expression object.
var exprForms = []string{
	"const", "this", "field", "call", "static", "if",
	"eq", "ne", "and", "or", "is", "as", "enum", "raw",
}

// lookup reads a field by its literal label. Some form names (if) are CUE
// keywords and do not parse as paths.
func lookup(v cue.Value, label string) cue.Value {
	return v.LookupPath(cue.MakePath(cue.Str(label)))
}

type exprParser struct {
	universe *types.Universe
	this     *expr.Parameter
}

// parseLambda compiles the expression v into a lambda over an instance of t.
func parseLambda(u *types.Universe, t *types.Type, v cue.Value) (*expr.Lambda, error) {
	p := &exprParser{universe: u, this: expr.Param("o", t)}
	body, err := p.parse(v)
	if err != nil {
		return nil, err
	}
	return expr.NewLambda(p.this, body), nil
}

// ParseExpr compiles the expression v with {this: true} bound to row. Used
// for query columns and filters, which are written over a row parameter
// rather than an attribute's instance.
func ParseExpr(u *types.Universe, row *expr.Parameter, v cue.Value) (expr.Node, error) {
	p := &exprParser{universe: u, this: row}
	return p.parse(v)
}

// parse compiles one expression object:
//
//	{const: "a" | 1 | true | null}
//	{this: true}
//	{field: "Name", of?: e}       property or stored field read
//	{call: "Name", of?: e}        parameterless method call
//	{static: "concat", args: [e...]}
//	{if: e, then: e, else: e}
//	{eq: [e, e]} {ne: [e, e]}
//	{and: [e, e, ...]} {or: [e, e, ...]}
//	{is: "Type", of?: e}
//	{as: "Type", of: e}
//	{enum: "Type.Value"}
//	{raw: e}                      escape hatch, never inlined
func (p *exprParser) parse(v cue.Value) (expr.Node, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if v.Kind() != cue.StructKind {
		return nil, errorf("expression", v.Pos(), "must be an object, got %s", v.Kind())
	}

	var form string
	for _, f := range exprForms {
		if lookup(v, f).Exists() {
			if form != "" {
				return nil, errorf("expression", v.Pos(), "ambiguous expression: both %s and %s", form, f)
			}
			form = f
		}
	}
	arg := lookup(v, form)

	switch form {
	case "const":
		return parseConst(arg)
	case "this":
		return p.this, nil
	case "field", "call":
		return p.parseMember(form, v, arg)
	case "static":
		return p.parseStatic(v, arg)
	case "if":
		test, err := p.parse(arg)
		if err != nil {
			return nil, err
		}
		ifTrue, err := p.parse(lookup(v, "then"))
		if err != nil {
			return nil, err
		}
		ifFalse, err := p.parse(lookup(v, "else"))
		if err != nil {
			return nil, err
		}
		if test.Type() != types.Bool {
			return nil, errorf("if", arg.Pos(), "condition must be bool, got %s", test.Type())
		}
		return expr.NewConditional(test, ifTrue, ifFalse), nil
	case "eq", "ne", "and", "or":
		return p.parseBinary(form, arg)
	case "is", "as":
		return p.parseTypeOp(form, v, arg)
	case "enum":
		return p.parseEnum(arg)
	case "raw":
		target, err := p.parse(arg)
		if err != nil {
			return nil, err
		}
		return expr.Raw(target), nil
	default:
		return nil, errorf("expression", v.Pos(), "unknown expression form; expected one of %s", strings.Join(exprForms, ", "))
	}
}

func parseConst(v cue.Value) (expr.Node, error) {
	switch v.Kind() {
	case cue.NullKind:
		return expr.Null(), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return expr.Str(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return expr.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return expr.Bool(b), nil
	case cue.FloatKind:
		return nil, errorf("const", v.Pos(), "float constants are forbidden - use int instead")
	default:
		return nil, errorf("const", v.Pos(), "must be a string, int, bool or null")
	}
}

// target parses the optional of: operand, defaulting to the instance.
func (p *exprParser) target(v cue.Value) (expr.Node, error) {
	of := lookup(v, "of")
	if !of.Exists() {
		return p.this, nil
	}
	return p.parse(of)
}

func (p *exprParser) parseMember(form string, v, arg cue.Value) (expr.Node, error) {
	name, err := arg.String()
	if err != nil {
		return nil, errorf(form, arg.Pos(), "must be a member name")
	}
	target, err := p.target(v)
	if err != nil {
		return nil, err
	}
	var n expr.Node
	if form == "field" {
		n, err = expr.NewPropertyRead(target, name)
	} else {
		n, err = expr.NewMethodCall(target, name)
	}
	if err != nil {
		return nil, errorf(form, arg.Pos(), "%v", err)
	}
	return n, nil
}

func (p *exprParser) parseList(field string, v cue.Value) ([]expr.Node, error) {
	iter, err := v.List()
	if err != nil {
		return nil, errorf(field, v.Pos(), "must be a list of expressions")
	}
	var out []expr.Node
	for iter.Next() {
		n, err := p.parse(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (p *exprParser) parseStatic(v, arg cue.Value) (expr.Node, error) {
	fn, err := arg.String()
	if err != nil {
		return nil, errorf("static", arg.Pos(), "must be a function name")
	}
	var args []expr.Node
	if a := lookup(v, "args"); a.Exists() {
		if args, err = p.parseList("static.args", a); err != nil {
			return nil, err
		}
	}
	switch fn {
	case expr.FuncConcat:
	case expr.FuncJoin:
		if len(args) == 0 {
			return nil, errorf("static.args", v.Pos(), "join requires a separator")
		}
	case expr.FuncCaption:
		if len(args) != 1 {
			return nil, errorf("static.args", v.Pos(), "caption takes exactly one argument, got %d", len(args))
		}
	default:
		return nil, errorf("static", arg.Pos(), "unknown function %q", fn)
	}
	return expr.Static(fn, args...), nil
}

func (p *exprParser) parseBinary(form string, arg cue.Value) (expr.Node, error) {
	operands, err := p.parseList(form, arg)
	if err != nil {
		return nil, err
	}
	switch form {
	case "eq", "ne":
		if len(operands) != 2 {
			return nil, errorf(form, arg.Pos(), "takes exactly two operands, got %d", len(operands))
		}
		if form == "eq" {
			return expr.Eq(operands[0], operands[1]), nil
		}
		return expr.Ne(operands[0], operands[1]), nil
	}

	if len(operands) < 2 {
		return nil, errorf(form, arg.Pos(), "takes at least two operands, got %d", len(operands))
	}
	for _, o := range operands {
		if o.Type() != types.Bool {
			return nil, errorf(form, arg.Pos(), "operands must be bool, got %s", o.Type())
		}
	}
	out := operands[0]
	for _, o := range operands[1:] {
		if form == "and" {
			out = expr.And(out, o)
		} else {
			out = expr.Or(out, o)
		}
	}
	return out, nil
}

func (p *exprParser) parseTypeOp(form string, v, arg cue.Value) (expr.Node, error) {
	name, err := arg.String()
	if err != nil {
		return nil, errorf(form, arg.Pos(), "must be a type name")
	}
	t, ok := p.universe.Lookup(name)
	if !ok {
		return nil, errorf(form, arg.Pos(), "unknown type %q", name)
	}
	if form == "as" && !lookup(v, "of").Exists() {
		return nil, errorf(form, v.Pos(), "of is required")
	}
	target, err := p.target(v)
	if err != nil {
		return nil, err
	}
	if !types.Related(target.Type(), t) {
		return nil, errorf(form, arg.Pos(), "%s is unrelated to %s", t, target.Type())
	}
	if form == "is" {
		return expr.Is(target, t), nil
	}
	return expr.As(target, t), nil
}

func (p *exprParser) parseEnum(arg cue.Value) (expr.Node, error) {
	ref, err := arg.String()
	if err != nil {
		return nil, errorf("enum", arg.Pos(), "must be a Type.Value reference")
	}
	typeName, valueName, ok := strings.Cut(ref, ".")
	if !ok {
		return nil, errorf("enum", arg.Pos(), "must be a Type.Value reference, got %q", ref)
	}
	t, ok := p.universe.Lookup(typeName)
	if !ok {
		return nil, errorf("enum", arg.Pos(), "unknown type %q", typeName)
	}
	c, err := expr.EnumConst(t, valueName)
	if err != nil {
		return nil, errorf("enum", arg.Pos(), "%v", err)
	}
	return c, nil
}
