package expr

import (
	"fmt"

	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/types"
)

// Func is a compiled single-parameter lambda.
type Func func(Instance) (ir.IRValue, error)

// value is either an ir.IRValue or an Instance.
type value any

type frame struct {
	arg value
}

type evalFn func(*frame) (value, error)

// Compile turns l into a closure tree that evaluates l against an instance.
// Computed members must already have been inlined: a property read that finds
// no stored field on the instance fails at evaluation time.
func Compile(l *Lambda, funcs Funcs) (Func, error) {
	if len(l.Params) != 1 {
		return nil, fmt.Errorf("compile: lambda must have exactly one parameter, has %d", len(l.Params))
	}
	if funcs == nil {
		funcs = DefaultFuncs()
	}
	c := &compiler{param: l.Params[0], funcs: funcs}
	body, err := c.compile(l.Body)
	if err != nil {
		return nil, err
	}
	return func(inst Instance) (ir.IRValue, error) {
		var arg value = ir.IRNull{}
		if inst != nil {
			arg = inst
		}
		v, err := body(&frame{arg: arg})
		if err != nil {
			return nil, err
		}
		switch v := v.(type) {
		case ir.IRValue:
			return v, nil
		case Instance:
			return nil, fmt.Errorf("expression evaluates to an instance of %s, not a value", v.RuntimeType())
		default:
			return ir.IRNull{}, nil
		}
	}, nil
}

type compiler struct {
	param *Parameter
	funcs Funcs
}

func (c *compiler) compile(n Node) (evalFn, error) {
	switch n := n.(type) {
	case *Parameter:
		if n != c.param {
			return nil, fmt.Errorf("compile: unbound parameter %s", n.Name)
		}
		return func(f *frame) (value, error) { return f.arg, nil }, nil

	case *Constant:
		v := n.Value
		return func(*frame) (value, error) { return v, nil }, nil

	case *PropertyRead:
		target, err := c.compile(n.Target)
		if err != nil {
			return nil, err
		}
		member := n.Member
		return func(f *frame) (value, error) {
			t, err := target(f)
			if err != nil {
				return nil, err
			}
			return readField(t, member)
		}, nil

	case *MethodCall:
		if n.IsStatic() {
			return c.compileStatic(n)
		}
		if n.Method != "ToString" {
			return nil, fmt.Errorf("compile: method %s.%s has no definition", n.Target.Type(), n.Method)
		}
		target, err := c.compile(n.Target)
		if err != nil {
			return nil, err
		}
		static := n.Target.Type()
		return func(f *frame) (value, error) {
			t, err := target(f)
			if err != nil {
				return nil, err
			}
			if inst, ok := t.(Instance); ok {
				return ir.IRString(inst.RuntimeType().Name), nil
			}
			s, err := ToText(static, t.(ir.IRValue))
			if err != nil {
				return nil, err
			}
			return ir.IRString(s), nil
		}, nil

	case *Conditional:
		test, err := c.compile(n.Test)
		if err != nil {
			return nil, err
		}
		ifTrue, err := c.compile(n.IfTrue)
		if err != nil {
			return nil, err
		}
		ifFalse, err := c.compile(n.IfFalse)
		if err != nil {
			return nil, err
		}
		return func(f *frame) (value, error) {
			ok, err := evalBool(test, f)
			if err != nil {
				return nil, err
			}
			if ok {
				return ifTrue(f)
			}
			return ifFalse(f)
		}, nil

	case *TypeTest:
		target, err := c.compile(n.Target)
		if err != nil {
			return nil, err
		}
		test, static := n.Test, n.Target.Type()
		return func(f *frame) (value, error) {
			t, err := target(f)
			if err != nil {
				return nil, err
			}
			rt := runtimeTypeOf(t, static)
			return ir.IRBool(rt != nil && test.IsAssignableFrom(rt)), nil
		}, nil

	case *Convert:
		target, err := c.compile(n.Target)
		if err != nil {
			return nil, err
		}
		to := n.To
		return func(f *frame) (value, error) {
			t, err := target(f)
			if err != nil {
				return nil, err
			}
			if inst, ok := t.(Instance); ok && !to.IsAssignableFrom(inst.RuntimeType()) {
				return ir.IRNull{}, nil
			}
			return t, nil
		}, nil

	case *Binary:
		return c.compileBinary(n)

	case *NoTranslate:
		return c.compile(n.Target)

	case *Lambda:
		return nil, fmt.Errorf("compile: nested lambdas are not supported")

	default:
		return nil, fmt.Errorf("compile: unsupported node %T", n)
	}
}

func (c *compiler) compileStatic(n *MethodCall) (evalFn, error) {
	fn, ok := c.funcs[n.Method]
	if !ok {
		return nil, fmt.Errorf("compile: unknown host function %s", n.Method)
	}
	args := make([]evalFn, len(n.Args))
	for i, a := range n.Args {
		e, err := c.compile(a)
		if err != nil {
			return nil, err
		}
		args[i] = e
	}
	return func(f *frame) (value, error) {
		vals := make([]ir.IRValue, len(args))
		for i, a := range args {
			v, err := a(f)
			if err != nil {
				return nil, err
			}
			iv, ok := v.(ir.IRValue)
			if !ok {
				return nil, fmt.Errorf("%s: argument %d is an instance, not a value", n.Method, i)
			}
			vals[i] = iv
		}
		return fn(n, vals)
	}, nil
}

func (c *compiler) compileBinary(n *Binary) (evalFn, error) {
	left, err := c.compile(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := c.compile(n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case OpAndAlso, OpOrElse:
		short := n.Op == OpOrElse
		return func(f *frame) (value, error) {
			l, err := evalBool(left, f)
			if err != nil {
				return nil, err
			}
			if l == short {
				return ir.IRBool(short), nil
			}
			r, err := evalBool(right, f)
			if err != nil {
				return nil, err
			}
			return ir.IRBool(r), nil
		}, nil
	case OpEqual, OpNotEqual:
		negate := n.Op == OpNotEqual
		return func(f *frame) (value, error) {
			l, err := left(f)
			if err != nil {
				return nil, err
			}
			r, err := right(f)
			if err != nil {
				return nil, err
			}
			return ir.IRBool(equalValues(l, r) != negate), nil
		}, nil
	default:
		return nil, fmt.Errorf("compile: unknown operator %q", n.Op)
	}
}

func evalBool(fn evalFn, f *frame) (bool, error) {
	v, err := fn(f)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case ir.IRBool:
		return bool(b), nil
	case ir.IRNull:
		return false, nil
	default:
		return false, fmt.Errorf("expected a boolean, got %T", v)
	}
}

func readField(target value, member string) (value, error) {
	switch t := target.(type) {
	case Instance:
		if v, ok := t.Field(member); ok {
			return v, nil
		}
		if m, ok := t.RuntimeType().LookupMember(member); ok && m.Kind == types.Field {
			return ir.IRNull{}, nil
		}
		return nil, fmt.Errorf("%s.%s has no stored value", t.RuntimeType(), member)
	case ir.IRNull, nil:
		return ir.IRNull{}, nil
	default:
		return nil, fmt.Errorf("cannot read %s from %T", member, target)
	}
}

// runtimeTypeOf returns the dynamic type of v, falling back to the static
// type for scalars. Null has no type.
func runtimeTypeOf(v value, static *types.Type) *types.Type {
	switch v := v.(type) {
	case Instance:
		return v.RuntimeType()
	case ir.IRNull, nil:
		return nil
	default:
		return static
	}
}

func equalValues(a, b value) bool {
	ai, aInst := a.(Instance)
	bi, bInst := b.(Instance)
	if aInst || bInst {
		return aInst && bInst && ai == bi
	}
	av, _ := a.(ir.IRValue)
	bv, _ := b.(ir.IRValue)
	return ir.Equal(av, bv)
}
