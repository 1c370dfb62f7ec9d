package expr

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/types"
)

// Host function names understood by the evaluator and the SQL compiler.
const (
	FuncConcat  = "concat"
	FuncJoin    = "join"
	FuncCaption = "caption"
)

// HostFunc implements a static call during direct evaluation. call gives
// access to the static argument types.
type HostFunc func(call *MethodCall, args []ir.IRValue) (ir.IRValue, error)

// Funcs is a table of host functions by name.
type Funcs map[string]HostFunc

// DefaultFuncs returns the functions every evaluator knows.
func DefaultFuncs() Funcs {
	return Funcs{
		FuncConcat: concatFunc,
		FuncJoin:   joinFunc,
	}
}

// With returns a copy of f with name bound to fn.
func (f Funcs) With(name string, fn HostFunc) Funcs {
	out := maps.Clone(f)
	if out == nil {
		out = Funcs{}
	}
	out[name] = fn
	return out
}

func concatFunc(call *MethodCall, args []ir.IRValue) (ir.IRValue, error) {
	var b strings.Builder
	for i, a := range args {
		s, err := ToText(call.Args[i].Type(), a)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
	}
	return ir.IRString(b.String()), nil
}

func joinFunc(call *MethodCall, args []ir.IRValue) (ir.IRValue, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("join: separator is required")
	}
	sep, err := ToText(call.Args[0].Type(), args[0])
	if err != nil {
		return nil, err
	}
	parts := make([]string, 0, len(args)-1)
	for i, a := range args[1:] {
		s, err := ToText(call.Args[i+1].Type(), a)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return ir.IRString(strings.Join(parts, sep)), nil
}

// ToText is the default stringification of a scalar of static type t. Null
// renders as the empty string and enum values render as their name.
func ToText(t *types.Type, v ir.IRValue) (string, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return "", nil
	case ir.IRString:
		return string(val), nil
	case ir.IRBool:
		if val {
			return "True", nil
		}
		return "False", nil
	case ir.IRInt:
		if t.IsEnum() {
			if ev, ok := t.ValueOf(int64(val)); ok {
				return ev.Name, nil
			}
		}
		return strconv.FormatInt(int64(val), 10), nil
	default:
		return "", fmt.Errorf("cannot convert %T to text", v)
	}
}
