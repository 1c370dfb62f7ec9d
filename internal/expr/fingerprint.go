package expr

import (
	"fmt"

	"github.com/roach88/calcx/internal/ir"
)

// Encode converts n into its canonical IR encoding. Parameters are encoded
// by position among the enclosing lambda parameters, so alpha-equivalent
// lambdas encode identically.
func Encode(n Node) (ir.IRValue, error) {
	return encode(n, nil)
}

func encode(n Node, scope []*Parameter) (ir.IRValue, error) {
	switch n := n.(type) {
	case *Parameter:
		for i := len(scope) - 1; i >= 0; i-- {
			if scope[i] == n {
				return ir.IRObject{"param": ir.IRInt(i), "type": ir.IRString(n.Typ.Name)}, nil
			}
		}
		return ir.IRObject{"free": ir.IRString(n.Name), "type": ir.IRString(n.Typ.Name)}, nil
	case *Constant:
		if ir.IsNull(n.Value) {
			return ir.IRObject{"null": ir.IRBool(true), "type": ir.IRString(n.Typ.Name)}, nil
		}
		return ir.IRObject{"const": n.Value, "type": ir.IRString(n.Typ.Name)}, nil
	case *Lambda:
		inner := append(append([]*Parameter(nil), scope...), n.Params...)
		body, err := encode(n.Body, inner)
		if err != nil {
			return nil, err
		}
		params := make(ir.IRArray, len(n.Params))
		for i, p := range n.Params {
			params[i] = ir.IRString(p.Typ.Name)
		}
		return ir.IRObject{"lambda": params, "body": body}, nil
	}

	kids := Children(n)
	encoded := make(ir.IRArray, len(kids))
	for i, k := range kids {
		e, err := encode(k, scope)
		if err != nil {
			return nil, err
		}
		encoded[i] = e
	}

	obj := ir.IRObject{"args": encoded}
	switch n := n.(type) {
	case *PropertyRead:
		obj["read"] = ir.IRString(n.Member)
	case *MethodCall:
		obj["call"] = ir.IRString(n.Method)
		obj["static"] = ir.IRBool(n.Target == nil)
	case *Conditional:
		obj["if"] = ir.IRString(n.Typ.Name)
	case *TypeTest:
		obj["is"] = ir.IRString(n.Test.Name)
	case *Convert:
		obj["as"] = ir.IRString(n.To.Name)
	case *Binary:
		obj["op"] = ir.IRString(string(n.Op))
	case *NoTranslate:
		obj["raw"] = ir.IRBool(true)
	default:
		return nil, fmt.Errorf("cannot encode %T", n)
	}
	return obj, nil
}

// Fingerprint returns the content hash of n.
func Fingerprint(n Node) (string, error) {
	v, err := Encode(n)
	if err != nil {
		return "", err
	}
	return ir.Hash(ir.DomainExpression, v)
}

// Equal reports whether a and b are structurally equal up to renaming of
// lambda parameters.
func Equal(a, b Node) bool {
	fa, errA := Fingerprint(a)
	fb, errB := Fingerprint(b)
	return errA == nil && errB == nil && fa == fb
}
