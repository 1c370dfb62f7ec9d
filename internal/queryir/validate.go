package queryir

import (
	"fmt"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/types"
)

// ValidationResult describes whether a query is within the translatable
// fragment.
type ValidationResult struct {
	// IsTranslatable is true when a backend can compile the query as is.
	IsTranslatable bool

	// Warnings lists every form outside the fragment.
	Warnings []string
}

// Validate checks q against the translatable fragment. Stored fields are
// told apart from computed members by the declared member kind.
//
// Validate is a pure function with no side effects.
func Validate(q *Select) ValidationResult {
	v := &validator{q: q, warnings: []string{}}
	v.validate()
	return ValidationResult{
		IsTranslatable: len(v.warnings) == 0,
		Warnings:       v.warnings,
	}
}

type validator struct {
	q        *Select
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validate() {
	if v.q == nil {
		v.addWarning("nil query")
		return
	}
	if v.q.From == nil || v.q.Row == nil {
		v.addWarning("query has no source type")
		return
	}
	if len(v.q.Columns) == 0 {
		v.addWarning("query selects no columns")
	}
	seen := make(map[string]bool)
	for _, c := range v.q.Columns {
		if c.Name == "" {
			v.addWarning("column without a name: %s", expr.Format(c.Expr))
		}
		if seen[c.Name] {
			v.addWarning("duplicate column name %q", c.Name)
		}
		seen[c.Name] = true
	}
	for _, e := range v.q.Exprs() {
		v.validateExpr(e)
	}
}

func (v *validator) validateExpr(root expr.Node) {
	expr.Inspect(root, func(n expr.Node) bool {
		switch n := n.(type) {
		case *expr.Parameter:
			if n != v.q.Row {
				v.addWarning("free parameter %s", n.Name)
			}
		case *expr.PropertyRead:
			if !v.isRow(n.Target) {
				v.addWarning("%s does not read the row", expr.Format(n))
			} else if m, ok := n.Target.Type().LookupMember(n.Member); !ok || m.Kind != types.Field {
				v.addWarning("%s reads a computed member", expr.Format(n))
			}
			return false
		case *expr.NoTranslate:
			if r, ok := n.Target.(*expr.PropertyRead); ok && v.isRow(r.Target) {
				return false
			}
			v.addWarning("%s marks a node that is not a field read", expr.Format(n))
			return false
		case *expr.MethodCall:
			if !n.IsStatic() || n.Method != expr.FuncConcat {
				v.addWarning("call %s is not translatable", expr.Format(n))
				return false
			}
		case *expr.TypeTest:
			if !v.isRow(n.Target) {
				v.addWarning("%s does not test the row", expr.Format(n))
				return false
			}
		case *expr.Lambda:
			v.addWarning("nested lambda %s", expr.Format(n))
			return false
		}
		return true
	})
}

// isRow reports whether n is the row parameter, possibly behind casts.
func (v *validator) isRow(n expr.Node) bool {
	for {
		switch t := n.(type) {
		case *expr.Convert:
			n = t.Target
		case *expr.Parameter:
			return t == v.q.Row
		default:
			return false
		}
	}
}
