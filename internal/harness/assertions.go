package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/store"
	"github.com/roach88/calcx/internal/types"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Step, event.Kind, event.Subject)
		}
	}

	return buf.String()
}

// assertStoredOnly checks that the inlined expressions of the selected steps
// read stored fields only: no computed property and no method call other
// than a host function survived inlining.
func assertStoredOnly(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if assertion.Step != 0 && event.Step != assertion.Step {
			continue
		}
		for _, n := range event.inlined {
			if left := computedReads(n); len(left) > 0 {
				return &AssertionError{
					Type:     AssertStoredOnly,
					Expected: fmt.Sprintf("step %d to read stored fields only", event.Step),
					Actual:   fmt.Sprintf("still reads %s", strings.Join(left, ", ")),
					Trace:    trace,
				}
			}
		}
	}
	return nil
}

// computedReads lists the member accesses in n that are not stored field
// reads.
func computedReads(n expr.Node) []string {
	var out []string
	expr.Inspect(n, func(n expr.Node) bool {
		switch n := n.(type) {
		case *expr.PropertyRead:
			if m, ok := n.Target.Type().LookupMember(n.Member); !ok || m.Kind != types.Field {
				out = append(out, expr.Format(n))
			}
		case *expr.MethodCall:
			if !n.IsStatic() {
				out = append(out, expr.Format(n))
			}
		}
		return true
	})
	return out
}

// assertRowCount checks that a query step returned exactly Count rows.
func assertRowCount(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Step != assertion.Step {
			continue
		}
		if event.Kind != StepQuery {
			return fmt.Errorf("row_count: step %d is a %s step, not a query", event.Step, event.Kind)
		}
		if len(event.Rows) != assertion.Count {
			return &AssertionError{
				Type:     AssertRowCount,
				Expected: fmt.Sprintf("%d rows from step %d", assertion.Count, event.Step),
				Actual:   fmt.Sprintf("%d rows", len(event.Rows)),
				Trace:    trace,
			}
		}
		return nil
	}
	return fmt.Errorf("row_count: no step %d in trace", assertion.Step)
}

// assertFinalState checks that exactly one stored record of Table (or a
// subtype) matches Where, and that it holds the Expect values (subset
// semantics).
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	t, ok := st.Universe().Lookup(assertion.Table)
	if !ok {
		return fmt.Errorf("final_state: unknown type %q", assertion.Table)
	}
	where, err := fieldValues(t, assertion.Where)
	if err != nil {
		return fmt.Errorf("final_state where: %w", err)
	}

	rows, err := st.Load(ctx, t)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("load records of %s", assertion.Table),
			Actual:   fmt.Sprintf("load error: %v", err),
		}
	}

	var matched []store.Row
	for _, row := range rows {
		if matchFields(row.Record, where) {
			matched = append(matched, row)
		}
	}
	switch len(matched) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record of %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "record not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one record of %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d records matched (assertion is ambiguous)", len(matched)),
		}
	}

	rec := matched[0].Record
	for _, key := range sortedKeys(assertion.Expect) {
		m, ok := rec.Typ.LookupMember(key)
		if !ok || m.Kind != types.Field {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("%s has no stored field %q", rec.Typ, key),
			}
		}
		want, err := toValue(m.Type, assertion.Expect[key])
		if err != nil {
			return fmt.Errorf("final_state expect %s: %w", key, err)
		}
		actual, _ := rec.Field(key)
		if !ir.Equal(want, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %s", key, ir.Format(want)),
				Actual:   fmt.Sprintf("field %q = %s", key, ir.Format(actual)),
			}
		}
	}

	return nil
}

// matchFields reports whether rec holds every value in where. A field the
// runtime type does not declare never matches.
func matchFields(rec *expr.Record, where ir.IRObject) bool {
	for name, want := range where {
		if m, ok := rec.Typ.LookupMember(name); !ok || m.Kind != types.Field {
			return false
		}
		actual, _ := rec.Field(name)
		if !ir.Equal(want, actual) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStoredOnly:
			err = assertStoredOnly(result.Trace, assertion)
		case AssertRowCount:
			err = assertRowCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
