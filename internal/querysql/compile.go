package querysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/queryir"
	"github.com/roach88/calcx/internal/translation"
	"github.com/roach88/calcx/internal/types"
)

// Column names the store reserves in every hierarchy table.
const (
	IDColumn   = "id"
	TypeColumn = "_type"
)

// SQLCompiler compiles inlined queries to parameterized SQL for SQLite.
//
// A hierarchy is stored in one table named after its root type, with one
// column per stored field and the runtime type name in TypeColumn.
//
// CRITICAL: ALL queries end with ORDER BY id for deterministic results.
// CRITICAL: All values are parameterized (never interpolated).
type SQLCompiler struct {
	universe *types.Universe
}

// NewSQLCompiler creates a compiler resolving type tests against u.
func NewSQLCompiler(u *types.Universe) *SQLCompiler {
	return &SQLCompiler{universe: u}
}

// Compile converts an inlined query to parameterized SQL.
// Returns (sql, params, error) tuple.
//
// Forms outside the translatable fragment (computed member reads, calls
// other than concat) fail with an UNSUPPORTED_TRANSLATION error; inline the
// query first.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case *queryir.Select:
		return c.compileSelect(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// sqlBuilder accumulates one statement. Parameters are appended in the
// order their placeholders are written.
type sqlBuilder struct {
	c      *SQLCompiler
	from   *types.Type
	row    *expr.Parameter
	sb     strings.Builder
	params []any
}

func (c *SQLCompiler) compileSelect(q *queryir.Select) (string, []any, error) {
	if q.From == nil || q.Row == nil {
		return "", nil, fmt.Errorf("query has no source type")
	}
	if len(q.Columns) == 0 {
		return "", nil, fmt.Errorf("query selects no columns")
	}
	b := &sqlBuilder{c: c, from: q.From, row: q.Row}

	b.sb.WriteString("SELECT ")
	for i, col := range q.Columns {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		if err := b.value(col.Expr); err != nil {
			return "", nil, fmt.Errorf("compile column %s: %w", col.Name, err)
		}
		b.sb.WriteString(" AS " + QuoteIdent(col.Name))
	}

	b.sb.WriteString(" FROM " + QuoteIdent(types.Root(q.From).Name))

	var where []func() error
	if types.Root(q.From) != q.From {
		where = append(where, func() error { return b.typeIn(q.From) })
	}
	if q.Filter != nil {
		where = append(where, func() error { return b.value(q.Filter) })
	}
	for i, w := range where {
		if i == 0 {
			b.sb.WriteString(" WHERE ")
		} else {
			b.sb.WriteString(" AND ")
		}
		if err := w(); err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
	}

	// MANDATORY: Always add ORDER BY
	b.sb.WriteString(" ORDER BY ")
	for _, o := range q.OrderBy {
		if err := b.value(o.Expr); err != nil {
			return "", nil, fmt.Errorf("compile order: %w", err)
		}
		if o.Desc {
			b.sb.WriteString(" DESC, ")
		} else {
			b.sb.WriteString(" ASC, ")
		}
	}
	b.sb.WriteString(stableOrderKey())

	return b.sb.String(), b.params, nil
}

// stableOrderKey is the final ORDER BY term of every query. Ids are UUIDv7,
// so this is insertion order. COLLATE BINARY ensures deterministic text
// ordering across SQLite versions.
func stableOrderKey() string {
	return QuoteIdent(IDColumn) + " COLLATE BINARY ASC"
}

// QuoteIdent quotes a table or column name.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (b *sqlBuilder) param(v ir.IRValue) error {
	p, err := ir.ToGo(v)
	if err != nil {
		return fmt.Errorf("convert value: %w", err)
	}
	b.sb.WriteByte('?')
	b.params = append(b.params, p)
	return nil
}

// value writes n as a SQL expression. Booleans are SQLite integers, so
// predicates and values share one form.
func (b *sqlBuilder) value(n expr.Node) error {
	switch n := n.(type) {
	case *expr.Constant:
		return b.param(n.Value)
	case *expr.PropertyRead:
		return b.column(n)
	case *expr.NoTranslate:
		return b.value(n.Target)
	case *expr.Convert:
		if b.isRow(n.Target) {
			return translation.NewUnsupportedError("cannot select the row itself: %s", expr.Format(n))
		}
		return b.value(n.Target)
	case *expr.Conditional:
		return b.conditional(n)
	case *expr.TypeTest:
		if !b.isRow(n.Target) {
			return translation.NewUnsupportedError("type test of a non-row value: %s", expr.Format(n))
		}
		return b.typeIn(n.Test)
	case *expr.Binary:
		return b.binary(n)
	case *expr.MethodCall:
		if n.IsStatic() && n.Method == expr.FuncConcat {
			return b.concat(n)
		}
		return translation.NewUnsupportedError("call %s has no SQL translation", expr.Format(n))
	case *expr.Parameter:
		if n == b.row {
			return translation.NewUnsupportedError("cannot select the row itself")
		}
		return translation.NewUnsupportedError("free parameter %s", n.Name)
	default:
		return translation.NewUnsupportedError("%T has no SQL translation", n)
	}
}

// column writes a stored field of the row. A cast to the field's declaring
// type needs no test since rows of other types hold NULL there. A cast to a
// subtype of the declaring type is guarded with the runtime type so rows
// outside the cast read NULL, as they do in memory.
func (b *sqlBuilder) column(n *expr.PropertyRead) error {
	if !b.isRow(n.Target) {
		return translation.NewUnsupportedError("%s does not read the row", expr.Format(n))
	}
	m, ok := n.Target.Type().LookupMember(n.Member)
	if !ok || m.Kind != types.Field {
		return translation.NewUnsupportedError("%s is not a stored field", expr.Format(n))
	}

	guards := b.castGuards(n.Target, m.Declaring)
	if len(guards) == 0 {
		b.sb.WriteString(QuoteIdent(n.Member))
		return nil
	}
	b.sb.WriteString("CASE WHEN ")
	for i, t := range guards {
		if i > 0 {
			b.sb.WriteString(" AND ")
		}
		if err := b.typeIn(t); err != nil {
			return err
		}
	}
	b.sb.WriteString(" THEN " + QuoteIdent(n.Member) + " END")
	return nil
}

// castGuards returns the cast types on the way to the row that a row of
// the queried type may fail and whose failure the column does not already
// encode as NULL.
func (b *sqlBuilder) castGuards(n expr.Node, declaring *types.Type) []*types.Type {
	var out []*types.Type
	for {
		cv, ok := n.(*expr.Convert)
		if !ok {
			return out
		}
		t := cv.To
		if t != declaring && !t.IsAssignableFrom(b.from) && !slices.Contains(out, t) {
			out = append(out, t)
		}
		n = cv.Target
	}
}

func (b *sqlBuilder) isRow(n expr.Node) bool {
	for {
		switch t := n.(type) {
		case *expr.Convert:
			n = t.Target
		case *expr.Parameter:
			return t == b.row
		default:
			return false
		}
	}
}

// typeIn writes the runtime type test "_type" IN (...) over t and every
// subtype of t.
func (b *sqlBuilder) typeIn(t *types.Type) error {
	concrete := b.c.universe.Concrete(t)
	if len(concrete) == 0 {
		b.sb.WriteString("0")
		return nil
	}
	b.sb.WriteString(QuoteIdent(TypeColumn) + " IN (")
	for i, ct := range concrete {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		if err := b.param(ir.IRString(ct.Name)); err != nil {
			return err
		}
	}
	b.sb.WriteByte(')')
	return nil
}

func (b *sqlBuilder) conditional(n *expr.Conditional) error {
	b.sb.WriteString("CASE WHEN ")
	if err := b.value(n.Test); err != nil {
		return err
	}
	b.sb.WriteString(" THEN ")
	if err := b.value(n.IfTrue); err != nil {
		return err
	}
	b.sb.WriteString(" ELSE ")
	if err := b.value(n.IfFalse); err != nil {
		return err
	}
	b.sb.WriteString(" END")
	return nil
}

// binary writes comparisons with IS / IS NOT, SQLite's null-safe equality,
// so null compares equal to null as it does in memory.
func (b *sqlBuilder) binary(n *expr.Binary) error {
	var op string
	switch n.Op {
	case expr.OpEqual:
		op = " IS "
	case expr.OpNotEqual:
		op = " IS NOT "
	case expr.OpAndAlso:
		op = " AND "
	case expr.OpOrElse:
		op = " OR "
	default:
		return translation.NewUnsupportedError("operator %s has no SQL translation", n.Op)
	}
	b.sb.WriteByte('(')
	if err := b.value(n.Left); err != nil {
		return err
	}
	b.sb.WriteString(op)
	if err := b.value(n.Right); err != nil {
		return err
	}
	b.sb.WriteByte(')')
	return nil
}

// concat writes (IFNULL(a, '') || IFNULL(b, '') ...). Booleans and enums are
// rendered the way they print in memory.
func (b *sqlBuilder) concat(n *expr.MethodCall) error {
	if len(n.Args) == 0 {
		b.sb.WriteString("''")
		return nil
	}
	b.sb.WriteByte('(')
	for i, a := range n.Args {
		if i > 0 {
			b.sb.WriteString(" || ")
		}
		if err := b.text(a); err != nil {
			return err
		}
	}
	b.sb.WriteByte(')')
	return nil
}

func (b *sqlBuilder) text(n expr.Node) error {
	if c, ok := n.(*expr.Constant); ok {
		s, err := expr.ToText(c.Typ, c.Value)
		if err != nil {
			return err
		}
		return b.param(ir.IRString(s))
	}

	t := n.Type()
	switch {
	case t.IsEnum():
		b.sb.WriteString("CASE ")
		if err := b.value(n); err != nil {
			return err
		}
		for _, v := range t.Values() {
			b.sb.WriteString(" WHEN ")
			if err := b.param(ir.IRInt(v.Value)); err != nil {
				return err
			}
			b.sb.WriteString(" THEN ")
			if err := b.param(ir.IRString(v.Name)); err != nil {
				return err
			}
		}
		b.sb.WriteString(" ELSE IFNULL(CAST(")
		if err := b.value(n); err != nil {
			return err
		}
		b.sb.WriteString(" AS TEXT), '') END")
		return nil
	case t == types.Bool:
		b.sb.WriteString("CASE ")
		if err := b.value(n); err != nil {
			return err
		}
		b.sb.WriteString(" WHEN 1 THEN 'True' WHEN 0 THEN 'False' ELSE '' END")
		return nil
	default:
		b.sb.WriteString("IFNULL(")
		if err := b.value(n); err != nil {
			return err
		}
		b.sb.WriteString(", '')")
		return nil
	}
}
