package queryir

import (
	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/types"
)

// Query represents an abstract query.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Select reads rows of From, including rows whose runtime type derives
// from From.
//
// Semantics:
//
//	SELECT <columns> FROM <hierarchy of From> WHERE <filter> ORDER BY <order>
//
// Every expression is written over Row. Rows are returned in OrderBy order
// with insertion order as the final tiebreaker.
type Select struct {
	From    *types.Type
	Row     *expr.Parameter
	Columns []Column
	Filter  expr.Node // nil = no filter
	OrderBy []Order
}

func (*Select) queryNode() {}

// Column is one named result expression.
type Column struct {
	Name string
	Expr expr.Node
}

// Order is one ORDER BY term.
type Order struct {
	Expr expr.Node
	Desc bool
}

// NewSelect creates a query over from with a fresh row parameter named m.
func NewSelect(from *types.Type) *Select {
	return &Select{From: from, Row: expr.Param("m", from)}
}

// Column appends a result column and returns q.
func (q *Select) Column(name string, e expr.Node) *Select {
	q.Columns = append(q.Columns, Column{Name: name, Expr: e})
	return q
}

// Where sets the filter and returns q.
func (q *Select) Where(e expr.Node) *Select {
	q.Filter = e
	return q
}

// Order appends an ORDER BY term and returns q.
func (q *Select) Order(e expr.Node, desc bool) *Select {
	q.OrderBy = append(q.OrderBy, Order{Expr: e, Desc: desc})
	return q
}

// Map returns a copy of q with fn applied to every expression. q is not
// modified.
func (q *Select) Map(fn func(expr.Node) (expr.Node, error)) (*Select, error) {
	out := &Select{From: q.From, Row: q.Row}
	for _, c := range q.Columns {
		e, err := fn(c.Expr)
		if err != nil {
			return nil, err
		}
		out.Columns = append(out.Columns, Column{Name: c.Name, Expr: e})
	}
	if q.Filter != nil {
		f, err := fn(q.Filter)
		if err != nil {
			return nil, err
		}
		out.Filter = f
	}
	for _, o := range q.OrderBy {
		e, err := fn(o.Expr)
		if err != nil {
			return nil, err
		}
		out.OrderBy = append(out.OrderBy, Order{Expr: e, Desc: o.Desc})
	}
	return out, nil
}

// Exprs returns every expression of q in clause order.
func (q *Select) Exprs() []expr.Node {
	var out []expr.Node
	for _, c := range q.Columns {
		out = append(out, c.Expr)
	}
	if q.Filter != nil {
		out = append(out, q.Filter)
	}
	for _, o := range q.OrderBy {
		out = append(out, o.Expr)
	}
	return out
}
