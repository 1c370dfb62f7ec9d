package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/queryir"
	"github.com/roach88/calcx/internal/querysql"
	"github.com/roach88/calcx/internal/types"
)

// Row is a stored instance together with its row id.
type Row struct {
	ID string
	*expr.Record
}

// Query runs sqlText, compiled from q, and returns one object per row keyed
// by column name. Column values are converted using the static types of the
// column expressions.
//
// Returns an empty slice (not nil) when no row matches.
func (s *Store) Query(ctx context.Context, q *queryir.Select, sqlText string, params []any) ([]ir.IRObject, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.From, err)
	}
	defer rows.Close()

	out := []ir.IRObject{}
	raw := make([]any, len(q.Columns))
	ptrs := make([]any, len(q.Columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.From, err)
		}
		obj := make(ir.IRObject, len(q.Columns))
		for i, c := range q.Columns {
			v, err := fromColumn(c.Expr.Type(), raw[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			obj[c.Name] = v
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.From, err)
	}
	return out, nil
}

// Load returns every stored instance of t or its subtypes in insertion
// order. Each record carries the fields its runtime type declares.
func (s *Store) Load(ctx context.Context, t *types.Type) ([]Row, error) {
	table, err := s.Table(t)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	cols := []string{querysql.QuoteIdent(querysql.IDColumn), querysql.QuoteIdent(querysql.TypeColumn)}
	for _, c := range table.Columns {
		cols = append(cols, querysql.QuoteIdent(c.Name))
	}
	concrete := s.universe.Concrete(t)
	args := make([]any, len(concrete))
	for i, ct := range concrete {
		args[i] = ct.Name
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) ORDER BY %s COLLATE BINARY ASC",
		strings.Join(cols, ", "),
		querysql.QuoteIdent(table.Name),
		querysql.QuoteIdent(querysql.TypeColumn),
		strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", "),
		querysql.QuoteIdent(querysql.IDColumn))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", t, err)
	}
	defer rows.Close()

	out := []Row{}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t, err)
		}
		id, _ := raw[0].(string)
		typeName, _ := raw[1].(string)
		rt, ok := s.universe.Lookup(typeName)
		if !ok {
			return nil, fmt.Errorf("load %s: row %s has unknown type %q", t, id, typeName)
		}

		values := ir.IRObject{}
		for i, c := range table.Columns {
			if m, ok := rt.LookupMember(c.Name); !ok || m.Kind != types.Field {
				continue
			}
			v, err := fromColumn(c.Type, raw[i+2])
			if err != nil {
				return nil, fmt.Errorf("load %s.%s: %w", rt, c.Name, err)
			}
			values[c.Name] = v
		}
		out = append(out, Row{ID: id, Record: expr.NewRecord(rt, values)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t, err)
	}
	return out, nil
}
