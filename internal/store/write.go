package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/querysql"
	"github.com/roach88/calcx/internal/types"
)

// Insert stores rec and returns its new row id.
//
// Only stored fields of the record's runtime type may be set. Fields left
// out are NULL.
func (s *Store) Insert(ctx context.Context, rec *expr.Record) (string, error) {
	ids, err := s.InsertAll(ctx, []*expr.Record{rec})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertAll stores every record in one transaction, in order. Either all
// records are stored or none is.
func (s *Store) InsertAll(ctx context.Context, recs []*expr.Record) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		id, err := s.insert(ctx, tx, rec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	return ids, nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, rec *expr.Record) (string, error) {
	if rec == nil || rec.Typ == nil {
		return "", fmt.Errorf("insert: record has no type")
	}
	table, err := s.Table(rec.Typ)
	if err != nil {
		return "", fmt.Errorf("insert: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("insert: generate id: %w", err)
	}

	names := []string{querysql.QuoteIdent(querysql.IDColumn), querysql.QuoteIdent(querysql.TypeColumn)}
	args := []any{id.String(), rec.Typ.Name}
	for _, name := range rec.Values.SortedKeys() {
		m, ok := rec.Typ.LookupMember(name)
		if !ok || m.Kind != types.Field {
			return "", fmt.Errorf("insert %s: %s is not a stored field", rec.Typ, name)
		}
		col, _ := table.Column(name)
		p, err := toParam(col, rec.Values[name])
		if err != nil {
			return "", fmt.Errorf("insert %s: %w", rec.Typ, err)
		}
		names = append(names, querysql.QuoteIdent(name))
		args = append(args, p)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		querysql.QuoteIdent(table.Name),
		strings.Join(names, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", "))
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("insert %s: %w", rec.Typ, err)
	}
	return id.String(), nil
}
