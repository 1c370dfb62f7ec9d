package store

import (
	"fmt"

	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/querysql"
	"github.com/roach88/calcx/internal/types"
)

// Column is one stored field of a hierarchy.
type Column struct {
	Name string
	Type *types.Type
}

// Table describes the storage of one hierarchy.
type Table struct {
	Name       string
	Root       *types.Type
	Columns    []Column
	LayoutHash string

	byName map[string]Column
}

// NewTable lays out the table of the hierarchy rooted at root: the stored
// fields of root first, then the fields each subtype adds, in declaration
// order. Two subtypes may declare the same field only with the same type.
func NewTable(u *types.Universe, root *types.Type) (*Table, error) {
	t := &Table{Name: root.Name, Root: root, byName: make(map[string]Column)}
	for _, typ := range u.Concrete(root) {
		for _, f := range typ.Fields() {
			if f.Name == querysql.IDColumn || f.Name == querysql.TypeColumn {
				return nil, fmt.Errorf("table %s: field %s.%s uses a reserved column name", t.Name, typ, f.Name)
			}
			if existing, ok := t.byName[f.Name]; ok {
				if existing.Type != f.Type {
					return nil, fmt.Errorf("table %s: field %s is declared as both %s and %s", t.Name, f.Name, existing.Type, f.Type)
				}
				continue
			}
			col := Column{Name: f.Name, Type: f.Type}
			t.byName[f.Name] = col
			t.Columns = append(t.Columns, col)
		}
	}

	hash, err := ir.Hash(ir.DomainSchema, t.layout())
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", t.Name, err)
	}
	t.LayoutHash = hash
	return t, nil
}

// Column returns the column storing field name.
func (t *Table) Column(name string) (Column, bool) {
	c, ok := t.byName[name]
	return c, ok
}

func (t *Table) layout() ir.IRObject {
	cols := make(ir.IRArray, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = ir.IRObject{"name": ir.IRString(c.Name), "type": ir.IRString(sqlType(c.Type))}
	}
	return ir.IRObject{"table": ir.IRString(t.Name), "columns": cols}
}

// DDL returns the statements creating the table and its type index.
func (t *Table) DDL() []string {
	stmt := "CREATE TABLE IF NOT EXISTS " + querysql.QuoteIdent(t.Name) + " (\n\t" +
		querysql.QuoteIdent(querysql.IDColumn) + " TEXT PRIMARY KEY,\n\t" +
		querysql.QuoteIdent(querysql.TypeColumn) + " TEXT NOT NULL"
	for _, c := range t.Columns {
		stmt += ",\n\t" + querysql.QuoteIdent(c.Name) + " " + sqlType(c.Type)
	}
	stmt += "\n)"

	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
		querysql.QuoteIdent("idx_"+t.Name+"_type"),
		querysql.QuoteIdent(t.Name),
		querysql.QuoteIdent(querysql.TypeColumn))

	return []string{stmt, index}
}

// sqlType maps a field type to its SQLite column type. Booleans and enums
// are stored as integers.
func sqlType(t *types.Type) string {
	if t == types.String {
		return "TEXT"
	}
	return "INTEGER"
}
