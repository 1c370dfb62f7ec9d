package store

import (
	"fmt"

	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/types"
)

// toParam converts a field value to a SQL parameter, checking it against
// the declared field type.
func toParam(c Column, v ir.IRValue) (any, error) {
	if ir.IsNull(v) {
		return nil, nil
	}
	ok := false
	switch v.(type) {
	case ir.IRString:
		ok = c.Type == types.String
	case ir.IRInt:
		ok = c.Type == types.Int || c.Type.IsEnum()
	case ir.IRBool:
		ok = c.Type == types.Bool
	}
	if !ok {
		return nil, fmt.Errorf("field %s of type %s cannot hold %s", c.Name, c.Type, ir.Format(v))
	}
	return ir.ToGo(v)
}

// fromColumn converts a scanned SQLite value back to an IRValue of static
// type t. SQLite returns booleans as integers; a nil t keeps the storage
// class.
func fromColumn(t *types.Type, raw any) (ir.IRValue, error) {
	v, err := ir.FromGo(raw)
	if err != nil {
		return nil, err
	}
	if n, ok := v.(ir.IRInt); ok && t == types.Bool {
		return ir.IRBool(n != 0), nil
	}
	return v, nil
}
