package expr

import (
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/types"
)

// Instance is an in-memory object whose computed attributes can be
// evaluated directly.
type Instance interface {
	// RuntimeType is the most derived type of the instance.
	RuntimeType() *types.Type
	// Field returns the stored value of a field.
	Field(name string) (ir.IRValue, bool)
}

// Record is the Instance used for rows loaded from storage and for values
// built in tests.
type Record struct {
	Typ    *types.Type
	Values ir.IRObject
}

// NewRecord creates a record of type t. A nil fields object is treated as
// empty.
func NewRecord(t *types.Type, fields ir.IRObject) *Record {
	if fields == nil {
		fields = ir.IRObject{}
	}
	return &Record{Typ: t, Values: fields}
}

func (r *Record) RuntimeType() *types.Type { return r.Typ }

func (r *Record) Field(name string) (ir.IRValue, bool) {
	v, ok := r.Values[name]
	return v, ok
}
