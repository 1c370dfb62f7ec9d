package translation

import (
	"sync"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/types"
)

// MemberKind distinguishes computed properties from parameterless methods.
type MemberKind int

const (
	PropertyMember MemberKind = iota
	MethodMember
)

func (k MemberKind) String() string {
	if k == MethodMember {
		return "method"
	}
	return "property"
}

// Symbol identifies a registration point: the registering type, the member
// name and whether the member is a property or a method. Symbols are
// comparable and used as map keys.
type Symbol struct {
	Type   *types.Type
	Member string
	Kind   MemberKind
}

func (s Symbol) String() string {
	name := s.Type.String() + "." + s.Member
	if s.Kind == MethodMember {
		name += "()"
	}
	return name
}

// Entry is the compiled definition of one Symbol.
//
// Body never changes after registration. The override body is derived from
// Body and the entries registered for the same member on subtypes; it is
// recomputed only when that set of contributors grows, so resolving the same
// entry from several goroutines converges on the same tree.
type Entry struct {
	Symbol Symbol
	Body   *expr.Lambda

	// IsAuto marks an entry the map created itself: a base entry that reads
	// the stored value, created so overrides on subtypes have a target.
	IsAuto bool

	m           *Map
	seq         int
	fingerprint string

	mu          sync.Mutex
	initial     *expr.Lambda // override body supplied at registration
	foldKey     string
	folded      *expr.Lambda
	useOverride bool

	compileOnce sync.Once
	fn          expr.Func
	compileErr  error
}

// OverrideBody returns the current override body, or nil when the entry has
// never been resolved against any override.
func (e *Entry) OverrideBody() *expr.Lambda {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.folded != nil {
		return e.folded
	}
	return e.initial
}

// UseOverride reports whether inlining through this entry's own type
// prefers the override body.
func (e *Entry) UseOverride() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.useOverride
}

// Evaluate runs the directly callable form of the entry against an
// in-memory instance. The form is compiled on first use from the fully
// inlined body.
func (e *Entry) Evaluate(inst expr.Instance) (ir.IRValue, error) {
	if inst == nil {
		return nil, NewNullInstanceError(e.Symbol)
	}
	e.compileOnce.Do(func() {
		e.fn, e.compileErr = e.compile()
	})
	if e.compileErr != nil {
		return nil, e.compileErr
	}
	return e.fn(inst)
}

func (e *Entry) compile() (expr.Func, error) {
	inlined, err := e.m.Inline(e.Body)
	if err != nil {
		return nil, err
	}
	return expr.Compile(inlined.(*expr.Lambda), e.m.funcs)
}

func (e *Entry) String() string {
	return e.Symbol.String() + " = " + e.Body.String()
}
