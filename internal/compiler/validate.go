package compiler

import (
	"fmt"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/translation"
	"github.com/roach88/calcx/internal/types"
)

// Validation error codes (E100-E199)
const (
	ErrNilSchema = "E100" // nothing to validate

	ErrMissingDefinition = "E101" // computed member with no attribute on its declaring type
	ErrBodyTypeMismatch  = "E102" // body type not assignable to member type
	ErrCircularAttribute = "E103" // attributes read each other
	ErrDynamicSeparator  = "E104" // join separator is not a constant
	ErrEmptyEnum         = "E105" // enum without values
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled schema for declarations that compile but
// cannot be inlined. Returns all errors found (does not fail-fast).
func Validate(s *Schema) []ValidationError {
	if s == nil {
		return []ValidationError{{Field: "schema", Message: "schema is nil", Code: ErrNilSchema}}
	}

	var errs []ValidationError
	for _, t := range s.Types {
		if t.IsEnum() && len(t.Values()) == 0 {
			errs = append(errs, ValidationError{
				Field:   "enum." + t.Name,
				Message: "enum declares no values",
				Code:    ErrEmptyEnum,
			})
		}
		errs = append(errs, validateDefinitions(s, t)...)
	}

	for _, a := range s.Attributes {
		errs = append(errs, validateAttribute(a)...)
	}

	for _, w := range AnalyzeCycles(s) {
		errs = append(errs, ValidationError{
			Field:   w.Path[0],
			Message: w.Message,
			Code:    ErrCircularAttribute,
		})
	}
	return errs
}

// validateDefinitions reports computed members of t that have nothing to
// inline through t itself.
func validateDefinitions(s *Schema, t *types.Type) []ValidationError {
	var errs []ValidationError
	for _, m := range t.Members() {
		if m.Kind == types.Field {
			continue
		}
		kind := translation.PropertyMember
		if m.Kind == types.Method {
			kind = translation.MethodMember
		}
		if hasAttribute(s, t, m.Name, kind) {
			continue
		}
		errs = append(errs, ValidationError{
			Field:   attributeField(t, m.Name, kind),
			Message: fmt.Sprintf("computed %s %s has no definition on %s", m.Kind, m.Name, t),
			Code:    ErrMissingDefinition,
		})
	}
	return errs
}

func hasAttribute(s *Schema, t *types.Type, member string, kind translation.MemberKind) bool {
	for _, a := range s.Attributes {
		if a.Symbol.Member != member || a.Symbol.Kind != kind {
			continue
		}
		if a.Symbol.Type == t || (a.Base && a.Symbol.Type.IsAssignableFrom(t)) {
			return true
		}
	}
	return false
}

func validateAttribute(a Attribute) []ValidationError {
	var errs []ValidationError
	field := attributeField(a.Symbol.Type, a.Symbol.Member, a.Symbol.Kind)
	if a.Base {
		field = "base." + a.Symbol.Type.Name + "." + a.Symbol.Member
	}
	line := 0
	if a.Pos.IsValid() {
		line = a.Pos.Line()
	}

	if decl, ok := a.Symbol.Type.LookupMember(a.Symbol.Member); ok {
		body := a.Body.Body
		if !expr.IsNullConstant(body) && !decl.Type.IsAssignableFrom(body.Type()) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("body has type %s, member %s is %s", body.Type(), a.Symbol.Member, decl.Type),
				Code:    ErrBodyTypeMismatch,
				Line:    line,
			})
		}
	}

	expr.Inspect(a.Body, func(n expr.Node) bool {
		call, ok := n.(*expr.MethodCall)
		if !ok || !call.IsStatic() || call.Method != expr.FuncJoin || len(call.Args) == 0 {
			return true
		}
		if _, isConst := call.Args[0].(*expr.Constant); !isConst {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "join separator must be a constant",
				Code:    ErrDynamicSeparator,
				Line:    line,
			})
		}
		return true
	})
	return errs
}

func attributeField(t *types.Type, member string, kind translation.MemberKind) string {
	section := "computed"
	if kind == translation.MethodMember {
		section = "methods"
	}
	return "type." + t.Name + "." + section + "." + member
}
