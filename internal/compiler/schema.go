package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue/token"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/translation"
	"github.com/roach88/calcx/internal/types"
)

// Attribute is one compiled computed-attribute declaration.
type Attribute struct {
	Symbol translation.Symbol
	Body   *expr.Lambda

	// Override installs Body as the starting override body as well.
	Override bool
	// Base marks a base translation, registered before the first inline
	// instead of when Symbol.Type is initialized.
	Base bool

	Pos token.Pos
}

// Schema is the result of compiling a set of declarations.
type Schema struct {
	Universe *types.Universe

	// Types lists the declared types in declaration order, ancestors first.
	Types []*types.Type

	// Attributes lists every attribute in declaration order.
	Attributes []Attribute
}

// Declared reports whether t was declared by the schema (as opposed to a
// builtin).
func (s *Schema) Declared(t *types.Type) bool {
	for _, d := range s.Types {
		if d == t {
			return true
		}
	}
	return false
}

// AttributesOf returns the non-base attributes registered on t.
func (s *Schema) AttributesOf(t *types.Type) []Attribute {
	var out []Attribute
	for _, a := range s.Attributes {
		if !a.Base && a.Symbol.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// Bases returns the base translations.
func (s *Schema) Bases() []Attribute {
	var out []Attribute
	for _, a := range s.Attributes {
		if a.Base {
			out = append(out, a)
		}
	}
	return out
}

// Install attaches the schema's attributes to m: one lazy registrant per
// type plus one base registrant. m must have been created over s.Universe.
func (s *Schema) Install(m *translation.Map) error {
	if m.Universe() != s.Universe {
		return fmt.Errorf("install: map was created over a different universe")
	}

	byType := make(map[*types.Type][]Attribute)
	var order []*types.Type
	for _, a := range s.Attributes {
		if a.Base {
			continue
		}
		if _, seen := byType[a.Symbol.Type]; !seen {
			order = append(order, a.Symbol.Type)
		}
		byType[a.Symbol.Type] = append(byType[a.Symbol.Type], a)
	}

	for _, t := range order {
		if err := m.RegisterType(t, registrant(byType[t])); err != nil {
			return fmt.Errorf("install: %w", err)
		}
	}
	for _, t := range order {
		for _, anc := range storingAncestors(t, byType[t]) {
			if err := m.RegisterType(anc, initializer(t)); err != nil {
				return fmt.Errorf("install: %w", err)
			}
		}
	}
	if bases := s.Bases(); len(bases) > 0 {
		m.MarkBase(registrant(bases))
	}
	return nil
}

// NewMap creates a translation map over s.Universe with the schema
// installed.
func (s *Schema) NewMap(opts ...translation.Option) (*translation.Map, error) {
	m := translation.NewMap(s.Universe, opts...)
	if err := s.Install(m); err != nil {
		return nil, err
	}
	return m, nil
}

// storingAncestors returns the ancestors of t that store a field one of
// attrs overrides. Initializing such an ancestor must also initialize t so
// the automatic base entry for the field exists before the first read.
func storingAncestors(t *types.Type, attrs []Attribute) []*types.Type {
	var out []*types.Type
	for _, a := range attrs {
		decl, ok := t.LookupMember(a.Symbol.Member)
		if !ok || decl.Kind != types.Field || decl.Declaring == t || slices.Contains(out, decl.Declaring) {
			continue
		}
		out = append(out, decl.Declaring)
	}
	return out
}

func initializer(t *types.Type) translation.Registrant {
	return func(m *translation.Map) error {
		return m.EnsureInitialized(t)
	}
}

func registrant(attrs []Attribute) translation.Registrant {
	return func(m *translation.Map) error {
		for _, a := range attrs {
			var err error
			if a.Override {
				_, err = m.RegisterOverride(a.Symbol.Type, a.Symbol.Member, a.Symbol.Kind, a.Body)
			} else {
				_, err = m.Register(a.Symbol.Type, a.Symbol.Member, a.Symbol.Kind, a.Body)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}
}
