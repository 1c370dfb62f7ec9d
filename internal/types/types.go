package types

import (
	"fmt"
)

// Kind classifies a Type.
type Kind int

const (
	// KindObject is the universal root and the abstract enum root.
	KindObject Kind = iota
	KindStruct
	KindEnum
	KindString
	KindInt
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MemberKind distinguishes stored fields from computed members.
type MemberKind int

const (
	// Field is a stored member backed by a column.
	Field MemberKind = iota
	// Property is a computed, parameterless property.
	Property
	// Method is a computed, parameterless method.
	Method
)

func (k MemberKind) String() string {
	switch k {
	case Field:
		return "field"
	case Property:
		return "property"
	case Method:
		return "method"
	default:
		return fmt.Sprintf("member(%d)", int(k))
	}
}

// Member is a named member declared on a Type.
type Member struct {
	Name      string
	Kind      MemberKind
	Type      *Type // result type
	Declaring *Type
}

// EnumValue is one named value of an enum type.
type EnumValue struct {
	Name    string
	Value   int64
	Caption string // optional display caption from metadata
}

// Type is a host type.
type Type struct {
	Name string
	Kind Kind
	Base *Type

	members map[string]*Member
	order   []string
	values  []EnumValue
}

// Builtin types. Object is the root of every hierarchy; Enum is the root of
// every enum type and is where enum-wide base translations are declared.
var (
	Object = &Type{Name: "Object", Kind: KindObject, members: map[string]*Member{}}
	String = &Type{Name: "String", Kind: KindString, Base: Object, members: map[string]*Member{}}
	Int    = &Type{Name: "Int", Kind: KindInt, Base: Object, members: map[string]*Member{}}
	Bool   = &Type{Name: "Bool", Kind: KindBool, Base: Object, members: map[string]*Member{}}
	Enum   = &Type{Name: "Enum", Kind: KindObject, Base: Object, members: map[string]*Member{}}
)

func init() {
	// Every value can be formatted; ToString is the hook for enum formatting.
	Object.members["ToString"] = &Member{Name: "ToString", Kind: Method, Type: String, Declaring: Object}
	Object.order = append(Object.order, "ToString")
}

// Builtins returns the predeclared types in a stable order.
func Builtins() []*Type {
	return []*Type{Object, String, Int, Bool, Enum}
}

// NewStruct creates a struct type deriving from base (Object when nil).
func NewStruct(name string, base *Type) *Type {
	if base == nil {
		base = Object
	}
	return &Type{Name: name, Kind: KindStruct, Base: base, members: map[string]*Member{}}
}

// NewEnum creates an enum type with the given values in declaration order.
func NewEnum(name string, values ...EnumValue) *Type {
	t := &Type{Name: name, Kind: KindEnum, Base: Enum, members: map[string]*Member{}}
	t.values = append(t.values, values...)
	return t
}

// Declare adds a member to t. Redeclaring a name on the same type is an error;
// redeclaring a name that an ancestor already declares is an override and is
// allowed for computed members only.
func (t *Type) Declare(name string, kind MemberKind, typ *Type) (*Member, error) {
	if name == "" {
		return nil, fmt.Errorf("type %s: member name is required", t.Name)
	}
	if typ == nil {
		return nil, fmt.Errorf("type %s: member %s has no type", t.Name, name)
	}
	if _, exists := t.members[name]; exists {
		return nil, fmt.Errorf("type %s: member %s declared twice", t.Name, name)
	}
	if inherited, ok := t.Base.lookup(name); ok && inherited.Kind == Field && kind == Field {
		return nil, fmt.Errorf("type %s: field %s hides field declared on %s", t.Name, name, inherited.Declaring.Name)
	}
	m := &Member{Name: name, Kind: kind, Type: typ, Declaring: t}
	t.members[name] = m
	t.order = append(t.order, name)
	return m, nil
}

// WithField declares a stored field and returns t. It panics on a declaration
// error and is meant for fixtures built in code.
func (t *Type) WithField(name string, typ *Type) *Type {
	return t.must(name, Field, typ)
}

// WithProperty declares a computed property and returns t.
func (t *Type) WithProperty(name string, typ *Type) *Type {
	return t.must(name, Property, typ)
}

// WithMethod declares a computed parameterless method and returns t.
func (t *Type) WithMethod(name string, typ *Type) *Type {
	return t.must(name, Method, typ)
}

func (t *Type) must(name string, kind MemberKind, typ *Type) *Type {
	if _, err := t.Declare(name, kind, typ); err != nil {
		panic(err)
	}
	return t
}

// DeclaredMember returns the member declared on t itself.
func (t *Type) DeclaredMember(name string) (*Member, bool) {
	if t == nil {
		return nil, false
	}
	m, ok := t.members[name]
	return m, ok
}

// LookupMember returns the nearest declaration of name on t or an ancestor.
func (t *Type) LookupMember(name string) (*Member, bool) {
	return t.lookup(name)
}

func (t *Type) lookup(name string) (*Member, bool) {
	for cur := t; cur != nil; cur = cur.Base {
		if m, ok := cur.members[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// Members returns the members declared on t itself in declaration order.
func (t *Type) Members() []*Member {
	out := make([]*Member, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.members[name])
	}
	return out
}

// Fields returns every stored field visible on t, ancestors first.
func (t *Type) Fields() []*Member {
	chain := t.Chain()
	var out []*Member
	for i := len(chain) - 1; i >= 0; i-- {
		for _, m := range chain[i].Members() {
			if m.Kind == Field {
				out = append(out, m)
			}
		}
	}
	return out
}

// Chain returns t followed by each ancestor up to and including Object.
func (t *Type) Chain() []*Type {
	var out []*Type
	for cur := t; cur != nil; cur = cur.Base {
		out = append(out, cur)
	}
	return out
}

// Depth is the number of ancestors between t and Object (Object has depth 0).
func (t *Type) Depth() int {
	return len(t.Chain()) - 1
}

// IsAssignableFrom reports whether a value of type other can be used where t
// is expected, i.e. t is other or one of its ancestors.
func (t *Type) IsAssignableFrom(other *Type) bool {
	if t == nil || other == nil {
		return false
	}
	for cur := other; cur != nil; cur = cur.Base {
		if cur == t {
			return true
		}
	}
	return false
}

// Related reports whether either type is assignable from the other.
func Related(a, b *Type) bool {
	return a.IsAssignableFrom(b) || b.IsAssignableFrom(a)
}

// CommonAncestor returns the most derived type both a and b derive from.
func CommonAncestor(a, b *Type) *Type {
	for cur := a; cur != nil; cur = cur.Base {
		if cur.IsAssignableFrom(b) {
			return cur
		}
	}
	return Object
}

// IsEnum reports whether t is a concrete enum type.
func (t *Type) IsEnum() bool {
	return t != nil && t.Kind == KindEnum
}

// IsScalar reports whether values of t are stored directly in a column.
func (t *Type) IsScalar() bool {
	switch t.Kind {
	case KindString, KindInt, KindBool, KindEnum:
		return true
	default:
		return false
	}
}

// Values returns the enum values of t in declaration order.
func (t *Type) Values() []EnumValue {
	out := make([]EnumValue, len(t.values))
	copy(out, t.values)
	return out
}

// Value looks up an enum value by name.
func (t *Type) Value(name string) (EnumValue, bool) {
	for _, v := range t.values {
		if v.Name == name {
			return v, true
		}
	}
	return EnumValue{}, false
}

// ValueOf looks up an enum value by its integer value.
func (t *Type) ValueOf(n int64) (EnumValue, bool) {
	for _, v := range t.values {
		if v.Value == n {
			return v, true
		}
	}
	return EnumValue{}, false
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}
