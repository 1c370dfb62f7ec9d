package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/calcx/internal/translation"
	"github.com/roach88/calcx/internal/types"
)

// scalarNames maps the lower-case type names accepted in declarations to
// the builtin types.
var scalarNames = map[string]*types.Type{
	"string": types.String,
	"int":    types.Int,
	"bool":   types.Bool,
}

// CompileString compiles declarations given as CUE source.
func CompileString(src string) (*Schema, error) {
	v := cuecontext.New().CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}

// CompileFiles compiles the CUE files at paths as one set of declarations.
// The files are unified, so a type may be spread over several of them.
func CompileFiles(paths ...string) (*Schema, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no declaration files")
	}
	ctx := cuecontext.New()
	var v cue.Value
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		f := ctx.CompileBytes(data, cue.Filename(path))
		if err := f.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		if i == 0 {
			v = f
		} else {
			v = v.Unify(f)
		}
	}
	return Compile(v)
}

// Compile parses the declarations in v into a new universe.
//
// Declaration runs in three passes: types (ancestors before descendants),
// then members, then attribute bodies, so bodies may refer to any member of
// any declared type regardless of source order.
func Compile(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	d := &declarer{
		schema: &Schema{Universe: types.NewUniverse()},
		decls:  make(map[string]cue.Value),
	}
	if err := d.declareEnums(v.LookupPath(cue.ParsePath("enum"))); err != nil {
		return nil, err
	}
	if err := d.declareTypes(v.LookupPath(cue.ParsePath("type"))); err != nil {
		return nil, err
	}
	for _, t := range d.structs {
		if err := d.declareMembers(t); err != nil {
			return nil, err
		}
	}
	for _, t := range d.structs {
		if err := d.compileAttributes(t); err != nil {
			return nil, err
		}
	}
	if err := d.compileBases(v.LookupPath(cue.ParsePath("base"))); err != nil {
		return nil, err
	}
	return d.schema, nil
}

type declarer struct {
	schema  *Schema
	decls   map[string]cue.Value // struct name -> declaration
	names   []string             // struct names in source order
	structs []*types.Type        // struct types, ancestors first
}

func (d *declarer) add(t *types.Type, v cue.Value) error {
	if err := d.schema.Universe.Add(t); err != nil {
		return errorf(t.Name, v.Pos(), "%v", err)
	}
	d.schema.Types = append(d.schema.Types, t)
	return nil
}

func (d *declarer) declareEnums(v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		values, err := parseEnumValues(name, iter.Value())
		if err != nil {
			return err
		}
		if err := d.add(types.NewEnum(name, values...), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func parseEnumValues(enum string, v cue.Value) ([]types.EnumValue, error) {
	valuesVal := v.LookupPath(cue.ParsePath("values"))
	if !valuesVal.Exists() {
		return nil, errorf("enum."+enum, v.Pos(), "values are required")
	}
	iter, err := valuesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []types.EnumValue
	seen := make(map[int64]string)
	for iter.Next() {
		field := "enum." + enum + "." + iter.Label()
		ev := types.EnumValue{Name: iter.Label()}
		val := iter.Value()

		switch val.Kind() {
		case cue.IntKind:
			n, err := val.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			ev.Value = n
		case cue.StructKind:
			n, err := val.LookupPath(cue.ParsePath("value")).Int64()
			if err != nil {
				return nil, errorf(field, val.Pos(), "value must be an integer")
			}
			ev.Value = n
			if c := val.LookupPath(cue.ParsePath("caption")); c.Exists() {
				if ev.Caption, err = c.String(); err != nil {
					return nil, errorf(field, c.Pos(), "caption must be a string")
				}
			}
		default:
			return nil, errorf(field, val.Pos(), "must be an integer or {value, caption}")
		}

		if prev, dup := seen[ev.Value]; dup {
			return nil, errorf(field, val.Pos(), "value %d already used by %s", ev.Value, prev)
		}
		seen[ev.Value] = ev.Name
		out = append(out, ev)
	}
	return out, nil
}

func (d *declarer) declareTypes(v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		d.decls[iter.Label()] = iter.Value()
		d.names = append(d.names, iter.Label())
	}

	visiting := make(map[string]bool)
	for _, name := range d.names {
		if _, err := d.declareStruct(name, visiting); err != nil {
			return err
		}
	}
	return nil
}

// declareStruct creates the struct type name after its base.
func (d *declarer) declareStruct(name string, visiting map[string]bool) (*types.Type, error) {
	if t, ok := d.schema.Universe.Lookup(name); ok {
		return t, nil
	}
	v := d.decls[name]
	if visiting[name] {
		return nil, errorf("type."+name+".extends", v.Pos(), "inheritance cycle through %s", name)
	}
	visiting[name] = true
	defer delete(visiting, name)

	var base *types.Type
	if ext := v.LookupPath(cue.ParsePath("extends")); ext.Exists() {
		baseName, err := ext.String()
		if err != nil {
			return nil, errorf("type."+name+".extends", ext.Pos(), "must be a type name")
		}
		if _, declared := d.decls[baseName]; !declared {
			return nil, errorf("type."+name+".extends", ext.Pos(), "unknown struct type %s", baseName)
		}
		if base, err = d.declareStruct(baseName, visiting); err != nil {
			return nil, err
		}
	}

	t := types.NewStruct(name, base)
	if err := d.add(t, v); err != nil {
		return nil, err
	}
	d.structs = append(d.structs, t)
	return t, nil
}

// lookupType resolves a type name used in a declaration.
func (d *declarer) lookupType(field string, v cue.Value) (*types.Type, error) {
	name, err := v.String()
	if err != nil {
		return nil, errorf(field, v.Pos(), "type must be a string")
	}
	if t, ok := scalarNames[name]; ok {
		return t, nil
	}
	if t, ok := d.schema.Universe.Lookup(name); ok {
		return t, nil
	}
	return nil, errorf(field, v.Pos(), "unknown type %q", name)
}

func (d *declarer) declareMembers(t *types.Type) error {
	v := d.decls[t.Name]

	fields := v.LookupPath(cue.ParsePath("fields"))
	if fields.Exists() {
		iter, err := fields.Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for iter.Next() {
			path := "type." + t.Name + ".fields." + iter.Label()
			typ, err := d.lookupType(path, iter.Value())
			if err != nil {
				return err
			}
			if !typ.IsScalar() {
				return errorf(path, iter.Value().Pos(), "stored fields must be string, int, bool or an enum, got %s", typ)
			}
			if _, err := t.Declare(iter.Label(), types.Field, typ); err != nil {
				return errorf(path, iter.Value().Pos(), "%v", err)
			}
		}
	}

	for _, section := range []struct {
		name string
		kind types.MemberKind
	}{{"computed", types.Property}, {"methods", types.Method}} {
		sv := v.LookupPath(cue.ParsePath(section.name))
		if !sv.Exists() {
			continue
		}
		iter, err := sv.Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for iter.Next() {
			path := "type." + t.Name + "." + section.name + "." + iter.Label()
			if err := d.declareComputed(t, iter.Label(), section.kind, path, iter.Value()); err != nil {
				return err
			}
		}
	}
	return nil
}

// declareComputed declares a computed member unless an ancestor already
// declares it, in which case the attribute overrides the inherited member.
func (d *declarer) declareComputed(t *types.Type, name string, kind types.MemberKind, path string, v cue.Value) error {
	typeVal := v.LookupPath(cue.ParsePath("type"))
	inherited, ok := t.LookupMember(name)

	if ok && inherited.Declaring == t {
		return errorf(path, v.Pos(), "type %s: member %s declared twice", t, name)
	}
	if ok {
		wantKind := kind
		if inherited.Kind == types.Field && kind == types.Property {
			wantKind = types.Field
		}
		if inherited.Kind != wantKind {
			return errorf(path, v.Pos(), "%s.%s is a %s", inherited.Declaring, name, inherited.Kind)
		}
		if typeVal.Exists() {
			typ, err := d.lookupType(path+".type", typeVal)
			if err != nil {
				return err
			}
			if typ != inherited.Type {
				return errorf(path+".type", typeVal.Pos(), "%s.%s has type %s, not %s", inherited.Declaring, name, inherited.Type, typ)
			}
		}
		return nil
	}

	if !typeVal.Exists() {
		return errorf(path, v.Pos(), "type is required for a new computed member")
	}
	typ, err := d.lookupType(path+".type", typeVal)
	if err != nil {
		return err
	}
	if _, err := t.Declare(name, kind, typ); err != nil {
		return errorf(path, v.Pos(), "%v", err)
	}
	return nil
}

func (d *declarer) compileAttributes(t *types.Type) error {
	v := d.decls[t.Name]
	for _, section := range []struct {
		name string
		kind translation.MemberKind
	}{{"computed", translation.PropertyMember}, {"methods", translation.MethodMember}} {
		sv := v.LookupPath(cue.ParsePath(section.name))
		if !sv.Exists() {
			continue
		}
		iter, err := sv.Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for iter.Next() {
			path := "type." + t.Name + "." + section.name + "." + iter.Label()
			sym := translation.Symbol{Type: t, Member: iter.Label(), Kind: section.kind}
			attr, err := d.compileAttribute(sym, path, iter.Value())
			if err != nil {
				return err
			}
			d.schema.Attributes = append(d.schema.Attributes, attr)
		}
	}
	return nil
}

func (d *declarer) compileAttribute(sym translation.Symbol, path string, v cue.Value) (Attribute, error) {
	attr := Attribute{Symbol: sym, Pos: v.Pos()}

	isVal := v.LookupPath(cue.ParsePath("is"))
	if !isVal.Exists() {
		return attr, errorf(path, v.Pos(), "is is required")
	}
	body, err := parseLambda(d.schema.Universe, sym.Type, isVal)
	if err != nil {
		return attr, err
	}
	attr.Body = body

	if ov := v.LookupPath(cue.ParsePath("override")); ov.Exists() {
		if attr.Override, err = ov.Bool(); err != nil {
			return attr, errorf(path+".override", ov.Pos(), "must be a bool")
		}
	}
	return attr, nil
}

// compileBases reads base: <Type>: <Method>: {is}. Base translations may be
// declared on builtin types, typically Enum.
func (d *declarer) compileBases(v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	typeIter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for typeIter.Next() {
		t, ok := d.schema.Universe.Lookup(typeIter.Label())
		if !ok {
			return errorf("base."+typeIter.Label(), typeIter.Value().Pos(), "unknown type %q", typeIter.Label())
		}
		memberIter, err := typeIter.Value().Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for memberIter.Next() {
			path := "base." + t.Name + "." + memberIter.Label()
			decl, ok := t.LookupMember(memberIter.Label())
			if !ok {
				return errorf(path, memberIter.Value().Pos(), "type %s has no member %s", t, memberIter.Label())
			}
			if decl.Kind == types.Field {
				return errorf(path, memberIter.Value().Pos(), "%s.%s is a stored field", decl.Declaring, decl.Name)
			}
			kind := translation.PropertyMember
			if decl.Kind == types.Method {
				kind = translation.MethodMember
			}
			sym := translation.Symbol{Type: t, Member: decl.Name, Kind: kind}
			attr, err := d.compileAttribute(sym, path, memberIter.Value())
			if err != nil {
				return err
			}
			attr.Base = true
			d.schema.Attributes = append(d.schema.Attributes, attr)
		}
	}
	return nil
}
