package translation

import (
	"fmt"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/types"
)

// InvalidEnumValue is the label of a value the enum does not define.
const InvalidEnumValue = "Invalid enum value"

// LabelFunc produces the display label of one enum value.
type LabelFunc func(t *types.Type, v types.EnumValue) (string, error)

// BuildEnumChain builds o => o == v1 ? label(v1) : o == v2 ? label(v2) : ...
// over every value of t, falling back to InvalidEnumValue. A nil label uses
// the value name.
func BuildEnumChain(t *types.Type, label LabelFunc) (*expr.Lambda, error) {
	if !t.IsEnum() {
		return nil, fmt.Errorf("%s is not an enum type", t)
	}
	if label == nil {
		label = func(_ *types.Type, v types.EnumValue) (string, error) { return v.Name, nil }
	}

	o := expr.Param("o", t)
	var chain expr.Node = expr.Str(InvalidEnumValue)
	for _, v := range t.Values() {
		text, err := label(t, v)
		if err != nil {
			return nil, err
		}
		test := expr.Eq(o, expr.NewConstant(ir.IRInt(v.Value), t))
		chain = expr.NewConditional(test, expr.Str(text), chain)
	}
	return expr.NewLambda(o, chain), nil
}

// EnumEntry returns the ToString translation of enum type t. Labels come from
// the ToString base translation registered on types.Enum, evaluated once
// per value, or the value names when there is none.
//
// The entry is built at most once per type and cached. When a label cannot
// be produced the failure is logged, nothing is cached and ok is false:
// ToString on t is then left untranslated.
func (m *Map) EnumEntry(t *types.Type) (*Entry, bool) {
	if !t.IsEnum() {
		return nil, false
	}
	if cached, ok := m.enumEntries.Load(t); ok {
		return cached.(*Entry), true
	}
	if err := m.EnsureBaseTranslationsInitialized(); err != nil {
		m.logger.Warn("cannot build enum translation", "enum", t.Name, "error", err)
		return nil, false
	}

	body, err := BuildEnumChain(t, m.baseLabel())
	if err != nil {
		m.logger.Warn("cannot build enum translation", "enum", t.Name, "error", err)
		return nil, false
	}
	fp, err := expr.Fingerprint(body)
	if err != nil {
		m.logger.Warn("cannot build enum translation", "enum", t.Name, "error", err)
		return nil, false
	}
	e := &Entry{
		Symbol:      Symbol{Type: t, Member: "ToString", Kind: MethodMember},
		Body:        body,
		IsAuto:      true,
		m:           m,
		seq:         -1,
		fingerprint: fp,
	}
	actual, _ := m.enumEntries.LoadOrStore(t, e)
	return actual.(*Entry), true
}

// baseLabel returns a LabelFunc evaluating the ToString base translation
// for enums, or nil when none is registered.
func (m *Map) baseLabel() LabelFunc {
	base, ok := m.get(Symbol{Type: types.Enum, Member: "ToString", Kind: MethodMember})
	if !ok {
		return nil
	}
	return func(t *types.Type, v types.EnumValue) (string, error) {
		param := base.Body.Param()
		body := expr.Replace(base.Body.Body, param, expr.NewConstant(ir.IRInt(v.Value), t))
		inlined, err := m.Inline(body)
		if err != nil {
			return "", err
		}
		fn, err := expr.Compile(expr.NewLambda(param, inlined), m.funcs)
		if err != nil {
			return "", err
		}
		out, err := fn(nil)
		if err != nil {
			if IsMetadataLookupFailed(err) {
				return "", err
			}
			return "", NewMetadataError(t.Name, err)
		}
		s, ok := out.(ir.IRString)
		if !ok {
			return "", NewMetadataError(t.Name, fmt.Errorf("label of %s.%s is %s, not a string", t, v.Name, ir.Format(out)))
		}
		return string(s), nil
	}
}
