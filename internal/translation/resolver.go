package translation

import (
	"strconv"
	"strings"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/types"
)

// contributors returns the entries registered for the member of base on
// strict subtypes of its type, ordered least derived first. Registrants of
// every known subtype are run first so overrides declared on types nobody
// has touched yet are not missed.
func (m *Map) contributors(base *Entry) []*Entry {
	sym := base.Symbol
	for _, sub := range m.universe.Subtypes(sym.Type) {
		if err := m.EnsureInitialized(sub); err != nil {
			m.logger.Warn("type initialization failed", "type", sub.Name, "error", err)
		}
	}

	m.mu.RLock()
	var out []*Entry
	for _, e := range m.order {
		if e.Symbol.Member == sym.Member && e.Symbol.Kind == sym.Kind &&
			e.Symbol.Type != sym.Type && sym.Type.IsAssignableFrom(e.Symbol.Type) {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	return SortBySpecificity(out, func(e *Entry) *types.Type { return e.Symbol.Type })
}

// SortBySpecificity orders items so that every supertype comes before its
// subtypes. Items whose types are unrelated keep their input order: at each
// step the earliest remaining item with no remaining strict ancestor is
// taken.
func SortBySpecificity[T any](items []T, typeOf func(T) *types.Type) []T {
	remaining := append([]T(nil), items...)
	out := make([]T, 0, len(items))
	for len(remaining) > 0 {
		pick := 0
		for i, cand := range remaining {
			if !hasAncestorIn(typeOf(cand), remaining, typeOf) {
				pick = i
				break
			}
		}
		out = append(out, remaining[pick])
		remaining = append(remaining[:pick], remaining[pick+1:]...)
	}
	return out
}

func hasAncestorIn[T any](t *types.Type, items []T, typeOf func(T) *types.Type) bool {
	for _, other := range items {
		ot := typeOf(other)
		if ot != t && ot.IsAssignableFrom(t) {
			return true
		}
	}
	return false
}

// resolve returns the override body of base and the contributors it was
// folded from. The fold is recomputed only when that set differs from the
// one the cached body was built from. It returns nil when there is nothing
// to fold and no override body was supplied at registration.
func (m *Map) resolve(base *Entry) (*expr.Lambda, []*Entry) {
	contribs := m.contributors(base)
	key := foldKey(contribs)

	base.mu.Lock()
	defer base.mu.Unlock()

	if base.folded != nil && base.foldKey == key {
		return base.folded, contribs
	}
	if len(contribs) == 0 {
		base.useOverride = base.initial != nil
		return base.initial, nil
	}

	base.folded = Fold(base.Body, base.initial, contribs)
	base.foldKey = key
	base.useOverride = true
	m.logger.Debug("resolved overrides",
		"symbol", base.Symbol.String(),
		"contributors", len(contribs),
		"override", base.folded.String())
	return base.folded, contribs
}

func foldKey(contribs []*Entry) string {
	parts := make([]string, len(contribs))
	for i, c := range contribs {
		parts[i] = strconv.Itoa(c.seq) + ":" + c.fingerprint
	}
	return strings.Join(parts, ",")
}

// Fold synthesizes the override body of a base definition. Contributors must
// be ordered least derived first. Starting from initial (or body when initial
// is nil) each contributor wraps the accumulator:
//
//	param is T ? contributor(param) : accumulator
//
// so the most derived type test ends up outermost and is evaluated first.
func Fold(body, initial *expr.Lambda, contribs []*Entry) *expr.Lambda {
	param := body.Param()
	acc := body.Body
	if initial != nil {
		acc = expr.Rebind(initial, param).Body
	}
	for _, c := range contribs {
		ifso := expr.Rebind(c.Body, param).Body
		if ifso.Type() != acc.Type() && !expr.IsNullConstant(ifso) && !expr.IsNullConstant(acc) {
			ifso = expr.As(ifso, acc.Type())
		}
		acc = expr.NewConditional(expr.Is(param, c.Symbol.Type), ifso, acc)
	}
	return expr.NewLambda(param, acc)
}
