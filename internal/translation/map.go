package translation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/calcx/internal/caption"
	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/types"
)

// Map is the registry of computed-attribute definitions.
//
// Entries are only ever added. The first registration of a Symbol wins;
// registering it again with an equal body is a no-op and with a different
// body is a DuplicateRegistration. The one exception is an IsAuto entry,
// which an explicit registration replaces.
//
// Thread-safety: every method may be called concurrently. Registrants run at
// most once per type, under their own sync.Once, outside the registry lock.
type Map struct {
	universe *types.Universe
	captions caption.Lookup
	funcs    expr.Funcs
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[Symbol]*Entry
	order   []*Entry

	initMu      sync.Mutex
	registrants map[*types.Type][]Registrant
	inits       map[*types.Type]*typeInit

	baseMu      sync.Mutex
	bases       []Registrant
	baseOnce    *sync.Once
	baseErr     error
	enumEntries sync.Map // *types.Type -> *Entry
}

// Registrant declares the computed attributes of one type (or, for base
// registrants, attributes shared by many types) on the map.
type Registrant func(*Map) error

type typeInit struct {
	once sync.Once
	err  error
}

// Option configures a Map.
type Option func(*Map)

// WithCaptions sets the caption lookup used by the caption host function.
// Default: caption.Metadata{}.
func WithCaptions(l caption.Lookup) Option {
	return func(m *Map) { m.captions = l }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Map) { m.logger = l }
}

// WithFuncs adds host functions for direct evaluation.
func WithFuncs(funcs expr.Funcs) Option {
	return func(m *Map) {
		for name, fn := range funcs {
			m.funcs = m.funcs.With(name, fn)
		}
	}
}

// NewMap creates an empty map over the types of u.
func NewMap(u *types.Universe, opts ...Option) *Map {
	m := &Map{
		universe:    u,
		captions:    caption.Metadata{},
		logger:      slog.Default(),
		entries:     make(map[Symbol]*Entry),
		registrants: make(map[*types.Type][]Registrant),
		inits:       make(map[*types.Type]*typeInit),
		baseOnce:    new(sync.Once),
	}
	m.funcs = expr.DefaultFuncs().With(expr.FuncCaption, m.captionFunc)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Universe returns the type catalog the map resolves against.
func (m *Map) Universe() *types.Universe { return m.universe }

// Register declares body as the definition of member on t.
//
// The member must be visible on t and of the matching kind; body must take a
// single parameter that t is assignable to. Registering a property on a
// subtype when an ancestor stores the member and has no entry of its own
// also creates an IsAuto entry on that ancestor that reads the stored value,
// so the subtype's definition is folded into lookups made through the
// ancestor.
func (m *Map) Register(t *types.Type, member string, kind MemberKind, body *expr.Lambda) (Symbol, error) {
	return m.register(t, member, kind, body, nil)
}

// RegisterProperty is Register for a computed property.
func (m *Map) RegisterProperty(t *types.Type, member string, body *expr.Lambda) (Symbol, error) {
	return m.register(t, member, PropertyMember, body, nil)
}

// RegisterMethod is Register for a parameterless method.
func (m *Map) RegisterMethod(t *types.Type, method string, body *expr.Lambda) (Symbol, error) {
	return m.register(t, method, MethodMember, body, nil)
}

// RegisterOverride is Register with body also installed as the starting
// override body of the entry.
func (m *Map) RegisterOverride(t *types.Type, member string, kind MemberKind, body *expr.Lambda) (Symbol, error) {
	return m.register(t, member, kind, body, body)
}

func (m *Map) register(t *types.Type, member string, kind MemberKind, body, initial *expr.Lambda) (Symbol, error) {
	sym := Symbol{Type: t, Member: member, Kind: kind}
	if err := validateRegistration(sym, body); err != nil {
		return Symbol{}, err
	}
	fp, err := expr.Fingerprint(body)
	if err != nil {
		return Symbol{}, fmt.Errorf("register %s: %w", sym, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[sym]; ok && !existing.IsAuto {
		if existing.fingerprint == fp {
			return sym, nil
		}
		return Symbol{}, NewDuplicateError(sym)
	}

	m.entries[sym] = m.newEntryLocked(sym, body, fp, initial, false)
	m.logger.Debug("registered translation", "symbol", sym.String(), "body", body.String())

	if kind == PropertyMember {
		m.ensureAutoBaseLocked(t, member)
	}
	return sym, nil
}

func (m *Map) newEntryLocked(sym Symbol, body *expr.Lambda, fp string, initial *expr.Lambda, auto bool) *Entry {
	e := &Entry{
		Symbol:      sym,
		Body:        body,
		IsAuto:      auto,
		m:           m,
		seq:         len(m.order),
		fingerprint: fp,
		initial:     initial,
	}
	// An explicit entry replacing an automatic one keeps its position.
	if prev, ok := m.entries[sym]; ok {
		e.seq = prev.seq
		m.order[prev.seq] = e
		return e
	}
	m.order = append(m.order, e)
	return e
}

// ensureAutoBaseLocked walks the ancestors of t looking for the one that
// stores member. When no ancestor in between has an entry, the storing
// ancestor gets an IsAuto entry reading its own stored value.
func (m *Map) ensureAutoBaseLocked(t *types.Type, member string) {
	for anc := t.Base; anc != nil && anc != types.Object; anc = anc.Base {
		if _, ok := m.entries[Symbol{Type: anc, Member: member, Kind: PropertyMember}]; ok {
			return
		}
		decl, ok := anc.DeclaredMember(member)
		if !ok || decl.Kind != types.Field {
			continue
		}
		p := expr.Param("o", anc)
		body := expr.NewLambda(p, expr.Raw(&expr.PropertyRead{Target: p, Member: member, Typ: decl.Type}))
		fp, err := expr.Fingerprint(body)
		if err != nil {
			return
		}
		sym := Symbol{Type: anc, Member: member, Kind: PropertyMember}
		m.entries[sym] = m.newEntryLocked(sym, body, fp, nil, true)
		m.logger.Debug("created automatic base translation", "symbol", sym.String(), "for", t.Name)
		return
	}
}

func validateRegistration(sym Symbol, body *expr.Lambda) error {
	if sym.Type == nil {
		return fmt.Errorf("register: type is required")
	}
	if body == nil || body.Body == nil {
		return fmt.Errorf("register %s: body is required", sym)
	}
	p := body.Param()
	if len(body.Params) != 1 || p == nil {
		return fmt.Errorf("register %s: body must take exactly one parameter", sym)
	}
	if !p.Typ.IsAssignableFrom(sym.Type) {
		return fmt.Errorf("register %s: parameter type %s does not accept %s", sym, p.Typ, sym.Type)
	}
	decl, ok := sym.Type.LookupMember(sym.Member)
	if !ok {
		return fmt.Errorf("register %s: type %s has no member %s", sym, sym.Type, sym.Member)
	}
	if (decl.Kind == types.Method) != (sym.Kind == MethodMember) {
		return fmt.Errorf("register %s: %s is a %s", sym, sym.Member, decl.Kind)
	}
	return nil
}

// Lookup returns the entry registered for sym, running the registrant of
// sym.Type first if it has not run yet.
func (m *Map) Lookup(sym Symbol) (*Entry, bool) {
	if err := m.EnsureInitialized(sym.Type); err != nil {
		m.logger.Warn("type initialization failed", "type", sym.Type.Name, "error", err)
	}
	return m.get(sym)
}

func (m *Map) get(sym Symbol) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sym]
	return e, ok
}

// Find walks from t up the ancestor chain, stopping before Object, and
// returns the first entry registered for member. Registrants of every type
// visited are run first.
func (m *Map) Find(t *types.Type, member string, kind MemberKind) (*Entry, bool) {
	for cur := t; cur != nil && cur != types.Object; cur = cur.Base {
		if e, ok := m.Lookup(Symbol{Type: cur, Member: member, Kind: kind}); ok {
			return e, true
		}
	}
	return nil, false
}

// Entries returns every entry in registration order.
func (m *Map) Entries() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, len(m.order))
	copy(out, m.order)
	return out
}

// Evaluate reads member from inst the way a virtual call would: the entry
// registered nearest to the runtime type of inst is evaluated. A member with
// no entry anywhere is read from the stored fields.
func (m *Map) Evaluate(inst expr.Instance, member string) (ir.IRValue, error) {
	if inst == nil {
		return nil, NewNullInstanceError(Symbol{Type: types.Object, Member: member})
	}
	if err := m.EnsureBaseTranslationsInitialized(); err != nil {
		return nil, err
	}
	rt := inst.RuntimeType()
	decl, ok := rt.LookupMember(member)
	if !ok {
		return nil, fmt.Errorf("evaluate: type %s has no member %s", rt, member)
	}
	kind := PropertyMember
	if decl.Kind == types.Method {
		kind = MethodMember
	}
	if e, ok := m.Find(rt, member, kind); ok {
		return e.Evaluate(inst)
	}
	if v, ok := inst.Field(member); ok {
		return v, nil
	}
	if decl.Kind == types.Field {
		return ir.IRNull{}, nil
	}
	return nil, fmt.Errorf("evaluate: %s.%s has no translation and no stored value", rt, member)
}

// captionFunc implements the caption host function: the declared caption of
// an enum value, or its humanized name.
func (m *Map) captionFunc(call *expr.MethodCall, args []ir.IRValue) (ir.IRValue, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s: expected 1 argument, got %d", expr.FuncCaption, len(args))
	}
	t := call.Args[0].Type()
	n, ok := args[0].(ir.IRInt)
	if !ok || !t.IsEnum() {
		return nil, NewMetadataError(t.String(), fmt.Errorf("%s: argument is not an enum value", expr.FuncCaption))
	}
	label, err := caption.CaptionOrName(m.captions, t, int64(n))
	if err != nil {
		return nil, NewMetadataError(t.String(), err)
	}
	return ir.IRString(label), nil
}
