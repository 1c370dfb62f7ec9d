package types

import (
	"fmt"
	"sync"
)

// Universe is the catalog of known types.
//
// Thread-safety: Add may race with lookups from concurrent inlining calls, so
// every method takes the internal lock.
type Universe struct {
	mu     sync.RWMutex
	byName map[string]*Type
	order  []*Type
}

// NewUniverse creates a catalog preloaded with the builtin types.
func NewUniverse() *Universe {
	u := &Universe{byName: make(map[string]*Type)}
	for _, t := range Builtins() {
		u.byName[t.Name] = t
		u.order = append(u.order, t)
	}
	return u
}

// Add registers t. Its base type must already be known.
func (u *Universe) Add(t *Type) error {
	if t == nil {
		return fmt.Errorf("cannot add nil type")
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	if existing, ok := u.byName[t.Name]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("type %s already declared", t.Name)
	}
	if t.Base != nil {
		if known, ok := u.byName[t.Base.Name]; !ok || known != t.Base {
			return fmt.Errorf("type %s: base type %s is not declared", t.Name, t.Base.Name)
		}
	}
	u.byName[t.Name] = t
	u.order = append(u.order, t)
	return nil
}

// MustAdd is like Add but panics on error. Use only for fixtures.
func (u *Universe) MustAdd(types ...*Type) *Universe {
	for _, t := range types {
		if err := u.Add(t); err != nil {
			panic(err)
		}
	}
	return u
}

// Lookup returns the type with the given name.
func (u *Universe) Lookup(name string) (*Type, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	t, ok := u.byName[name]
	return t, ok
}

// Types returns every known type in declaration order (builtins first).
func (u *Universe) Types() []*Type {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*Type, len(u.order))
	copy(out, u.order)
	return out
}

// Subtypes returns every strict descendant of t in declaration order.
func (u *Universe) Subtypes(t *Type) []*Type {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var out []*Type
	for _, cand := range u.order {
		if cand != t && t.IsAssignableFrom(cand) {
			out = append(out, cand)
		}
	}
	return out
}

// Concrete returns t and its descendants, i.e. every runtime type a value of
// static type t may have.
func (u *Universe) Concrete(t *Type) []*Type {
	return append([]*Type{t}, u.Subtypes(t)...)
}

// Root returns the least derived ancestor of t below Object, which names the
// storage hierarchy t belongs to.
func Root(t *Type) *Type {
	cur := t
	for cur.Base != nil && cur.Base != Object && cur.Base != Enum {
		cur = cur.Base
	}
	return cur
}

// Index returns the declaration position of t, or -1 when unknown.
func (u *Universe) Index(t *Type) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for i, cand := range u.order {
		if cand == t {
			return i
		}
	}
	return -1
}
