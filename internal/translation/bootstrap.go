package translation

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/calcx/internal/types"
)

// RegisterType attaches a registrant to t. It runs the first time t is
// initialized, explicitly or through a lookup. Attaching after t has been
// initialized is an error.
func (m *Map) RegisterType(t *types.Type, r Registrant) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if _, started := m.inits[t]; started {
		return fmt.Errorf("registrant for %s attached after initialization", t)
	}
	m.registrants[t] = append(m.registrants[t], r)
	return nil
}

// EnsureInitialized runs the registrants attached to t once. Later calls
// return the result of the first run.
func (m *Map) EnsureInitialized(t *types.Type) error {
	m.initMu.Lock()
	ti, ok := m.inits[t]
	if !ok {
		ti = &typeInit{}
		m.inits[t] = ti
	}
	rs := m.registrants[t]
	m.initMu.Unlock()

	ti.once.Do(func() {
		for _, r := range rs {
			if err := r(m); err != nil {
				ti.err = fmt.Errorf("initialize %s: %w", t, err)
				return
			}
		}
		if len(rs) > 0 {
			m.logger.Debug("initialized type", "type", t.Name, "registrants", len(rs))
		}
	})
	return ti.err
}

// EnsureAllInitialized runs the registrants of every type in the universe.
func (m *Map) EnsureAllInitialized() error {
	if err := m.EnsureBaseTranslationsInitialized(); err != nil {
		return err
	}
	for _, t := range m.universe.Types() {
		if err := m.EnsureInitialized(t); err != nil {
			return err
		}
	}
	return nil
}

// MarkBase adds a registrant of base translations: definitions that apply
// across types (such as ToString for every enum) and must be present before
// the first inline. Marking a registrant re-arms the bootstrap so the next
// EnsureBaseTranslationsInitialized runs the new one along with any left
// pending by an earlier failure, and drops cached enum translations since
// their labels may come from the new registrant.
func (m *Map) MarkBase(r Registrant) {
	m.baseMu.Lock()
	defer m.baseMu.Unlock()
	m.bases = append(m.bases, r)
	m.baseOnce = new(sync.Once)
	m.baseErr = nil
	m.enumEntries.Clear()
}

// EnsureBaseTranslationsInitialized runs the base registrants not yet run.
// It is called by Inline and Evaluate and is idempotent. When a registrant
// fails, the error is returned until the next MarkBase and the registrants
// after it stay pending; the failed one is not run again.
func (m *Map) EnsureBaseTranslationsInitialized() error {
	m.baseMu.Lock()
	once := m.baseOnce
	m.baseMu.Unlock()

	once.Do(func() {
		m.baseMu.Lock()
		pending := m.bases
		m.bases = nil
		m.baseMu.Unlock()

		for i, r := range pending {
			if err := r(m); err != nil {
				m.baseMu.Lock()
				m.bases = append(slices.Clone(pending[i+1:]), m.bases...)
				m.baseErr = fmt.Errorf("initialize base translations: %w", err)
				m.baseMu.Unlock()
				return
			}
		}
	})

	m.baseMu.Lock()
	defer m.baseMu.Unlock()
	return m.baseErr
}
