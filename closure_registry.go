package osl

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// closureRegistry holds the closures registered with one session.
type closureRegistry struct {
	mu     sync.Mutex
	byName map[string]*ClosureDescriptor
	byID   map[int32]*ClosureDescriptor

	// closed is set by the first ShaderGroupBegin.
	closed atomic.Bool
}

func newClosureRegistry() *closureRegistry {
	return &closureRegistry{
		byName: make(map[string]*ClosureDescriptor),
		byID:   make(map[int32]*ClosureDescriptor),
	}
}

// add records desc and reports whether it is new.
func (r *closureRegistry) add(desc *ClosureDescriptor) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return false, fmt.Errorf("%w: closure %q", ErrRegistrationClosed, desc.Name)
	}
	if prev, ok := r.byName[desc.Name]; ok {
		if prev.sameLayout(desc) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %q is registered with id %d", ErrDuplicateClosureName, desc.Name, prev.ID)
	}
	if prev, ok := r.byID[desc.ID]; ok {
		return false, fmt.Errorf("%w: id %d is taken by %q", ErrDuplicateClosureID, desc.ID, prev.Name)
	}
	r.byName[desc.Name] = desc
	r.byID[desc.ID] = desc
	return true, nil
}

// RegisterClosure hands a closure layout to the engine. Registering the
// same name, id and layout again is a no-op. All closures must be
// registered before the first ShaderGroupBegin.
func (ss *ShadingSystem) RegisterClosure(desc *ClosureDescriptor) error {
	if err := ss.enter("RegisterClosure"); err != nil {
		return err
	}
	if desc == nil {
		return fmt.Errorf("%w: nil descriptor", ErrInvalidLayout)
	}

	added, err := ss.closures.add(desc)
	if err != nil {
		ss.errs.report(SeverityError, err.Error())
		return err
	}
	if !added {
		return nil
	}
	ss.eng.RegisterClosure(desc.Name, desc.ID, desc.Wire())
	Logger().Debug("osl: closure registered", "name", desc.Name, "id", desc.ID, "fields", len(desc.Fields))
	return nil
}

// Closures returns the registered closures sorted by id.
func (ss *ShadingSystem) Closures() []*ClosureDescriptor {
	ss.closures.mu.Lock()
	out := make([]*ClosureDescriptor, 0, len(ss.closures.byID))
	for _, d := range ss.closures.byID {
		out = append(out, d)
	}
	ss.closures.mu.Unlock()

	slices.SortFunc(out, func(a, b *ClosureDescriptor) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Closure returns the registered closure called name.
func (ss *ShadingSystem) Closure(name string) (*ClosureDescriptor, bool) {
	ss.closures.mu.Lock()
	defer ss.closures.mu.Unlock()
	d, ok := ss.closures.byName[name]
	return d, ok
}
