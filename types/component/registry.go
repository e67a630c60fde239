package component

import "github.com/rotisserie/eris"

// Registry owns the component type table for a single World instance. Type
// IDs are scoped to the registry (not the process), so independent worlds in
// the same test binary never interfere with each other.
type Registry struct {
	byName map[string]Metadata
	byID   map[TypeID]Metadata
	nextID TypeID
}

func NewRegistry() *Registry {
	return &Registry{
		byName: map[string]Metadata{},
		byID:   map[TypeID]Metadata{},
		nextID: 1,
	}
}

// Register assigns the next free TypeID to the given metadata and records it.
// Registering a second component with the same display name is an error; the
// (name, id) scheme keeps archetype identity collision-free regardless.
func (r *Registry) Register(m Metadata) error {
	if _, exists := r.byName[m.Name()]; exists {
		return eris.Errorf("component %q is already registered", m.Name())
	}
	if err := m.SetID(r.nextID); err != nil {
		return err
	}
	r.byName[m.Name()] = m
	r.byID[m.ID()] = m
	r.nextID++
	return nil
}

// ByName resolves a component by display name.
func (r *Registry) ByName(name string) (Metadata, error) {
	m, ok := r.byName[name]
	if !ok {
		return nil, eris.Errorf("component %q is not registered", name)
	}
	return m, nil
}

// ByID resolves a component by type ID.
func (r *Registry) ByID(id TypeID) (Metadata, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, eris.Errorf("component type id %d is not registered", id)
	}
	return m, nil
}

// All returns every registered component, ordered by TypeID.
func (r *Registry) All() []Metadata {
	out := make([]Metadata, 0, len(r.byID))
	for id := TypeID(1); id < r.nextID; id++ {
		if m, ok := r.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Count returns the number of registered components.
func (r *Registry) Count() int {
	return len(r.byID)
}
