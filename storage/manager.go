package storage

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/quarry-engine/quarry/filter"
	"github.com/quarry-engine/quarry/log"
	"github.com/quarry-engine/quarry/statsd"
	"github.com/quarry-engine/quarry/types/archetype"
	"github.com/quarry-engine/quarry/types/component"
	"github.com/quarry-engine/quarry/types/entity"
)

// emptyArchetypeID is the distinguished archetype for entities with zero
// components, created eagerly so every live entity is always a member of
// exactly one archetype.
const emptyArchetypeID = archetype.ID(0)

// Manager owns the archetype registry and performs entity relocation. It is
// the only path by which component add/remove takes effect in archetype
// mode: structural edits gather the entity's live values, compute the new
// canonical shape, and relocate.
type Manager struct {
	archs []*Archetype
	byKey map[string]archetype.ID

	// moves counts archetype relocations; useful for profiling shape churn.
	moves uint64
	// version increments on every membership change and backs query entity
	// caches.
	version uint64

	logger log.Logger
}

func NewManager(logger log.Logger) *Manager {
	m := &Manager{
		byKey:  map[string]archetype.ID{},
		logger: logger,
	}
	empty := NewArchetype(emptyArchetypeID, nil)
	m.archs = append(m.archs, empty)
	m.byKey[""] = emptyArchetypeID
	return m
}

// GetOrCreateArchetype canonicalizes the component set by sorting on the
// unique (name, id) key and returns the matching archetype, constructing and
// registering it on first use. Archetypes are never destroyed; they may
// become empty and idle.
func (m *Manager) GetOrCreateArchetype(comps []component.Metadata) (*Archetype, error) {
	sorted, err := canonicalize(comps)
	if err != nil {
		return nil, err
	}
	key := archetypeKey(sorted)
	if id, ok := m.byKey[key]; ok {
		return m.archs[id], nil
	}
	id := archetype.ID(len(m.archs))
	arch := NewArchetype(id, sorted)
	m.archs = append(m.archs, arch)
	m.byKey[key] = id
	statsd.EmitArchetypeCreated()
	m.logger.LogArchetype(zerolog.DebugLevel, id, sorted)
	return arch, nil
}

// ArchetypeForComponents returns the archetype already registered for the
// component set, or ErrArchetypeNotFound.
func (m *Manager) ArchetypeForComponents(comps []component.Metadata) (*Archetype, error) {
	sorted, err := canonicalize(comps)
	if err != nil {
		return nil, err
	}
	id, ok := m.byKey[archetypeKey(sorted)]
	if !ok {
		return nil, eris.Wrapf(ErrArchetypeNotFound, "key %q", archetypeKey(sorted))
	}
	return m.archs[id], nil
}

// Archetype returns the archetype with the given ID.
func (m *Manager) Archetype(id archetype.ID) *Archetype {
	return m.archs[id]
}

// EmptyArchetype returns the archetype for the zero-component shape.
func (m *Manager) EmptyArchetype() *Archetype {
	return m.archs[emptyArchetypeID]
}

// ArchetypeCount returns the number of registered archetypes.
func (m *Manager) ArchetypeCount() int {
	return len(m.archs)
}

// Version returns the membership version counter. It increments whenever any
// entity gains or loses archetype membership, never on tag-only changes.
func (m *Manager) Version() uint64 {
	return m.version
}

// MoveCount returns the number of archetype relocations performed.
func (m *Manager) MoveCount() uint64 {
	return m.moves
}

// PlaceEntity adds a brand-new entity to the archetype for the given
// component set. values must contain one value per component type.
func (m *Manager) PlaceEntity(id entity.ID, comps []component.Metadata, values map[component.TypeID]any) (*Archetype, error) {
	arch, err := m.GetOrCreateArchetype(comps)
	if err != nil {
		return nil, err
	}
	if err := arch.AddEntity(id, values); err != nil {
		return nil, err
	}
	m.version++
	m.logger.LogEntity(zerolog.DebugLevel, id, arch.ID(), arch.Components())
	return arch, nil
}

// RemoveEntity removes the entity from its archetype, returning its final
// component values. Removal during an active iteration over the same
// archetype is deferred by the archetype itself.
func (m *Manager) RemoveEntity(id entity.ID, from *Archetype) (map[component.TypeID]any, error) {
	values, err := from.RemoveEntity(id)
	if err != nil {
		return nil, err
	}
	m.version++
	return values, nil
}

// MoveEntity relocates an entity to the archetype for newComps, carrying the
// supplied component values. It removes the entity from its prior archetype
// first; both sides are O(1) amortized swap-and-pop, so a structural edit
// never scans all entities.
func (m *Manager) MoveEntity(id entity.ID, from *Archetype, newComps []component.Metadata, values map[component.TypeID]any) (*Archetype, error) {
	dest, err := m.GetOrCreateArchetype(newComps)
	if err != nil {
		return nil, err
	}
	if from != nil {
		if _, err := from.RemoveEntity(id); err != nil {
			return nil, err
		}
	}
	if err := dest.AddEntity(id, values); err != nil {
		return nil, err
	}
	m.moves++
	m.version++
	statsd.EmitEntityMoved()
	m.logger.LogEntity(zerolog.DebugLevel, id, dest.ID(), dest.Components())
	return dest, nil
}

// SearchFrom returns an iterator over all archetypes at or after start whose
// component set matches the filter. Matching scans the registry, which is
// bounded by distinct shapes actually used, not by entity count.
func (m *Manager) SearchFrom(f filter.ComponentFilter, start int) *ArchetypeIterator {
	itr := &ArchetypeIterator{}
	for i := start; i < len(m.archs); i++ {
		if !m.archs[i].Matches(f) {
			continue
		}
		itr.Values = append(itr.Values, m.archs[i].ID())
	}
	return itr
}

// Reset clears the archetype table wholesale, keeping only the empty
// archetype with no members.
func (m *Manager) Reset() {
	m.archs = m.archs[:1]
	m.archs[emptyArchetypeID].Reset()
	clear(m.byKey)
	m.byKey[""] = emptyArchetypeID
	m.version++
}

// canonicalize sorts a copy of comps on the (name, id) key and rejects
// duplicates.
func canonicalize(comps []component.Metadata) ([]component.Metadata, error) {
	sorted := make([]component.Metadata, len(comps))
	copy(sorted, comps)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name() != sorted[j].Name() {
			return sorted[i].Name() < sorted[j].Name()
		}
		return sorted[i].ID() < sorted[j].ID()
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ID() == sorted[i-1].ID() {
			return nil, eris.Wrapf(ErrDuplicateComponents, "component %q", sorted[i].Name())
		}
	}
	return sorted, nil
}

// archetypeKey joins the canonical component set into the registry identity
// string. Keying on (name, id) pairs keeps identity collision-free even if
// two distinct component types share a display name.
func archetypeKey(sorted []component.Metadata) string {
	var b strings.Builder
	for i, c := range sorted {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(c.Name())
		b.WriteByte('#')
		b.WriteString(strconv.Itoa(int(c.ID())))
	}
	return b.String()
}
