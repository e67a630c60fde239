package storage

import (
	"github.com/rotisserie/eris"

	"github.com/quarry-engine/quarry/filter"
	"github.com/quarry-engine/quarry/types/archetype"
	"github.com/quarry-engine/quarry/types/component"
	"github.com/quarry-engine/quarry/types/entity"
)

// Archetype is the dense, parallel storage for all entities that share one
// exact component-type set. For every position i, entities[i]'s component
// values live at index i of each column.
//
// Removal is swap-and-pop, so iteration order is not stable across
// structural mutations. While an iteration is active, removals are deferred
// into a pending set and flushed when the outermost iteration returns; the
// iterator skips pending entities so a pass never double-visits or misses a
// live entity.
type Archetype struct {
	id       archetype.ID
	comps    []component.Metadata
	columns  map[component.TypeID]component.Column
	entities []entity.ID
	indexOf  map[entity.ID]int

	iterDepth int
	pending   map[entity.ID]struct{}
}

// NewArchetype creates an empty archetype for the given component set. The
// component slice must already be canonically sorted; Manager takes care of
// that.
func NewArchetype(id archetype.ID, comps []component.Metadata) *Archetype {
	columns := make(map[component.TypeID]component.Column, len(comps))
	for _, c := range comps {
		columns[c.ID()] = c.NewColumn()
	}
	return &Archetype{
		id:       id,
		comps:    comps,
		columns:  columns,
		entities: make([]entity.ID, 0, 256),
		indexOf:  map[entity.ID]int{},
		pending:  map[entity.ID]struct{}{},
	}
}

// ID returns the archetype's registry ID.
func (a *Archetype) ID() archetype.ID {
	return a.id
}

// Components returns the component types this archetype stores.
func (a *Archetype) Components() []component.Metadata {
	return a.comps
}

// Count returns the number of live entities, excluding members whose removal
// is deferred behind an active iteration.
func (a *Archetype) Count() int {
	return len(a.entities) - len(a.pending)
}

// HasEntity returns true if the entity is a live member of this archetype.
func (a *Archetype) HasEntity(id entity.ID) bool {
	if _, removed := a.pending[id]; removed {
		return false
	}
	_, ok := a.indexOf[id]
	return ok
}

// Entities returns the dense entity array. It may include members with a
// deferred removal pending; use HasEntity to test liveness.
func (a *Archetype) Entities() []entity.ID {
	return a.entities
}

// Column returns the dense value buffer for one of this archetype's
// component types.
func (a *Archetype) Column(tid component.TypeID) (component.Column, error) {
	col, ok := a.columns[tid]
	if !ok {
		return nil, eris.Wrapf(ErrComponentNotOnEntity, "archetype %d has no component type %d", a.id, tid)
	}
	return col, nil
}

// AddEntity appends the entity and, for each of this archetype's component
// types, the corresponding value from values, in parallel at the new highest
// index. A missing or mistyped value is a caller bug: the call fails before
// anything is appended, so the archetype is never left half-built.
func (a *Archetype) AddEntity(id entity.ID, values map[component.TypeID]any) error {
	if _, ok := a.indexOf[id]; ok {
		return eris.Errorf("entity %d is already a member of archetype %d", id, a.id)
	}
	for _, c := range a.comps {
		value, ok := values[c.ID()]
		if !ok {
			return eris.Wrapf(ErrComponentValueMissing, "component %q for entity %d", c.Name(), id)
		}
		if err := c.ValidateValue(value); err != nil {
			return err
		}
	}
	index := len(a.entities)
	a.entities = append(a.entities, id)
	for _, c := range a.comps {
		// Append cannot fail here; values were validated above.
		if err := a.columns[c.ID()].Append(values[c.ID()]); err != nil {
			return err
		}
	}
	a.indexOf[id] = index
	return nil
}

// RemoveEntity removes the entity and returns a snapshot of its component
// values, which the caller needs when relocating the entity to a different
// archetype. If an iteration over this archetype is active, the physical
// swap-and-pop is deferred until the outermost iteration completes; the
// returned snapshot is captured before deferral, so relocation always sees
// correct data.
func (a *Archetype) RemoveEntity(id entity.ID) (map[component.TypeID]any, error) {
	index, ok := a.indexOf[id]
	if !ok {
		return nil, eris.Wrapf(ErrEntityNotFound, "entity %d in archetype %d", id, a.id)
	}
	if _, removed := a.pending[id]; removed {
		return nil, eris.Wrapf(ErrEntityNotFound, "entity %d already removed from archetype %d", id, a.id)
	}

	snapshot := make(map[component.TypeID]any, len(a.comps))
	for _, c := range a.comps {
		value, err := a.columns[c.ID()].Get(index)
		if err != nil {
			return nil, err
		}
		snapshot[c.ID()] = value
	}

	if a.iterDepth > 0 {
		a.pending[id] = struct{}{}
		return snapshot, nil
	}

	if err := a.removeAt(index); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Component returns the entity's value for one component type.
func (a *Archetype) Component(id entity.ID, tid component.TypeID) (any, error) {
	index, col, err := a.locate(id, tid)
	if err != nil {
		return nil, err
	}
	return col.Get(index)
}

// SetComponent replaces the entity's value for one component type.
func (a *Archetype) SetComponent(id entity.ID, tid component.TypeID, value any) error {
	index, col, err := a.locate(id, tid)
	if err != nil {
		return err
	}
	return col.Set(index, value)
}

// Matches reports whether this archetype's component set satisfies the
// filter.
func (a *Archetype) Matches(f filter.ComponentFilter) bool {
	return f.MatchesComponents(a.comps)
}

// Each iterates the archetype's entities in current dense-array order,
// invoking fn with the entity ID and its dense index. Returning false stops
// the pass. Iteration is re-entrant; removals requested during any active
// pass are deferred and flushed when the outermost pass returns, and pending
// entities are skipped.
func (a *Archetype) Each(fn func(id entity.ID, index int) bool) {
	a.iterDepth++
	defer func() {
		a.iterDepth--
		if a.iterDepth == 0 {
			a.flushPending()
		}
	}()

	for i := 0; i < len(a.entities); i++ {
		id := a.entities[i]
		if _, removed := a.pending[id]; removed {
			continue
		}
		if !fn(id, i) {
			return
		}
	}
}

// Reset discards all members and values, keeping the archetype registered.
func (a *Archetype) Reset() {
	a.entities = a.entities[:0]
	clear(a.indexOf)
	clear(a.pending)
	for _, col := range a.columns {
		col.Reset()
	}
}

func (a *Archetype) locate(id entity.ID, tid component.TypeID) (int, component.Column, error) {
	index, ok := a.indexOf[id]
	if !ok {
		return 0, nil, eris.Wrapf(ErrEntityNotFound, "entity %d in archetype %d", id, a.id)
	}
	if _, removed := a.pending[id]; removed {
		return 0, nil, eris.Wrapf(ErrEntityNotFound, "entity %d already removed from archetype %d", id, a.id)
	}
	col, ok := a.columns[tid]
	if !ok {
		return 0, nil, eris.Wrapf(ErrComponentNotOnEntity, "component type %d on entity %d", tid, id)
	}
	if index >= col.Len() {
		return 0, nil, eris.Wrapf(ErrStaleIndex, "entity %d index %d exceeds column length %d", id, index, col.Len())
	}
	return index, col, nil
}

// removeAt performs the immediate swap-and-pop of the slot at index across
// the entity array and every column, patching the moved entity's recorded
// index.
func (a *Archetype) removeAt(index int) error {
	last := len(a.entities) - 1
	removed := a.entities[index]
	moved := a.entities[last]

	a.entities[index] = moved
	a.entities = a.entities[:last]
	for _, col := range a.columns {
		if _, err := col.SwapRemove(index); err != nil {
			return err
		}
	}
	delete(a.indexOf, removed)
	if moved != removed {
		a.indexOf[moved] = index
	}
	return nil
}

func (a *Archetype) flushPending() {
	for id := range a.pending {
		index, ok := a.indexOf[id]
		if !ok {
			continue
		}
		// The pending set is flushed outside any active iteration, so the
		// immediate path applies. A swap-and-pop failure here means the
		// parallel arrays are already desynchronized; no safe recovery exists.
		if err := a.removeAt(index); err != nil {
			panic(eris.ToString(err, true))
		}
	}
	clear(a.pending)
}
