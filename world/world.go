// Package world ties the storage layers together: it owns the component
// registry, the archetype table (or the sparse-array fallback), the live
// entity table, and the queries that watch them.
package world

import (
	"sort"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	zlog "github.com/rs/zerolog/log"

	"github.com/quarry-engine/quarry/cmdbuffer"
	"github.com/quarry-engine/quarry/log"
	"github.com/quarry-engine/quarry/query"
	"github.com/quarry-engine/quarry/storage"
	"github.com/quarry-engine/quarry/types/component"
	"github.com/quarry-engine/quarry/types/entity"
)

var (
	_ cmdbuffer.Store       = &World{}
	_ query.TagReader       = &World{}
	_ query.ComponentReader = &World{}
)

// World is a single engine instance. Everything is scoped to it — component
// type IDs, archetypes, entities, queries — so independent worlds never
// interfere. The design assumes one logical mutator; see the command buffer
// for mutation during iteration.
type World struct {
	registry *component.Registry
	// manager is nil when the archetype table is disabled, in which case
	// arrays holds the sparse fallback storage per component type.
	manager *storage.Manager
	arrays  map[component.TypeID]*storage.ComponentArray

	entities map[entity.ID]*Entity
	nextID   entity.ID

	queries    []*query.Query
	validators map[component.TypeID][]Validator

	logger log.Logger
}

// New creates an empty world.
func New(opts ...Option) *World {
	w := &World{
		registry:   component.NewRegistry(),
		arrays:     map[component.TypeID]*storage.ComponentArray{},
		entities:   map[entity.ID]*Entity{},
		nextID:     1,
		validators: map[component.TypeID][]Validator{},
		logger:     log.New(&zlog.Logger),
	}
	archetypesDisabled := false
	for _, opt := range opts {
		opt(w, &archetypesDisabled)
	}
	if !archetypesDisabled {
		w.manager = storage.NewManager(w.logger)
	}
	return w
}

// RegisterComponent registers component type T with the world's registry
// and returns its metadata handle.
func RegisterComponent[T component.Component](w *World, opts ...component.Option[T]) (component.Metadata, error) {
	m := component.NewMetadata[T](opts...)
	if err := w.registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Registry returns the world's component type table.
func (w *World) Registry() *component.Registry {
	return w.registry
}

// Logger returns the world's logger.
func (w *World) Logger() log.Logger {
	return w.logger
}

// ArchetypesEnabled reports whether the archetype table is in use.
func (w *World) ArchetypesEnabled() bool {
	return w.manager != nil
}

// Manager exposes the archetype registry, or nil in fallback mode.
func (w *World) Manager() *storage.Manager {
	return w.manager
}

// Create spawns an entity with no components. Every live entity belongs to
// exactly one archetype, so a fresh entity starts in the empty archetype.
func (w *World) Create(name string) (*Entity, error) {
	return w.createWithGUID(uuid.New(), name)
}

// CreateMany spawns n empty entities.
func (w *World) CreateMany(n int, name string) ([]*Entity, error) {
	out := make([]*Entity, 0, n)
	for i := 0; i < n; i++ {
		e, err := w.Create(name)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// SpawnRestored spawns an entity with a preassigned GUID. Snapshot restores
// use it to keep entity identity stable across save and load.
func (w *World) SpawnRestored(guid uuid.UUID, name string) (*Entity, error) {
	return w.createWithGUID(guid, name)
}

func (w *World) createWithGUID(guid uuid.UUID, name string) (*Entity, error) {
	id := w.nextID
	w.nextID++

	e := &Entity{
		id:          id,
		guid:        guid,
		name:        name,
		world:       w,
		comps:       map[component.TypeID]component.Metadata{},
		compIndices: map[component.TypeID]int{},
		tags:        map[string]struct{}{},
	}
	if w.manager != nil {
		arch, err := w.manager.PlaceEntity(id, nil, nil)
		if err != nil {
			return nil, err
		}
		e.archID = arch.ID()
	}
	w.entities[id] = e
	w.notifyQueries(e)
	return e, nil
}

// Entity resolves an entity by ID.
func (w *World) Entity(id entity.ID) (*Entity, bool) {
	e, ok := w.entities[id]
	return e, ok
}

// EntityCount returns the number of live entities, including those queued
// for deletion but not yet flushed.
func (w *World) EntityCount() int {
	return len(w.entities)
}

// Entities returns the live entities ordered by ID.
func (w *World) Entities() []*Entity {
	out := make([]*Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// NewQuery compiles a query against this world and keeps it updated as
// entities mutate.
func (w *World) NewQuery(spec query.Spec) *query.Query {
	deps := query.Deps{Tags: w, Components: w}
	if w.manager != nil {
		deps.Store = w.manager
	}
	q := query.New(spec, deps)
	for _, e := range w.entities {
		q.Update(e)
	}
	w.queries = append(w.queries, q)
	return q
}

// NewCommandBuffer returns a buffer whose commands replay against this
// world through the same mutation APIs as direct calls.
func (w *World) NewCommandBuffer() *cmdbuffer.Buffer {
	return cmdbuffer.New(w, w.logger)
}

// FlushDeleted releases every entity flagged by QueueFree. This is the
// defined cleanup point; nothing is released synchronously.
func (w *World) FlushDeleted() int {
	var doomed []*Entity
	for _, e := range w.entities {
		if e.markedForDeletion {
			doomed = append(doomed, e)
		}
	}
	sort.Slice(doomed, func(i, j int) bool { return doomed[i].id < doomed[j].id })
	for _, e := range doomed {
		w.release(e)
	}
	return len(doomed)
}

// Reset clears all entities, archetype membership, fallback storage, and
// query caches, returning the world to its initial empty state. Registered
// component types and validators survive.
func (w *World) Reset() {
	for _, e := range w.entities {
		e.reset()
	}
	clear(w.entities)
	w.nextID = 1
	if w.manager != nil {
		w.manager.Reset()
	}
	for _, arr := range w.arrays {
		arr.Reset()
	}
	for _, q := range w.queries {
		q.Clear()
	}
}

// --- cmdbuffer.Store ---

// CreateEntity spawns an empty entity and returns its ID.
func (w *World) CreateEntity(name string) (entity.ID, error) {
	e, err := w.Create(name)
	if err != nil {
		return entity.BadID, err
	}
	return e.id, nil
}

// DespawnEntity queues the entity for deletion at the next flush point.
func (w *World) DespawnEntity(id entity.ID) error {
	e, ok := w.entities[id]
	if !ok {
		return eris.Wrapf(storage.ErrEntityNotFound, "entity %d", id)
	}
	e.QueueFree()
	return nil
}

// MarkForDeletion flags the entity for deletion; rollbacks use it to undo
// spawns without hard-deleting mid-batch.
func (w *World) MarkForDeletion(id entity.ID) error {
	return w.DespawnEntity(id)
}

// AddComponent attaches a component value to the entity with the given ID.
func (w *World) AddComponent(id entity.ID, c component.Metadata, value any) error {
	e, ok := w.entities[id]
	if !ok {
		return eris.Wrapf(storage.ErrEntityNotFound, "entity %d", id)
	}
	return w.addComponent(e, c, value)
}

// RemoveComponent detaches a component from the entity with the given ID.
func (w *World) RemoveComponent(id entity.ID, c component.Metadata) error {
	e, ok := w.entities[id]
	if !ok {
		return eris.Wrapf(storage.ErrEntityNotFound, "entity %d", id)
	}
	return w.removeComponent(e, c)
}

// AddTag adds a tag to the entity with the given ID.
func (w *World) AddTag(id entity.ID, tag string) error {
	e, ok := w.entities[id]
	if !ok {
		return eris.Wrapf(storage.ErrEntityNotFound, "entity %d", id)
	}
	e.AddTag(tag)
	return nil
}

// RemoveTag removes a tag from the entity with the given ID.
func (w *World) RemoveTag(id entity.ID, tag string) error {
	e, ok := w.entities[id]
	if !ok {
		return eris.Wrapf(storage.ErrEntityNotFound, "entity %d", id)
	}
	e.RemoveTag(tag)
	return nil
}

// SetParent reparents child under parent, maintaining both sides' links.
func (w *World) SetParent(child, parent entity.ID) error {
	c, ok := w.entities[child]
	if !ok {
		return eris.Wrapf(storage.ErrEntityNotFound, "child entity %d", child)
	}
	p, ok := w.entities[parent]
	if !ok {
		return eris.Wrapf(storage.ErrEntityNotFound, "parent entity %d", parent)
	}
	if child == parent {
		return eris.Errorf("entity %d cannot be its own parent", child)
	}
	w.unlinkFromParent(c)
	c.parent = parent
	c.hasParent = true
	p.children = append(p.children, child)
	return nil
}

// --- query.TagReader / query.ComponentReader ---

// HasTag reports tag membership for the entity with the given ID.
func (w *World) HasTag(id entity.ID, tag string) bool {
	e, ok := w.entities[id]
	if !ok {
		return false
	}
	return e.HasTag(tag)
}

// ComponentByID fetches a component value for the entity with the given ID.
func (w *World) ComponentByID(id entity.ID, tid component.TypeID) (any, error) {
	e, ok := w.entities[id]
	if !ok {
		return nil, eris.Wrapf(storage.ErrEntityNotFound, "entity %d", id)
	}
	return w.componentFor(e, tid)
}

// --- internal mutation paths ---

func (w *World) addComponent(e *Entity, c component.Metadata, value any) error {
	if e.HasComponentID(c.ID()) {
		return eris.Wrapf(storage.ErrComponentAlreadyOnEntity, "component %q on entity %d", c.Name(), e.id)
	}
	if err := c.ValidateValue(value); err != nil {
		return err
	}
	// Validators run before the archetype move; a rejection leaves the
	// entity's shape untouched.
	for _, validate := range w.validators[c.ID()] {
		if err := validate(e, value); err != nil {
			return eris.Wrapf(err, "validator rejected component %q on entity %d", c.Name(), e.id)
		}
	}

	if w.manager != nil {
		arch := w.manager.Archetype(e.archID)
		values, err := w.gatherValues(e, arch)
		if err != nil {
			return err
		}
		values[c.ID()] = value
		newComps := append(e.ComponentTypes(), c)
		dest, err := w.manager.MoveEntity(e.id, arch, newComps, values)
		if err != nil {
			return err
		}
		e.archID = dest.ID()
	} else {
		arr := w.arrayFor(c)
		e.compIndices[c.ID()] = arr.Insert(e.id, value)
	}

	e.comps[c.ID()] = c
	w.notifyQueries(e)
	return nil
}

func (w *World) removeComponent(e *Entity, c component.Metadata) error {
	if !e.HasComponentID(c.ID()) {
		return eris.Wrapf(storage.ErrComponentNotOnEntity, "component %q on entity %d", c.Name(), e.id)
	}

	if w.manager != nil {
		arch := w.manager.Archetype(e.archID)
		values, err := w.gatherValues(e, arch)
		if err != nil {
			return err
		}
		delete(values, c.ID())
		newComps := make([]component.Metadata, 0, len(e.comps)-1)
		for _, m := range e.ComponentTypes() {
			if m.ID() != c.ID() {
				newComps = append(newComps, m)
			}
		}
		// An entity whose last component is removed lands in the empty
		// archetype; it stays a member of exactly one archetype.
		dest, err := w.manager.MoveEntity(e.id, arch, newComps, values)
		if err != nil {
			return err
		}
		e.archID = dest.ID()
	} else {
		index, ok := e.compIndices[c.ID()]
		if !ok {
			return eris.Wrapf(storage.ErrComponentNotOnEntity, "component %q index on entity %d", c.Name(), e.id)
		}
		if err := w.arrayFor(c).Remove(index); err != nil {
			return err
		}
		delete(e.compIndices, c.ID())
	}

	delete(e.comps, c.ID())
	w.notifyQueries(e)
	return nil
}

func (w *World) setComponent(e *Entity, c component.Metadata, value any) error {
	if !e.HasComponentID(c.ID()) {
		return eris.Wrapf(storage.ErrComponentNotOnEntity, "component %q on entity %d", c.Name(), e.id)
	}
	if err := c.ValidateValue(value); err != nil {
		return err
	}
	if w.manager != nil {
		return w.manager.Archetype(e.archID).SetComponent(e.id, c.ID(), value)
	}
	return w.arrayFor(c).Set(e.compIndices[c.ID()], value)
}

func (w *World) componentFor(e *Entity, tid component.TypeID) (any, error) {
	if !e.HasComponentID(tid) {
		return nil, eris.Wrapf(storage.ErrComponentNotOnEntity, "component type %d on entity %d", tid, e.id)
	}
	if w.manager != nil {
		return w.manager.Archetype(e.archID).Component(e.id, tid)
	}
	arr, ok := w.arrays[tid]
	if !ok {
		return nil, eris.Wrapf(storage.ErrComponentNotOnEntity, "no storage for component type %d", tid)
	}
	return arr.Get(e.compIndices[tid])
}

// gatherValues captures every live component value for the entity from its
// current archetype, the O(k) step of a structural edit.
func (w *World) gatherValues(e *Entity, arch *storage.Archetype) (map[component.TypeID]any, error) {
	values := make(map[component.TypeID]any, len(e.comps)+1)
	for tid := range e.comps {
		value, err := arch.Component(e.id, tid)
		if err != nil {
			return nil, err
		}
		values[tid] = value
	}
	return values, nil
}

func (w *World) arrayFor(c component.Metadata) *storage.ComponentArray {
	arr, ok := w.arrays[c.ID()]
	if !ok {
		arr = storage.NewComponentArray()
		w.arrays[c.ID()] = arr
	}
	return arr
}

func (w *World) notifyQueries(e *Entity) {
	for _, q := range w.queries {
		q.Update(e)
	}
}

// release hard-deletes a flagged entity: storage membership, hierarchy
// links, query membership, and the entity table entry.
func (w *World) release(e *Entity) {
	if w.manager != nil {
		arch := w.manager.Archetype(e.archID)
		if arch.HasEntity(e.id) {
			// Removal respects the archetype's iteration guard; the physical
			// swap-and-pop may be deferred.
			_, _ = w.manager.RemoveEntity(e.id, arch)
		}
	} else {
		for tid, index := range e.compIndices {
			if arr, ok := w.arrays[tid]; ok {
				_ = arr.Remove(index)
			}
		}
	}

	w.unlinkFromParent(e)
	for _, childID := range e.children {
		if child, ok := w.entities[childID]; ok {
			child.parent = 0
			child.hasParent = false
		}
	}

	for _, q := range w.queries {
		q.Forget(e.id)
	}
	delete(w.entities, e.id)
	e.reset()
}

func (w *World) unlinkFromParent(e *Entity) {
	if !e.hasParent {
		return
	}
	if p, ok := w.entities[e.parent]; ok {
		for i, childID := range p.children {
			if childID == e.id {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	e.hasParent = false
	e.parent = 0
}
